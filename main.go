package main

import "github.com/no0bitah/covid-etl/cmd"

func main() {
	cmd.Execute()
}
