package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	payload := []byte("country,date,cases,deaths\n" +
		"Germany,2021-03-01,100,2\n" +
		"Norway,2021-03-01,40,1\n")

	records, err := ParseCSV(payload)
	assert.NoError(t, err)
	assert.Equal(t, []RawRecord{
		{Country: "Germany", Date: "2021-03-01", Cases: "100", Deaths: "2"},
		{Country: "Norway", Date: "2021-03-01", Cases: "40", Deaths: "1"},
	}, records)
}

func TestParseCSV_ColumnOrderAndCase(t *testing.T) {
	payload := []byte("DATE,Deaths,Country,cases\n" +
		"2021-03-01,2,Germany,100\n")

	records, err := ParseCSV(payload)
	assert.NoError(t, err)
	assert.Equal(t, []RawRecord{
		{Country: "Germany", Date: "2021-03-01", Cases: "100", Deaths: "2"},
	}, records)
}

func TestParseCSV_CumulativeColumns(t *testing.T) {
	payload := []byte("country,date,cases,deaths,cumulative_cases,cumulative_deaths\n" +
		"Germany,2021-03-01,100,2,100,2\n")

	records, err := ParseCSV(payload)
	assert.NoError(t, err)
	assert.Equal(t, "100", records[0].CumulativeCases)
	assert.Equal(t, "2", records[0].CumulativeDeaths)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	records, err := ParseCSV([]byte("country,date,cases,deaths\n"))
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseCSV_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty body", ""},
		{"whitespace body", "  \n "},
		{"missing required column", "country,date,cases\nGermany,2021-03-01,100\n"},
		{"ragged row", "country,date,cases,deaths\nGermany,2021-03-01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParseCSV([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrMalformedPayload)
			assert.Nil(t, records)
		})
	}
}
