package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Column names required in the feed header. The cumulative columns are
// optional; some snapshots of the feed include them, some do not.
var requiredColumns = []string{"country", "date", "cases", "deaths"}

// ParseCSV decodes the feed body into raw records. The header row must
// contain the required columns (any order, case-insensitive); anything
// else wraps ErrMalformedPayload.
func ParseCSV(payload []byte) ([]RawRecord, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrMalformedPayload)
	}

	reader := csv.NewReader(bytes.NewReader(payload))

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", ErrMalformedPayload, err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", ErrMalformedPayload, col)
		}
	}

	field := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read CSV row: %v", ErrMalformedPayload, err)
		}

		records = append(records, RawRecord{
			Country:          field(row, "country"),
			Date:             field(row, "date"),
			Cases:            field(row, "cases"),
			Deaths:           field(row, "deaths"),
			CumulativeCases:  field(row, "cumulative_cases"),
			CumulativeDeaths: field(row, "cumulative_deaths"),
		})
	}

	return records, nil
}
