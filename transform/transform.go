package transform

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/no0bitah/covid-etl/countries"
	"github.com/no0bitah/covid-etl/extract"
)

// ErrTransformFailed marks a whole-batch failure. Per-row problems never
// produce it; they are dropped or clamped and counted in the Summary.
var ErrTransformFailed = errors.New("transform failed")

// NormalizedRecord is the validated, typed form of one feed row. The
// cumulative fields are always the recomputed running sums, never values
// copied from the feed. Records are immutable once constructed.
type NormalizedRecord struct {
	CountryCode      string
	Country          string
	Date             time.Time
	Cases            int
	Deaths           int
	CumulativeCases  int
	CumulativeDeaths int
}

// Summary aggregates the per-row issues recovered during one transform.
type Summary struct {
	Input    int
	Accepted int
	// UnknownCountry counts rows whose country did not resolve in the registry.
	UnknownCountry int
	// FilteredOut counts rows for known countries outside the target set.
	FilteredOut int
	// MalformedRecords counts rows dropped for an unparseable date.
	MalformedRecords int
	// ClampedValues counts negative or non-numeric metrics coerced to zero.
	ClampedValues int
	// CumulativeMismatches counts feed-supplied cumulative values that
	// disagree with the recomputed running sums. Advisory only.
	CumulativeMismatches int
}

type Result struct {
	Records []NormalizedRecord
	Summary Summary
}

// pending holds a coerced row before the per-country cumulative pass.
type pending struct {
	rec          NormalizedRecord
	rawCumCases  string
	rawCumDeaths string
}

// Transform validates and normalizes one batch of raw rows. It is pure:
// the output depends only on the input, the registry and the target set.
// Rows are filtered to countries that resolve via the registry (and, when
// targets is non-empty, belong to the target set), dates are parsed with
// the feed's fixed layout, metrics are clamped to non-negative integers,
// and cumulative sums are recomputed per country in date order.
//
// Empty input, a nil registry or an unresolvable target entry fail the
// whole batch with ErrTransformFailed.
func Transform(records []extract.RawRecord, registry *countries.Registry, targets []string) (*Result, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: country registry is not available", ErrTransformFailed)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: empty input batch", ErrTransformFailed)
	}

	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		code, ok := registry.Resolve(t)
		if !ok {
			return nil, fmt.Errorf("%w: unknown target country %q", ErrTransformFailed, t)
		}
		targetSet[code] = true
	}

	summary := Summary{Input: len(records)}
	perCountry := make(map[string][]pending)

	for _, raw := range records {
		code, ok := registry.Resolve(raw.Country)
		if !ok {
			summary.UnknownCountry++
			continue
		}
		if len(targetSet) > 0 && !targetSet[code] {
			summary.FilteredOut++
			continue
		}

		date, err := time.Parse(extract.DateLayout, raw.Date)
		if err != nil {
			summary.MalformedRecords++
			continue
		}

		cases, clamped := coerceMetric(raw.Cases)
		if clamped {
			summary.ClampedValues++
		}
		deaths, clamped := coerceMetric(raw.Deaths)
		if clamped {
			summary.ClampedValues++
		}

		perCountry[code] = append(perCountry[code], pending{
			rec: NormalizedRecord{
				CountryCode: code,
				Country:     registry.DisplayName(code),
				Date:        date,
				Cases:       cases,
				Deaths:      deaths,
			},
			rawCumCases:  raw.CumulativeCases,
			rawCumDeaths: raw.CumulativeDeaths,
		})
	}

	var out []NormalizedRecord
	for _, rows := range perCountry {
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].rec.Date.Before(rows[j].rec.Date)
		})

		var cumCases, cumDeaths int
		for _, row := range rows {
			cumCases += row.rec.Cases
			cumDeaths += row.rec.Deaths
			row.rec.CumulativeCases = cumCases
			row.rec.CumulativeDeaths = cumDeaths

			summary.CumulativeMismatches += countMismatch(row.rawCumCases, cumCases)
			summary.CumulativeMismatches += countMismatch(row.rawCumDeaths, cumDeaths)

			out = append(out, row.rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CountryCode != out[j].CountryCode {
			return out[i].CountryCode < out[j].CountryCode
		}
		return out[i].Date.Before(out[j].Date)
	})

	summary.Accepted = len(out)
	return &Result{Records: out, Summary: summary}, nil
}

// coerceMetric parses a daily metric into a non-negative integer.
// Non-numeric and negative values become zero with clamped=true; an
// empty field is treated as zero without flagging.
func coerceMetric(s string) (value int, clamped bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, true
	}
	return n, false
}

// countMismatch compares a feed-supplied cumulative value against the
// recomputed sum. Absent or unparseable feed values are not mismatches;
// the feed's own arithmetic is advisory, never authoritative.
func countMismatch(raw string, computed int) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if n != computed {
		return 1
	}
	return 0
}
