// Command validate performs integrity checks on the tabular sink output and,
// optionally, on the dedup filter state that guards it. It verifies the
// header layout, per-row consistency, natural key uniqueness, and that every
// written key is present in the filter.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -csv data/weather.csv \
//	  -filter data/state/csv.bloom
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/sink"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	csvPath := flag.String("csv", "", "path to the tabular sink output")
	filterPath := flag.String("filter", "", "path to the sink's filter state (optional)")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*csvPath, *filterPath, os.Stdout))
}

func run(csvPath, filterPath string, out io.Writer) int {
	fmt.Fprintln(out, "=== Weather Summary Integrity Validation ===")
	fmt.Fprintln(out)

	header, rows, err := loadCSV(csvPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load %s: %v\n", csvPath, err)
		return 1
	}

	phases := []*phase{
		validateHeader(header),
		validateRows(rows),
		validateUniqueKeys(rows),
	}
	if filterPath != "" {
		filter, err := loadFilter(filterPath)
		if err != nil {
			fmt.Fprintf(out, "FATAL: load filter %s: %v\n", filterPath, err)
			return 1
		}
		phases = append(phases, validateFilterCoverage(rows, filter))
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}
	fmt.Fprintf(out, "\nRecords: %d\n", len(rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// csvRow is a parsed row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string) ([]string, []csvRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sink.Delimiter
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, errors.New("empty file")
	}

	header := all[0]
	rows := make([]csvRow, 0, len(all)-1)
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = row[j]
			}
		}
		if len(row) != len(header) {
			fields[fieldCountKey] = strconv.Itoa(len(row))
		}
		rows = append(rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return header, rows, nil
}

// fieldCountKey marks a row whose width differs from the header.
const fieldCountKey = "\x00fields"

func loadFilter(path string) (*dedup.Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return dedup.Unmarshal(data)
}

// ── Phase 1: Header ──

func validateHeader(header []string) *phase {
	p := &phase{name: "Header layout"}
	want := sink.Header()
	if !slices.Equal(header, want) {
		p.errorf("header has %d columns, want %d in sink order", len(header), len(want))
		for i := range min(len(header), len(want)) {
			if header[i] != want[i] {
				p.errorf("column %d: got %q, want %q", i+1, header[i], want[i])
			}
		}
	}
	return p
}

// ── Phase 2: Row integrity ──

func validateRows(rows []csvRow) *phase {
	p := &phase{name: "Row integrity"}
	for _, row := range rows {
		checkRow(p, row)
	}
	return p
}

func checkRow(p *phase, row csvRow) {
	pf := func(format string, args ...any) {
		p.errorf("line %d: "+format, append([]any{row.lineNum}, args...)...)
	}

	if n, ok := row.fields[fieldCountKey]; ok {
		pf("has %s fields", n)
		return
	}

	lat, err := strconv.ParseFloat(row.fields["latitude"], 64)
	if err != nil || lat < -90 || lat > 90 {
		pf("invalid latitude %q", row.fields["latitude"])
	}
	lon, err := strconv.ParseFloat(row.fields["longitude"], 64)
	if err != nil || lon < -180 || lon > 180 {
		pf("invalid longitude %q", row.fields["longitude"])
	}
	if _, err := time.Parse(domain.DateLayout, row.fields["date"]); err != nil {
		pf("invalid date %q", row.fields["date"])
	}

	sunrise, errRise := time.Parse(time.RFC3339, row.fields["sunriseIso"])
	sunset, errSet := time.Parse(time.RFC3339, row.fields["sunsetIso"])
	if errRise != nil || errSet != nil {
		pf("invalid sunrise/sunset %q/%q", row.fields["sunriseIso"], row.fields["sunsetIso"])
		return
	}
	hours, err := strconv.ParseInt(row.fields["daylightHours"], 10, 64)
	if err != nil {
		pf("invalid daylightHours %q", row.fields["daylightHours"])
	} else if want := domain.DaylightHours(sunrise, sunset); hours != want {
		pf("daylightHours %d, want %d", hours, want)
	}

	for _, h := range sink.Header() {
		if !strings.HasPrefix(h, "avg") && !strings.HasPrefix(h, "total") {
			continue
		}
		v, err := strconv.ParseFloat(row.fields[h], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			pf("aggregate %s is not a number: %q", h, row.fields[h])
		}
	}
}

// ── Phase 3: Natural key uniqueness ──

func rowKey(row csvRow) string {
	return row.fields["date"] + ":" + row.fields["latitude"] + ":" + row.fields["longitude"]
}

func validateUniqueKeys(rows []csvRow) *phase {
	p := &phase{name: "Natural key uniqueness"}
	first := make(map[string]int, len(rows))
	for _, row := range rows {
		key := rowKey(row)
		if line, ok := first[key]; ok {
			p.errorf("line %d repeats %s from line %d", row.lineNum, key, line)
			continue
		}
		first[key] = row.lineNum
	}
	return p
}

// ── Phase 4: Filter coverage ──

// validateFilterCoverage flags rows the filter does not know about, which
// means the state was lost or belongs to another output.
func validateFilterCoverage(rows []csvRow, filter *dedup.Filter) *phase {
	p := &phase{name: "Filter coverage"}
	for _, row := range rows {
		if key := rowKey(row); !filter.MightContain(key) {
			p.errorf("line %d: %s missing from filter", row.lineNum, key)
		}
	}
	return p
}
