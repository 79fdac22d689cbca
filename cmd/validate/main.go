// Command validate checks the integrity of a processed CSV and, optionally,
// its parity with the SQLite archive. It verifies the column layout, per-row
// value ranges, flag code consistency and archive contents.
//
// Usage:
//
//	go run ./cmd/validate -csv out/ccn_processed.csv -sqlite out/ccn.db
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ccn-data-etl/internal/adapter/csvout"
	"github.com/couchcryptid/ccn-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/ccn-data-etl/internal/domain"
	"github.com/couchcryptid/ccn-data-etl/internal/observability"
)

const rowTimeLayout = "2006-01-02 15:04:05"

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
	csvPath := flag.String("csv", "", "processed CSV to validate")
	dbPath := flag.String("sqlite", "", "SQLite archive to compare against (optional)")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*csvPath, *dbPath); code != 0 {
		os.Exit(code)
	}
}

func run(csvPath, dbPath string) int {
	fmt.Println("=== CCN Processed Data Validation ===")
	fmt.Println()

	table, err := loadCSV(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load processed CSV: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateLayout(table),
		validateRows(table),
	}
	if dbPath != "" {
		phases = append(phases, validateArchive(table, dbPath))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d, setpoints: %v\n", len(table.rows), table.setpoints)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// processedTable is a parsed processed CSV.
type processedTable struct {
	header    []string
	setpoints []domain.Setpoint
	rows      []csvRow
}

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string) (processedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return processedTable{}, err
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return processedTable{}, err
	}
	if len(all) < 2 {
		return processedTable{}, fmt.Errorf("no data rows in %s", path)
	}

	t := processedTable{header: all[0], setpoints: headerSetpoints(all[0])}
	for i, row := range all[1:] {
		fields := make(map[string]string, len(t.header))
		for j, h := range t.header {
			if j < len(row) {
				fields[h] = strings.TrimSpace(row[j])
			}
		}
		t.rows = append(t.rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return t, nil
}

// headerSetpoints recovers the setpoint list from the count columns.
func headerSetpoints(header []string) []domain.Setpoint {
	const prefix = "N(cm-3)_setpt"
	var out []domain.Setpoint
	for _, h := range header {
		if !strings.HasPrefix(h, prefix) {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimPrefix(h, prefix), 64); err == nil {
			out = append(out, domain.Setpoint(v))
		}
	}
	return domain.NormalizeSetpoints(out)
}

// number parses a cell. Empty cells are NaN.
func number(r csvRow, col string) (float64, error) {
	s := r.fields[col]
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ── Phase 1: Layout ──
// Validates the header against the column layout the pipeline writes.

func validateLayout(t processedTable) *phase {
	p := &phase{name: "Phase 1: Column Layout"}

	if len(t.setpoints) == 0 {
		p.errorf("no setpoint columns found")
		return p
	}
	want := csvout.Header(t.setpoints)
	if len(want) != len(t.header) {
		p.errorf("expected %d columns for %d setpoints, got %d", len(want), len(t.setpoints), len(t.header))
	}
	for i := range min(len(want), len(t.header)) {
		if want[i] != t.header[i] {
			p.errorf("column %d: expected %q, got %q", i+1, want[i], t.header[i])
		}
	}
	return p
}

// ── Phase 2: Row Integrity ──
// Validates value ranges, ordering and flag code consistency per row.

func validateRows(t processedTable) *phase {
	p := &phase{name: "Phase 2: Row Integrity"}

	var prev time.Time
	for _, r := range t.rows {
		ts, err := time.ParseInLocation(rowTimeLayout, r.fields[csvout.TimeHeader], time.UTC)
		if err != nil {
			p.errorf("line %d: bad timestamp %q", r.lineNum, r.fields[csvout.TimeHeader])
			continue
		}
		if !prev.IsZero() && !ts.After(prev) {
			p.errorf("line %d: %s is not after %s", r.lineNum, ts.Format(rowTimeLayout), prev.Format(rowTimeLayout))
		}
		prev = ts

		checkCompleteness(p, r)
		checkFlagCode(p, r)
		checkCorrected(p, r, t.setpoints)
		if r.fields["run_id"] == "" {
			p.errorf("line %d: run_id is empty", r.lineNum)
		}
	}
	return p
}

func checkCompleteness(p *phase, r csvRow) {
	c, err := number(r, "avg_complete")
	if err != nil || math.IsNaN(c) {
		p.errorf("line %d: avg_complete %q is not a number", r.lineNum, r.fields["avg_complete"])
		return
	}
	if c < 0 || c > 1 {
		p.errorf("line %d: avg_complete %g outside [0,1]", r.lineNum, c)
	}
}

// checkFlagCode verifies flag_code is the flag columns read MSB-first as base 2.
func checkFlagCode(p *phase, r csvRow) {
	var bits strings.Builder
	for _, name := range domain.FlagNames {
		v := r.fields[name]
		if v != "0" && v != "1" {
			p.errorf("line %d: %s=%q is not 0 or 1", r.lineNum, name, v)
			return
		}
		bits.WriteString(v)
	}
	want, _ := strconv.ParseInt(bits.String(), 2, 64)
	got, err := strconv.Atoi(r.fields["flag_code"])
	if err != nil {
		p.errorf("line %d: flag_code %q is not an integer", r.lineNum, r.fields["flag_code"])
		return
	}
	if int64(got) != want {
		p.errorf("line %d: flag_code %d does not match flags %s (%d)", r.lineNum, got, bits.String(), want)
	}
}

func checkCorrected(p *phase, r csvRow, setpoints []domain.Setpoint) {
	for _, sp := range setpoints {
		for _, col := range []string{"N(cm-3)_cor_setpt" + sp.String(), "N(cm-3)_cor_stp_setpt" + sp.String()} {
			v, err := number(r, col)
			if err != nil {
				p.errorf("line %d: %s=%q is not a number", r.lineNum, col, r.fields[col])
				continue
			}
			if v < 0 {
				p.errorf("line %d: %s=%g is negative", r.lineNum, col, v)
			}
		}
	}
}

// ── Phase 3: Archive Parity ──
// Validates that every CSV row is archived with the same run and flags.

func validateArchive(t processedTable, dbPath string) *phase {
	p := &phase{name: "Phase 3: Archive Parity (SQLite)"}

	store := sqlite.NewStore(dbPath, observability.NewLogger("error", "text"))
	defer store.Close()

	var first, last time.Time
	for _, r := range t.rows {
		ts, err := time.ParseInLocation(rowTimeLayout, r.fields[csvout.TimeHeader], time.UTC)
		if err != nil {
			continue
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	if first.IsZero() {
		p.errorf("no parseable rows to compare")
		return p
	}

	stored, err := store.Buckets(context.Background(), first, last.Add(time.Nanosecond))
	if err != nil {
		p.errorf("query archive: %v", err)
		return p
	}
	byStart := make(map[time.Time]sqlite.StoredBucket, len(stored))
	for _, b := range stored {
		byStart[b.Start] = b
	}

	for _, r := range t.rows {
		ts, err := time.ParseInLocation(rowTimeLayout, r.fields[csvout.TimeHeader], time.UTC)
		if err != nil {
			continue
		}
		b, ok := byStart[ts]
		if !ok {
			p.errorf("line %d: bucket %s not archived", r.lineNum, ts.Format(rowTimeLayout))
			continue
		}
		if b.RunID != r.fields["run_id"] {
			p.errorf("line %d: run_id csv=%q archive=%q", r.lineNum, r.fields["run_id"], b.RunID)
		}
		if strconv.Itoa(b.FlagCode) != r.fields["flag_code"] {
			p.errorf("line %d: flag_code csv=%s archive=%d", r.lineNum, r.fields["flag_code"], b.FlagCode)
		}
		if c, err := number(r, "avg_complete"); err == nil && !floatEq(c, b.Completeness) {
			p.errorf("line %d: avg_complete csv=%g archive=%g", r.lineNum, c, b.Completeness)
		}
	}
	return p
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) < 1e-9
}
