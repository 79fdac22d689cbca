// Package ingest reads the counter's raw minute CSV and its ini file.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing required column")
	// ErrNoData is returned when the file has a header but no sample rows.
	ErrNoData = errors.New("no data rows")
)

// TimeColumn is the verbose header of the timestamp column.
const TimeColumn = "Date String (YYYY-MM-DD hh:mm:ss) UTC"

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
}

// Column binds a verbose instrument header to a RawSample field.
type Column struct {
	Header string
	Name   string // short internal name
	set    func(*domain.RawSample, float64)
}

// Columns is the fixed vocabulary of required value columns.
var Columns = []Column{
	{Header: "particle number concentration (cm-3)", Name: "N(cm-3)", set: func(s *domain.RawSample, v float64) { s.N = v }},
	{Header: "inlet temperature (°C)", Name: "T(C)_inlet", set: func(s *domain.RawSample, v float64) { s.TInlet = v }},
	{Header: "temperature of TEC 1 (°C)", Name: "T1(C)", set: func(s *domain.RawSample, v float64) { s.T1 = v }},
	{Header: "temperature of TEC 2 (°C)", Name: "T2(C)", set: func(s *domain.RawSample, v float64) { s.T2 = v }},
	{Header: "temperature of TEC 3 (°C)", Name: "T3(C)", set: func(s *domain.RawSample, v float64) { s.T3 = v }},
	{Header: "sample temperature (°C)", Name: "T(C)_sample", set: func(s *domain.RawSample, v float64) { s.TSample = v }},
	{Header: "OPC temperature (°C)", Name: "T(C)_OPC", set: func(s *domain.RawSample, v float64) { s.TOPC = v }},
	{Header: "nafion temperature (°C)", Name: "T(C)_nafion", set: func(s *domain.RawSample, v float64) { s.TNafion = v }},
	{Header: "sample flow rate (lpm)", Name: "Q(lpm)_sample", set: func(s *domain.RawSample, v float64) { s.QSample = v }},
	{Header: "sheath flow (lpm)", Name: "Q(lpm)_sheath", set: func(s *domain.RawSample, v float64) { s.QSheath = v }},
	{Header: "reported supersaturation from onboard instrument calibration (%)", Name: "ss(%)_setpt", set: func(s *domain.RawSample, v float64) { s.SetpointSS = v }},
	{Header: "sample pressure (hPa)", Name: "P(hPA)_sample", set: func(s *domain.RawSample, v float64) { s.PSample = v }},
}

// optionalColumns are read when present and left NaN otherwise.
var optionalColumns = []Column{
	{Header: "temperature gradiant setpoint (°C)", Name: "TG(C)_setpt", set: func(s *domain.RawSample, v float64) { s.TGSetpoint = v }},
}

// RawResult is a parsed raw file.
type RawResult struct {
	Samples    []domain.RawSample
	Duplicates int // rows dropped for repeating an earlier timestamp
	BadTimes   int // rows dropped for an unparseable timestamp
}

// ReadRawFile opens path and parses it with ReadRaw.
func ReadRawFile(path string) (RawResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawResult{}, fmt.Errorf("open raw file: %w", err)
	}
	defer f.Close()

	res, err := ReadRaw(f)
	if err != nil {
		return RawResult{}, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// ReadRaw parses a raw minute CSV: a header row, a discarded row of unit
// strings, then one row per sample. Samples are returned sorted by time with
// duplicate timestamps removed (first occurrence wins). Unparseable numeric
// cells become NaN.
func ReadRaw(r io.Reader) (RawResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return RawResult{}, ErrNoData
		}
		return RawResult{}, fmt.Errorf("read header: %w", err)
	}
	index := headerIndex(header)

	timeIdx, ok := index[TimeColumn]
	if !ok {
		return RawResult{}, fmt.Errorf("%w: %q", ErrMissingColumn, TimeColumn)
	}
	type bound struct {
		idx int
		col Column
	}
	var cols []bound
	for _, c := range Columns {
		i, ok := index[c.Header]
		if !ok {
			return RawResult{}, fmt.Errorf("%w: %q", ErrMissingColumn, c.Header)
		}
		cols = append(cols, bound{idx: i, col: c})
	}
	var optional []Column
	for _, c := range optionalColumns {
		if i, ok := index[c.Header]; ok {
			cols = append(cols, bound{idx: i, col: c})
		} else {
			optional = append(optional, c)
		}
	}

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return RawResult{}, ErrNoData
		}
		return RawResult{}, fmt.Errorf("read unit row: %w", err)
	}

	var res RawResult
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RawResult{}, fmt.Errorf("read row: %w", err)
		}
		if timeIdx >= len(rec) {
			res.BadTimes++
			continue
		}
		ts, err := parseTime(rec[timeIdx])
		if err != nil {
			res.BadTimes++
			continue
		}

		s := domain.RawSample{Time: ts}
		for _, b := range cols {
			b.col.set(&s, cell(rec, b.idx))
		}
		for _, c := range optional {
			c.set(&s, math.NaN())
		}
		res.Samples = append(res.Samples, s)
	}

	if len(res.Samples) == 0 {
		return RawResult{}, ErrNoData
	}

	sort.SliceStable(res.Samples, func(i, j int) bool { return res.Samples[i].Time.Before(res.Samples[j].Time) })
	res.Samples, res.Duplicates = dedupe(res.Samples)
	return res, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, seen := index[h]; !seen {
			index[h] = i
		}
	}
	return index
}

func cell(rec []string, i int) float64 {
	if i >= len(rec) {
		return math.NaN()
	}
	s := strings.TrimSpace(rec[i])
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func dedupe(sorted []domain.RawSample) ([]domain.RawSample, int) {
	if len(sorted) == 0 {
		return sorted, 0
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, s)
	}
	return out, len(sorted) - len(out)
}

// Merge combines results from several raw files, re-sorting and dropping
// timestamps repeated across files.
func Merge(results ...RawResult) RawResult {
	var out RawResult
	for _, r := range results {
		out.Samples = append(out.Samples, r.Samples...)
		out.Duplicates += r.Duplicates
		out.BadTimes += r.BadTimes
	}
	sort.SliceStable(out.Samples, func(i, j int) bool { return out.Samples[i].Time.Before(out.Samples[j].Time) })
	var dup int
	out.Samples, dup = dedupe(out.Samples)
	out.Duplicates += dup
	return out
}
