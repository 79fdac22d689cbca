// Package export writes processed CCN data to interchange files.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

// ErrEmptyTable is returned when there is nothing to export.
var ErrEmptyTable = errors.New("export table has no samples")

// Writer serializes an export table into dir and returns the file path.
type Writer interface {
	Write(ctx context.Context, dir string, table domain.ExportTable) (string, error)
}

const (
	ffi          = 1001
	component    = "cloud_condensation_nuclei_number_concentration"
	missingTime  = 999.999999
	missingValue = 9999999.999
	missingFlag  = 9.999999999
)

// AmesWriter renders NASA Ames 1001 files with EBAS-style header comments.
type AmesWriter struct {
	meta  Metadata
	clock clockwork.Clock
}

// NewAmesWriter creates an AmesWriter. The clock stamps the revision date.
func NewAmesWriter(meta Metadata, clock clockwork.Clock) *AmesWriter {
	return &AmesWriter{meta: meta, clock: clock}
}

// Write implements Writer. One file is written per call.
func (w *AmesWriter) Write(ctx context.Context, dir string, table domain.ExportTable) (string, error) {
	if len(table.Samples) == 0 {
		return "", ErrEmptyTable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	revised := w.clock.Now().UTC()
	path := filepath.Join(dir, w.FileName(table, revised))

	tmp, err := os.CreateTemp(dir, ".ames-*.nas")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := w.Encode(tmp, table, revised); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename export: %w", err)
	}
	return path, nil
}

// FileName follows the EBAS naming scheme:
// station.start.revision.instrument.component.matrix.period.resolution.level.nas
func (w *AmesWriter) FileName(table domain.ExportTable, revised time.Time) string {
	const stamp = "20060102150405"
	first := table.Samples[0].Start.UTC()
	return strings.Join([]string{
		w.meta.Station.Code,
		first.Format(stamp),
		revised.Format(stamp),
		w.meta.Instrument.Type,
		component,
		w.meta.Instrument.Matrix,
		periodCode(table),
		resolutionCode(table),
		"lev" + w.meta.Instrument.DataLevel,
		"nas",
	}, ".")
}

// Encode writes the complete file to out.
func (w *AmesWriter) Encode(out io.Writer, table domain.ExportTable, revised time.Time) error {
	ref := referenceDate(table)
	header := w.header(table, ref, revised)

	bw := bufio.NewWriter(out)
	fmt.Fprintf(bw, "%d %d\n", len(header)+1, ffi)
	for _, line := range header {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}
	for i, s := range table.Samples {
		fields := []string{days(s.Start, ref), days(s.End, ref)}
		for v := range table.Names {
			fields = append(fields, value(table.Values[v][i]), numflag(table.Flags[v][i]))
		}
		bw.WriteString(strings.Join(fields, " "))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write ames file: %w", err)
	}
	return nil
}

func (w *AmesWriter) header(table domain.ExportTable, ref, revised time.Time) []string {
	m := w.meta
	first := table.Samples[0].Start.UTC()
	nv := 1 + 2*len(table.Names)

	scales := make([]string, nv)
	misses := make([]string, nv)
	for i := range scales {
		scales[i] = "1"
	}
	misses[0] = fmt.Sprintf("%.6f", missingTime)
	for i := range table.Names {
		misses[1+2*i] = fmt.Sprintf("%.3f", missingValue)
		misses[2+2*i] = fmt.Sprintf("%.9f", missingFlag)
	}

	lines := []string{
		people(m.Originators),
		orgLine(m.Organisation),
		people(m.Submitters),
		strings.Join(m.Projects, " "),
		"1 1",
		first.Format("2006 01 02") + " " + revised.Format("2006 01 02"),
		"0",
		"days from file reference point",
		strconv.Itoa(nv),
		strings.Join(scales, " "),
		strings.Join(misses, " "),
		"end_time of measurement, days from the file reference point",
	}
	for _, name := range table.Names {
		lines = append(lines, name, "numflag, no unit")
	}

	lines = append(lines, "0") // special comments

	comments := []string{
		kv("Data definition", "EBAS_1.1"),
		kv("Set type code", "TU"),
		kv("Timezone", m.Timezone),
		kv("File name", w.FileName(table, revised)),
		kv("Timeref", ref.Format("2006-01-02")),
		kv("Startdate", first.Format("20060102150405")),
		kv("Revision date", revised.Format("20060102150405")),
		kv("Version", m.Revision),
		kv("Version description", m.RevisionDescription),
		kv("Statistics", m.Instrument.Statistics),
		kv("Data level", m.Instrument.DataLevel),
		kv("Period code", periodCode(table)),
		kv("Resolution code", resolutionCode(table)),
		kv("Station code", m.Station.Code),
		kv("Platform code", m.Station.PlatformCode),
		kv("Station name", m.Station.Name),
		kv("Station WDCA-ID", m.Station.WDCAID),
		kv("Station GAW-ID", m.Station.GAWID),
		kv("Station GAW-Name", m.Station.GAWName),
		kv("Station GAW type", m.Station.GAWType),
		kv("Station land use", m.Station.Landuse),
		kv("Station setting", m.Station.Setting),
		kv("Station WMO region", strconv.Itoa(m.Station.WMORegion)),
		kv("Station latitude", strconv.FormatFloat(m.Station.Latitude, 'f', -1, 64)),
		kv("Station longitude", strconv.FormatFloat(m.Station.Longitude, 'f', -1, 64)),
		kv("Station altitude", strconv.FormatFloat(m.Station.Altitude, 'f', -1, 64)+" m"),
		kv("Regime", m.Instrument.Regime),
		kv("Component", component),
		kv("Unit", "1/cm3"),
		kv("Matrix", m.Instrument.Matrix),
		kv("Laboratory code", m.Instrument.LabCode),
		kv("Instrument type", m.Instrument.Type),
		kv("Instrument name", m.Instrument.Name),
		kv("Method ref", m.Instrument.Method),
		kv("Originator", people(m.Originators)),
		kv("Submitter", people(m.Submitters)),
	}
	for _, iv := range table.Intervals {
		comments = append(comments, kv("Interval", iv.Start.UTC().Format(time.RFC3339)+" "+iv.End.UTC().Format(time.RFC3339)))
	}

	cols := []string{"starttime", "endtime"}
	for _, sp := range table.Setpoints {
		cols = append(cols, "CCN_SS"+sp.String(), "flag_SS"+sp.String())
	}
	comments = append(comments, strings.Join(cols, " "))

	lines = append(lines, strconv.Itoa(len(comments)))
	return append(lines, comments...)
}

func kv(key, value string) string {
	return fmt.Sprintf("%-30s%s", key+":", value)
}

func people(ps []Person) string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.LastName+", "+p.FirstName)
	}
	return strings.Join(names, "; ")
}

func orgLine(o Organisation) string {
	parts := []string{o.Code, o.Name, o.Acronym, o.Unit, o.Address.Line1, o.Address.Line2, o.Address.Zip, o.Address.City, o.Address.Country}
	return strings.Join(parts, ", ")
}

// referenceDate is 1 January of the year of the first sample's end.
func referenceDate(table domain.ExportTable) time.Time {
	return time.Date(table.Samples[0].End.UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

func days(t, ref time.Time) string {
	return strconv.FormatFloat(t.Sub(ref).Hours()/24, 'f', 6, 64)
}

func value(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(missingValue, 'f', 3, 64)
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// numflag packs up to three flags as 0.AAABBBCCC.
func numflag(flags []int) string {
	var b strings.Builder
	b.WriteString("0.")
	n := 0
	for _, f := range flags {
		if n == 3 {
			break
		}
		fmt.Fprintf(&b, "%03d", f)
		n++
	}
	for ; n < 3; n++ {
		b.WriteString("000")
	}
	return b.String()
}

func periodCode(table domain.ExportTable) string {
	span := table.Samples[len(table.Samples)-1].End.Sub(table.Samples[0].Start)
	switch {
	case span >= 365*24*time.Hour:
		return "1y"
	case span >= 28*24*time.Hour:
		return "1mo"
	case span >= 7*24*time.Hour:
		return "1w"
	case span >= 24*time.Hour:
		return "1d"
	default:
		return "1h"
	}
}

func resolutionCode(table domain.ExportTable) string {
	d := table.Samples[0].End.Sub(table.Samples[0].Start) + time.Minute
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	default:
		return strconv.Itoa(int(d/time.Minute)) + "mn"
	}
}
