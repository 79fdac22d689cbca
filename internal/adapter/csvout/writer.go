// Package csvout writes the processed dataset as a flat CSV, one row per bucket.
package csvout

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

// TimeHeader is the index column of the processed file.
const TimeHeader = "Datetime UTC"

// Writer writes processed CSV files. It implements pipeline.Loader.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer for path. Parent directories are created on write.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// Load writes ds to the configured path, replacing any existing file. The
// file is written to a temporary name first so a failed run leaves no partial
// output.
func (w *Writer) Load(ctx context.Context, ds domain.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".ccn-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := Encode(tmp, ds); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}

	w.logger.Info("processed csv written", "path", w.path, "rows", len(ds.Records))
	return nil
}

// Header returns the column names for a dataset with the given setpoints.
func Header(setpoints []domain.Setpoint) []string {
	h := []string{TimeHeader}
	for _, sp := range setpoints {
		h = append(h,
			"N(cm-3)_setpt"+sp.String(),
			"ss(%)_calc_setpt"+sp.String(),
			"TG(C)_calc_setpt"+sp.String(),
			"T1(C)_setpt"+sp.String(),
			"T2(C)_setpt"+sp.String(),
			"count_setpt"+sp.String(),
		)
	}
	h = append(h,
		"T(C)_inlet", "T1(C)", "T2(C)", "T3(C)", "T(C)_sample", "T(C)_OPC", "T(C)_nafion",
		"Q(lpm)_sample", "Q(lpm)_sheath", "P(hPA)_sample",
		"avg_complete", "n_observed", "n_expected",
		"fit_slope", "fit_intercept",
	)
	for _, sp := range setpoints {
		h = append(h, "N(cm-3)_cor_setpt"+sp.String())
	}
	h = append(h, "T(C)_stp", "P(hPA)_stp")
	for _, sp := range setpoints {
		h = append(h, "N(cm-3)_cor_stp_setpt"+sp.String())
	}
	h = append(h, "ss_variation")
	h = append(h, domain.FlagNames...)
	h = append(h, "flag_code", "run_id", "date_run", "date_param", "ss_slope", "ss_int")
	return h
}

// Encode writes ds as CSV to w. NaN values are written as empty cells.
func Encode(w io.Writer, ds domain.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(ds.Setpoints)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range ds.Records {
		if err := cw.Write(row(r, ds.Setpoints)); err != nil {
			return fmt.Errorf("write row %s: %w", r.Start.Format(time.RFC3339), err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(r domain.Record, setpoints []domain.Setpoint) []string {
	out := []string{r.Start.UTC().Format("2006-01-02 15:04:05")}
	for _, sp := range setpoints {
		st := r.Stat(sp)
		out = append(out, num(st.N), num(st.SS), num(st.Gradient), num(st.T1), num(st.T2), strconv.Itoa(st.Count))
	}
	m := r.Means
	out = append(out,
		num(m.TInlet), num(m.T1), num(m.T2), num(m.T3), num(m.TSample), num(m.TOPC), num(m.TNafion),
		num(m.QSample), num(m.QSheath), num(m.PSample),
		num(r.Completeness), strconv.Itoa(r.Observed), strconv.Itoa(r.Expected),
		num(r.Fit.Slope), num(r.Fit.Intercept),
	)
	for _, sp := range setpoints {
		out = append(out, lookup(r.Corrected, sp))
	}
	out = append(out, num(domain.StandardTemperature-273.15), num(domain.StandardPressure))
	for _, sp := range setpoints {
		out = append(out, lookup(r.CorrectedSTP, sp))
	}
	out = append(out, num(r.UnreliableFraction))
	for _, v := range r.Flags.Values() {
		if v {
			out = append(out, "1")
		} else {
			out = append(out, "0")
		}
	}
	p := r.Provenance
	return append(out,
		strconv.Itoa(r.FlagCode),
		p.RunID,
		p.ProcessedAt.UTC().Format(time.DateOnly),
		p.ParamDate,
		num(p.Slope),
		num(p.Intercept),
	)
}

func lookup(m map[domain.Setpoint]float64, sp domain.Setpoint) string {
	v, ok := m[sp]
	if !ok {
		return ""
	}
	return num(v)
}

func num(v float64) string {
	if !domain.Valid(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
