package pipeline_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
	"github.com/couchcryptid/ccn-data-etl/internal/ingest"
	"github.com/couchcryptid/ccn-data-etl/internal/observability"
	"github.com/couchcryptid/ccn-data-etl/internal/pipeline"
)

// writeMockRaw writes n minute rows starting at start with one setpoint.
func writeMockRaw(t *testing.T, dir, name string, start time.Time, n int, setpoint float64, dT float64) string {
	t.Helper()

	headers := []string{ingest.TimeColumn}
	units := []string{"UTC"}
	for _, c := range ingest.Columns {
		headers = append(headers, `"`+c.Header+`"`)
		units = append(units, c.Name)
	}

	var b strings.Builder
	b.WriteString(strings.Join(headers, ",") + "\n")
	b.WriteString(strings.Join(units, ",") + "\n")
	for i := range n {
		ts := start.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05")
		// N, TInlet, T1, T2, T3, TSample, TOPC, TNafion, QSample, QSheath, SetpointSS, PSample
		fmt.Fprintf(&b, "%s,%g,24,22,%g,26,0,25,23,0.5,5,%g,1013.25\n", ts, setpoint*1000, 22+dT, setpoint)
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func writeMockIni(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "CCN.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const mockIni = `[Calibration]
TG Dum = 4.1
Temp Gradient Slope = 10
Temp Gradient Y-intercept = 0
Last Date Updated = 2025-03-14
`

func TestFileExtractor_TwoDailyFiles(t *testing.T) {
	dir := t.TempDir()
	day1 := writeMockRaw(t, dir, "day1.csv", testBase, 60, 0.1, 0.5)
	day2 := writeMockRaw(t, dir, "day2.csv", testBase.Add(time.Hour), 60, 0.7, 3.5)
	ini := writeMockIni(t, dir, mockIni)

	in, err := pipeline.NewFileExtractor([]string{day2, day1}, ini, discardLogger()).Extract(context.Background())
	require.NoError(t, err)

	require.Len(t, in.Samples, 120)
	assert.Equal(t, testBase, in.Samples[0].Time)
	assert.Equal(t, 10.0, in.Calibration.Slope)
	assert.Equal(t, 4.1, in.Calibration.TGDum)
	assert.Equal(t, []domain.Setpoint{0.1, 0.15, 0.25, 0.4, 0.7}, in.Setpoints)
}

func TestFileExtractor_MissingColumnIsFatal(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(raw, []byte(ingest.TimeColumn+"\nUTC\n2025-06-01 00:00:00\n"), 0o600))
	ini := writeMockIni(t, dir, mockIni)

	_, err := pipeline.NewFileExtractor([]string{raw}, ini, discardLogger()).Extract(context.Background())
	require.ErrorIs(t, err, ingest.ErrMissingColumn)
}

func TestFileExtractor_RequiresInputs(t *testing.T) {
	_, err := pipeline.NewFileExtractor(nil, "CCN.ini", discardLogger()).Extract(context.Background())
	require.Error(t, err)

	_, err = pipeline.NewFileExtractor([]string{"raw.csv"}, "", discardLogger()).Extract(context.Background())
	require.Error(t, err)
}

func TestFileExtractor_MissingIniLabelStillRuns(t *testing.T) {
	dir := t.TempDir()
	raw := writeMockRaw(t, dir, "day1.csv", testBase, 5, 0.1, 0.5)
	ini := writeMockIni(t, dir, "Temp Gradient Slope = 10\n")

	in, err := pipeline.NewFileExtractor([]string{raw}, ini, discardLogger()).Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, in.Calibration.Intercept)
}

func TestFileExtractor_BadTimestampsWarn(t *testing.T) {
	dir := t.TempDir()
	raw := writeMockRaw(t, dir, "day1.csv", testBase, 5, 0.1, 0.5)
	f, err := os.OpenFile(raw, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not a time,100,24,22,22.5,26,0,25,23,0.5,5,0.1,1013.25\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	ini := writeMockIni(t, dir, mockIni)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	in, err := pipeline.NewFileExtractor([]string{raw}, ini, logger).Extract(context.Background())
	require.NoError(t, err)

	assert.Len(t, in.Samples, 5)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "unparseable timestamps")
	assert.Contains(t, logs.String(), "rows=1")
}

func TestPipeline_FromFiles(t *testing.T) {
	dir := t.TempDir()
	day1 := writeMockRaw(t, dir, "day1.csv", testBase, 60, 0.1, 0.5)
	day2 := writeMockRaw(t, dir, "day2.csv", testBase.Add(time.Hour), 45, 0.7, 3.5)
	ini := writeMockIni(t, dir, mockIni)

	p := pipeline.New(
		pipeline.NewFileExtractor([]string{day1, day2}, ini, discardLogger()),
		pipeline.DefaultOptions(),
		discardLogger(),
		observability.NewMetricsForTesting(),
		clockwork.NewFakeClockAt(testClock),
	)

	ds, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, ds.Records, 2)
	assert.Equal(t, []domain.Setpoint{0.1, 0.15, 0.25, 0.4, 0.7}, ds.Setpoints)
	assert.InDelta(t, 0.75, ds.Records[1].Completeness, 1e-9)
	assert.False(t, ds.Records[1].Flags.Completeness, "0.75 is not below the limit")
	assert.InDelta(t, 100, ds.Records[0].CorrectedSTP[0.1], 1e-6)
}
