package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ccn-data-etl/internal/adapter/csvout"
	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

func testDataset() domain.Dataset {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	setpoints := []domain.Setpoint{0.1, 0.7}
	var records []domain.Record
	for i := range 2 {
		flags := domain.FlagSet{Completeness: i == 1}
		records = append(records, domain.Record{
			CorrectedBucket: domain.CorrectedBucket{
				Bucket: domain.Bucket{
					Start:        start.Add(time.Duration(i) * time.Hour),
					Width:        time.Hour,
					Setpoints:    setpoints,
					Stats:        map[domain.Setpoint]domain.SetpointStats{0.1: {N: 100, SS: 0.1, Count: 30}},
					Observed:     60 - 30*i,
					Expected:     60,
					Completeness: 1 - 0.5*float64(i),
				},
				Corrected:    map[domain.Setpoint]float64{0.1: 100, 0.7: 400},
				CorrectedSTP: map[domain.Setpoint]float64{0.1: 110, 0.7: math.NaN()},
			},
			Flags:      flags,
			FlagCode:   flags.Code(),
			Provenance: domain.Provenance{RunID: "run-1", ProcessedAt: start},
		})
	}
	return domain.Dataset{RunID: "run-1", Setpoints: setpoints, Width: time.Hour, Records: records}
}

func writeProcessed(t *testing.T, ds domain.Dataset) string {
	t.Helper()
	var b bytes.Buffer
	require.NoError(t, csvout.Encode(&b, ds))
	path := filepath.Join(t.TempDir(), "processed.csv")
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o600))
	return path
}

func TestValidate_PipelineOutputPasses(t *testing.T) {
	table, err := loadCSV(writeProcessed(t, testDataset()))
	require.NoError(t, err)

	assert.Equal(t, []domain.Setpoint{0.1, 0.7}, table.setpoints)
	assert.True(t, validateLayout(table).passed())
	assert.True(t, validateRows(table).passed(), validateRows(table).errors)
}

func TestValidate_FlagCodeMismatch(t *testing.T) {
	ds := testDataset()
	ds.Records[1].FlagCode = 3
	table, err := loadCSV(writeProcessed(t, ds))
	require.NoError(t, err)

	p := validateRows(table)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "flag_code 3")
}

func TestValidate_OutOfOrderRows(t *testing.T) {
	ds := testDataset()
	ds.Records[0], ds.Records[1] = ds.Records[1], ds.Records[0]
	table, err := loadCSV(writeProcessed(t, ds))
	require.NoError(t, err)

	p := validateRows(table)
	require.NotEmpty(t, p.errors)
	assert.Contains(t, p.errors[0], "is not after")
}

func TestValidate_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.csv")
	require.NoError(t, os.WriteFile(path, []byte("Datetime UTC,N(cm-3)_setpt0.1\n2025-06-01 00:00:00,1\n"), 0o600))
	table, err := loadCSV(path)
	require.NoError(t, err)

	assert.False(t, validateLayout(table).passed())
}
