package kafka

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ccn-data-etl/internal/config"
	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

var testStart = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

func testRecord() domain.Record {
	return domain.Record{
		CorrectedBucket: domain.CorrectedBucket{
			Bucket: domain.Bucket{
				Start:     testStart,
				Width:     time.Hour,
				Setpoints: []domain.Setpoint{0.1, 0.7},
				Stats: map[domain.Setpoint]domain.SetpointStats{
					0.1: {N: 120, SS: 0.11, Gradient: 1.1, T1: 22, T2: 23.1, Count: 30},
				},
				Means:        domain.Means{TInlet: 24, T1: 22, QSample: 0.5, PSample: math.NaN()},
				Observed:     45,
				Expected:     60,
				Completeness: 0.75,
			},
			Fit:          domain.Fit{Slope: 100, Intercept: 10},
			Corrected:    map[domain.Setpoint]float64{0.1: 20, 0.7: 80},
			CorrectedSTP: map[domain.Setpoint]float64{0.1: 21, 0.7: math.NaN()},
		},
		Flags:    domain.FlagSet{Completeness: true},
		FlagCode: 32,
		Provenance: domain.Provenance{
			RunID:       "run-1",
			ProcessedAt: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
			ParamDate:   "2025-03-14",
			Slope:       10,
			Intercept:   0.2,
		},
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testRecord())
	require.NoError(t, err)

	assert.Equal(t, []byte("2025-06-01T03:00:00Z"), msg.Key)

	headers := make(map[string]string)
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "run-1", headers["run_id"])
	assert.Equal(t, "2025-07-01T12:00:00Z", headers["processed_at"])
	assert.Equal(t, "32", headers["flag_code"])

	var got BucketMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(3600), got.WidthSeconds)
	assert.Equal(t, 45, got.Observed)
	require.NotNil(t, got.Completeness)
	assert.Equal(t, 0.75, *got.Completeness)
	assert.True(t, got.Flags["integrity_flag"])
	assert.False(t, got.Flags["ss_flag"])
	assert.Len(t, got.Flags, len(domain.FlagNames))
	assert.Equal(t, "2025-03-14", got.Provenance.ParamDate)

	require.Len(t, got.Setpoints, 2)
	assert.Equal(t, 0.1, got.Setpoints[0].Setpoint)
	assert.Equal(t, 30, got.Setpoints[0].Count)
	require.NotNil(t, got.Setpoints[0].CorrectedSTP)
	assert.Equal(t, 21.0, *got.Setpoints[0].CorrectedSTP)
}

func TestSerializeToMessage_NonFiniteIsNull(t *testing.T) {
	msg, err := serializeToMessage(testRecord())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &raw))

	means := raw["means"].(map[string]any)
	assert.Nil(t, means["p_sample"])

	setpoints := raw["setpoints"].([]any)
	high := setpoints[1].(map[string]any)
	assert.Nil(t, high["n"], "no 0.7 samples in the bucket")
	assert.Nil(t, high["corrected_stp"])
	assert.Equal(t, 80.0, high["corrected"])
	assert.Equal(t, 0.0, high["count"])
}

func TestNewWriter_UsesBatchSettings(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers:       []string{"localhost:9092"},
		KafkaSinkTopic:     "ccn-processed",
		BatchSize:          25,
		BatchFlushInterval: 250 * time.Millisecond,
	}
	w := NewWriter(cfg, nil)
	defer w.Close()

	assert.Equal(t, "ccn-processed", w.writer.Topic)
	assert.Equal(t, 25, w.writer.BatchSize)
	assert.Equal(t, 250*time.Millisecond, w.writer.BatchTimeout)
}
