package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ccn-data-etl/internal/config"
	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

// Writer publishes one message per processed bucket to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// Load serializes every record of ds and publishes them in a single
// WriteMessages call. Messages are keyed by bucket start so a compacted topic
// keeps the latest processing of each bucket.
func (w *Writer) Load(ctx context.Context, ds domain.Dataset) error {
	if len(ds.Records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(ds.Records))
	for i := range ds.Records {
		msg, err := serializeToMessage(ds.Records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d buckets: %w", len(msgs), err)
	}
	w.logger.Info("buckets published", "topic", w.writer.Topic, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// BucketMessage is the JSON payload of one published bucket. Missing values
// are null.
type BucketMessage struct {
	RunID              string            `json:"run_id"`
	Start              time.Time         `json:"start"`
	WidthSeconds       int64             `json:"width_seconds"`
	Observed           int               `json:"observed"`
	Expected           int               `json:"expected"`
	Completeness       *float64          `json:"completeness"`
	UnreliableFraction *float64          `json:"ss_variation"`
	Means              MeansMessage      `json:"means"`
	Setpoints          []SetpointMessage `json:"setpoints"`
	FitSlope           *float64          `json:"fit_slope"`
	FitIntercept       *float64          `json:"fit_intercept"`
	Flags              map[string]bool   `json:"flags"`
	FlagCode           int               `json:"flag_code"`
	Provenance         ProvenanceMessage `json:"provenance"`
}

// MeansMessage holds the window-wide channel means.
type MeansMessage struct {
	TInlet  *float64 `json:"t_inlet"`
	T1      *float64 `json:"t1"`
	T2      *float64 `json:"t2"`
	T3      *float64 `json:"t3"`
	TSample *float64 `json:"t_sample"`
	QSample *float64 `json:"q_sample"`
	QSheath *float64 `json:"q_sheath"`
	PSample *float64 `json:"p_sample"`
}

// SetpointMessage is one setpoint's family within a bucket.
type SetpointMessage struct {
	Setpoint     float64  `json:"setpoint"`
	N            *float64 `json:"n"`
	SS           *float64 `json:"ss"`
	Gradient     *float64 `json:"gradient"`
	Count        int      `json:"count"`
	Corrected    *float64 `json:"corrected"`
	CorrectedSTP *float64 `json:"corrected_stp"`
}

// ProvenanceMessage records how the bucket was produced.
type ProvenanceMessage struct {
	ProcessedAt time.Time `json:"processed_at"`
	ParamDate   string    `json:"param_date"`
	Slope       *float64  `json:"ss_slope"`
	Intercept   *float64  `json:"ss_int"`
}

func toMessage(r domain.Record) BucketMessage {
	m := r.Means
	msg := BucketMessage{
		RunID:              r.Provenance.RunID,
		Start:              r.Start.UTC(),
		WidthSeconds:       int64(r.Width / time.Second),
		Observed:           r.Observed,
		Expected:           r.Expected,
		Completeness:       ptr(r.Completeness),
		UnreliableFraction: ptr(r.UnreliableFraction),
		Means: MeansMessage{
			TInlet:  ptr(m.TInlet),
			T1:      ptr(m.T1),
			T2:      ptr(m.T2),
			T3:      ptr(m.T3),
			TSample: ptr(m.TSample),
			QSample: ptr(m.QSample),
			QSheath: ptr(m.QSheath),
			PSample: ptr(m.PSample),
		},
		FitSlope:     ptr(r.Fit.Slope),
		FitIntercept: ptr(r.Fit.Intercept),
		Flags:        make(map[string]bool, len(domain.FlagNames)),
		FlagCode:     r.FlagCode,
		Provenance: ProvenanceMessage{
			ProcessedAt: r.Provenance.ProcessedAt.UTC(),
			ParamDate:   r.Provenance.ParamDate,
			Slope:       ptr(r.Provenance.Slope),
			Intercept:   ptr(r.Provenance.Intercept),
		},
	}
	for _, sp := range r.Setpoints {
		st := r.Stat(sp)
		msg.Setpoints = append(msg.Setpoints, SetpointMessage{
			Setpoint:     float64(sp),
			N:            ptr(st.N),
			SS:           ptr(st.SS),
			Gradient:     ptr(st.Gradient),
			Count:        st.Count,
			Corrected:    lookup(r.Corrected, sp),
			CorrectedSTP: lookup(r.CorrectedSTP, sp),
		})
	}
	for i, v := range r.Flags.Values() {
		msg.Flags[domain.FlagNames[i]] = v
	}
	return msg
}

// serializeToMessage marshals a processed record into a Kafka message.
func serializeToMessage(r domain.Record) (kafkago.Message, error) {
	data, err := json.Marshal(toMessage(r))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize bucket %s: %w", r.Start.Format(time.RFC3339), err)
	}
	return kafkago.Message{
		Key:   []byte(r.Start.UTC().Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(r.Provenance.RunID)},
			{Key: "processed_at", Value: []byte(r.Provenance.ProcessedAt.UTC().Format(time.RFC3339))},
			{Key: "flag_code", Value: []byte(strconv.Itoa(r.FlagCode))},
		},
	}, nil
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func lookup(m map[domain.Setpoint]float64, sp domain.Setpoint) *float64 {
	v, ok := m[sp]
	if !ok {
		return nil
	}
	return ptr(v)
}
