package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
	"github.com/couchcryptid/ccn-data-etl/internal/observability"
)

// Extractor reads the raw inputs of one run.
type Extractor interface {
	Extract(ctx context.Context) (Input, error)
}

// Loader writes a processed dataset to a destination.
type Loader interface {
	Load(ctx context.Context, ds domain.Dataset) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, ds domain.Dataset) error

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, ds domain.Dataset) error { return f(ctx, ds) }

type sink struct {
	name   string
	loader Loader
}

// Pipeline runs extract, transform and load once per call to Run.
type Pipeline struct {
	extractor Extractor
	sinks     []sink
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	newRunID  func() string
}

// New creates a Pipeline with the given extractor and observability. Sinks are
// added with AddLoader.
func New(e Extractor, opts Options, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Pipeline {
	return &Pipeline{
		extractor: e,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		newRunID:  uuid.NewString,
	}
}

// AddLoader registers a sink. Sinks run in registration order.
func (p *Pipeline) AddLoader(name string, l Loader) {
	p.sinks = append(p.sinks, sink{name: name, loader: l})
}

// Run extracts the inputs, transforms them and hands the dataset to every
// sink. Nothing is loaded unless the transform succeeds. A failing sink does
// not stop the others; their errors are joined.
func (p *Pipeline) Run(ctx context.Context) (domain.Dataset, error) {
	start := p.clock.Now()
	runID := p.newRunID()
	logger := p.logger.With("run_id", runID)

	in, err := p.extractor.Extract(ctx)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("extract: %w", err)
	}
	p.metrics.SamplesRead.Add(float64(len(in.Samples)))
	p.metrics.SamplesDuplicate.Add(float64(in.Duplicates))
	logger.Info("inputs extracted",
		"samples", humanize.Comma(int64(len(in.Samples))),
		"duplicates", in.Duplicates,
		"calibration_slope", in.Calibration.Slope,
		"calibration_intercept", in.Calibration.Intercept,
	)

	ds, stats, err := Transform(in, p.opts, runID, p.clock.Now().UTC())
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("transform: %w", err)
	}
	p.observe(ds, stats)
	logger.Info("dataset built",
		"buckets", len(ds.Records),
		"setpoints", len(ds.Setpoints),
		"unreliable_samples", humanize.Comma(int64(stats.Unreliable)),
	)

	if err := ctx.Err(); err != nil {
		return domain.Dataset{}, err
	}

	var errs []error
	for _, s := range p.sinks {
		if err := s.loader.Load(ctx, ds); err != nil {
			p.metrics.SinkErrors.WithLabelValues(s.name).Inc()
			logger.Error("load failed", "sink", s.name, "error", err)
			errs = append(errs, fmt.Errorf("load %s: %w", s.name, err))
			continue
		}
		logger.Info("dataset loaded", "sink", s.name)
	}
	if err := errors.Join(errs...); err != nil {
		return ds, err
	}

	elapsed := p.clock.Since(start)
	p.metrics.RunDuration.Observe(elapsed.Seconds())
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	logger.Info("run complete", "elapsed", elapsed.String(), "buckets", len(ds.Records))
	return ds, nil
}

func (p *Pipeline) observe(ds domain.Dataset, stats Stats) {
	p.metrics.SamplesUnreliable.Add(float64(stats.Unreliable))
	p.metrics.BucketsEmitted.Add(float64(len(ds.Records)))
	for _, r := range ds.Records {
		p.metrics.BucketsComplete.Observe(r.Completeness)
	}
	for name, n := range ds.Flagged() {
		p.metrics.BucketsFlagged.WithLabelValues(name).Add(float64(n))
	}
}
