package pipeline

import (
	"time"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

// Input is everything a run reads before transforming.
type Input struct {
	Samples     []domain.RawSample
	Calibration domain.Calibration
	// Setpoints used when Options names none. Empty means discover them from
	// the samples.
	Setpoints []domain.Setpoint

	Duplicates int
}

// Options configures the transform.
type Options struct {
	Average        domain.AverageOptions
	Periods        []domain.PeriodSetpoints
	Calibrations   []domain.CalibrationPeriod
	DeviationLimit float64
	Thresholds     domain.FlagThresholds

	// DiscoverSetpoints ignores Input.Setpoints and Average.Setpoints and
	// stratifies by the distinct reported setpoints.
	DiscoverSetpoints bool
}

// DefaultOptions returns hourly averaging with the operational flag limits.
func DefaultOptions() Options {
	return Options{
		Average:        domain.DefaultAverageOptions(),
		DeviationLimit: domain.DefaultDeviationLimit,
		Thresholds:     domain.DefaultFlagThresholds(),
	}
}

// Stats summarises a transform for logging and metrics.
type Stats struct {
	Unreliable int
}

// Transform annotates, averages, corrects and flags the input samples.
// When periods are configured each period is averaged with its own setpoints.
func Transform(in Input, opts Options, runID string, processedAt time.Time) (domain.Dataset, Stats, error) {
	history := domain.NewCalibrationHistory(in.Calibration, opts.Calibrations...)
	annotated := domain.Annotate(in.Samples, history, opts.DeviationLimit)

	var stats Stats
	for _, s := range annotated {
		if s.Unreliable {
			stats.Unreliable++
		}
	}

	avg := opts.Average
	switch {
	case opts.DiscoverSetpoints:
		avg.Setpoints = nil
	case len(avg.Setpoints) == 0:
		avg.Setpoints = in.Setpoints
	}

	var (
		buckets []domain.Bucket
		err     error
	)
	if len(opts.Periods) > 0 {
		buckets, err = domain.AveragePeriods(annotated, opts.Periods, avg)
	} else {
		buckets, err = domain.Average(annotated, avg)
	}
	if err != nil {
		return domain.Dataset{}, stats, err
	}

	corrected := domain.Correct(buckets)
	flags := domain.AssembleFlags(corrected, opts.Thresholds)

	records := make([]domain.Record, len(corrected))
	seen := make([]domain.Setpoint, 0)
	for i, cb := range corrected {
		cal := history.For(cb.Start)
		records[i] = domain.Record{
			CorrectedBucket: cb,
			Flags:           flags[i],
			FlagCode:        flags[i].Code(),
			Provenance: domain.Provenance{
				RunID:       runID,
				ProcessedAt: processedAt,
				ParamDate:   paramDate(in.Calibration),
				Slope:       cal.Slope,
				Intercept:   cal.Intercept,
			},
		}
		seen = append(seen, cb.Setpoints...)
	}

	return domain.Dataset{
		RunID:     runID,
		Setpoints: domain.NormalizeSetpoints(seen),
		Width:     avg.Width,
		Native:    avg.Native,
		Records:   records,
	}, stats, nil
}

func paramDate(c domain.Calibration) string {
	if c.UpdatedAt.IsZero() {
		return c.Updated
	}
	return c.UpdatedAt.Format(time.DateOnly)
}
