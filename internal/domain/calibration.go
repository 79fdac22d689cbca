package domain

import (
	"sort"
	"time"
)

// Calibration is the linear temperature-gradient to supersaturation relation
// gradient = Slope*ss + Intercept, as stored in the instrument ini file.
type Calibration struct {
	Slope     float64
	Intercept float64
	TGDum     float64 // gradient offset used by the T3 calculation; carried, not applied

	Updated   string    // raw "Last Date Updated" value
	UpdatedAt time.Time // zero when Updated could not be parsed
}

// CalibrationPeriod applies a calibration to samples with From <= t < To.
// A zero To leaves the period open-ended.
type CalibrationPeriod struct {
	From time.Time
	To   time.Time

	Calibration Calibration
	// DriftTo, when set, is linearly interpolated towards across the period.
	DriftTo *Calibration
}

func (p CalibrationPeriod) contains(t time.Time) bool {
	if t.Before(p.From) {
		return false
	}
	return p.To.IsZero() || t.Before(p.To)
}

// at returns the calibration in force at t, interpolating drift if configured.
func (p CalibrationPeriod) at(t time.Time) Calibration {
	if p.DriftTo == nil || p.To.IsZero() || !p.To.After(p.From) {
		return p.Calibration
	}
	frac := float64(t.Sub(p.From)) / float64(p.To.Sub(p.From))
	c := p.Calibration
	c.Slope += (p.DriftTo.Slope - p.Calibration.Slope) * frac
	c.Intercept += (p.DriftTo.Intercept - p.Calibration.Intercept) * frac
	return c
}

// CalibrationHistory resolves the calibration for a timestamp. Periods are
// checked in chronological order; the first match wins and Default covers the
// rest.
type CalibrationHistory struct {
	Default Calibration
	Periods []CalibrationPeriod
}

// NewCalibrationHistory returns a history with periods sorted by start.
func NewCalibrationHistory(def Calibration, periods ...CalibrationPeriod) CalibrationHistory {
	ps := append([]CalibrationPeriod(nil), periods...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].From.Before(ps[j].From) })
	return CalibrationHistory{Default: def, Periods: ps}
}

// For returns the calibration in force at t.
func (h CalibrationHistory) For(t time.Time) Calibration {
	for _, p := range h.Periods {
		if p.contains(t) {
			return p.at(t)
		}
	}
	return h.Default
}
