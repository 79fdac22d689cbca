package domain

import "math"

// DefaultDeviationLimit is the percent deviation above which a sample's
// setpoint is considered unreliable.
const DefaultDeviationLimit = 20.0

// Gradient returns the column temperature gradient from the TEC1 and TEC2
// temperatures.
func Gradient(t1, t2 float64) float64 {
	return (t2 - t1) * 2
}

// Supersaturation inverts the calibration: (gradient - intercept) / slope.
// A zero slope yields ±Inf or NaN.
func Supersaturation(gradient float64, cal Calibration) float64 {
	return (gradient - cal.Intercept) / cal.Slope
}

// Deviation is the percent difference between the computed and reported
// supersaturation relative to their mean. It is NaN when the mean is zero.
func Deviation(computed, reported float64) float64 {
	mean := (computed + reported) / 2
	if mean == 0 || math.IsNaN(mean) {
		return math.NaN()
	}
	return 100 * math.Abs(computed-reported) / mean
}

// Unreliable reports whether a deviation exceeds limit. NaN is never unreliable.
func Unreliable(deviation, limit float64) bool {
	return gt(deviation, limit)
}

// Annotate applies the supersaturation model to every sample, resolving the
// calibration per timestamp. The input slice is not modified.
func Annotate(samples []RawSample, history CalibrationHistory, limit float64) []AnnotatedSample {
	out := make([]AnnotatedSample, len(samples))
	for i, s := range samples {
		cal := history.For(s.Time)
		g := Gradient(s.T1, s.T2)
		ss := Supersaturation(g, cal)
		dev := Deviation(ss, s.SetpointSS)
		out[i] = AnnotatedSample{
			RawSample:   s,
			Gradient:    g,
			SS:          ss,
			Deviation:   dev,
			Unreliable:  Unreliable(dev, limit),
			Calibration: cal,
		}
	}
	return out
}
