package domain

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// STP reference conditions.
const (
	StandardPressure    = 1013.25 // hPa
	StandardTemperature = 273.15  // K

	kelvinOffset = 273.15

	// nonFiniteBound replaces ±Inf before fitting.
	nonFiniteBound = 1e6
)

// Fit is the per-bucket regression count = Slope*ss + Intercept.
type Fit struct {
	Slope     float64
	Intercept float64
}

// At evaluates the line at x.
func (f Fit) At(x float64) float64 {
	return f.Slope*x + f.Intercept
}

// CorrectedBucket is a Bucket with setpoint-corrected counts.
type CorrectedBucket struct {
	Bucket

	Fit          Fit
	Corrected    map[Setpoint]float64 // fitted count at the nominal setpoint, floored at 0
	CorrectedSTP map[Setpoint]float64 // Corrected normalised to STP
}

// sanitize maps NaN to 0 and ±Inf to ±nonFiniteBound so a fit never sees
// non-finite input.
func sanitize(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return nonFiniteBound
	case math.IsInf(v, -1):
		return -nonFiniteBound
	default:
		return v
	}
}

// FitLine fits y = a*x + b by ordinary least squares. Zero variance in x
// yields a NaN slope and intercept rather than an error.
func FitLine(x, y []float64) Fit {
	if len(x) == 0 || len(x) != len(y) {
		return Fit{Slope: math.NaN(), Intercept: math.NaN()}
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	return Fit{Slope: beta, Intercept: alpha}
}

// CorrectSetpoints fits counts against computed supersaturation across all
// setpoints of one bucket and evaluates the line at the nominal setpoints.
// Negative fitted counts are floored at zero. The three slices must be the
// same length.
func CorrectSetpoints(setpoints []Setpoint, ss, counts []float64) ([]float64, Fit) {
	x := make([]float64, len(ss))
	y := make([]float64, len(counts))
	for i := range ss {
		x[i] = sanitize(ss[i])
	}
	for i := range counts {
		y[i] = sanitize(counts[i])
	}

	fit := FitLine(x, y)
	out := make([]float64, len(setpoints))
	for i, sp := range setpoints {
		v := fit.At(sanitize(float64(sp)))
		if v < 0 {
			v = 0
		}
		out[i] = v
	}
	return out, fit
}

// STP converts a count measured at tSampleC (°C) and pSampleHPa to standard
// temperature and pressure.
func STP(count, tSampleC, pSampleHPa float64) float64 {
	tActual := tSampleC + kelvinOffset
	return count * (StandardPressure / pSampleHPa) * (tActual / StandardTemperature)
}

// Correct applies setpoint correction and STP normalisation to every bucket.
// STP uses the bucket's mean sample temperature and pressure.
func Correct(buckets []Bucket) []CorrectedBucket {
	out := make([]CorrectedBucket, len(buckets))
	for i, b := range buckets {
		ss := make([]float64, len(b.Setpoints))
		n := make([]float64, len(b.Setpoints))
		for j, sp := range b.Setpoints {
			st := b.Stat(sp)
			ss[j] = st.SS
			n[j] = st.N
		}
		fitted, fit := CorrectSetpoints(b.Setpoints, ss, n)

		cb := CorrectedBucket{
			Bucket:       b.clone(),
			Fit:          fit,
			Corrected:    make(map[Setpoint]float64, len(b.Setpoints)),
			CorrectedSTP: make(map[Setpoint]float64, len(b.Setpoints)),
		}
		for j, sp := range b.Setpoints {
			cb.Corrected[sp] = fitted[j]
			cb.CorrectedSTP[sp] = STP(fitted[j], b.Means.TSample, b.Means.PSample)
		}
		out[i] = cb
	}
	return out
}
