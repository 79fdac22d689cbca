package domain

import (
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
)

// RawSample is one per-minute record from the counter. Missing cells are NaN.
type RawSample struct {
	Time time.Time

	N float64 // particle number concentration (cm-3)

	TInlet  float64 // inlet temperature (°C)
	T1      float64 // TEC 1 (°C)
	T2      float64 // TEC 2 (°C)
	T3      float64 // TEC 3 (°C)
	TSample float64 // sample temperature (°C)
	TOPC    float64 // OPC temperature (°C)
	TNafion float64 // nafion temperature (°C)

	QSample float64 // sample flow (L/min)
	QSheath float64 // sheath flow (L/min)
	PSample float64 // sample pressure (hPa)

	SetpointSS float64 // reported supersaturation setpoint (%)
	TGSetpoint float64 // temperature gradient setpoint (°C)
}

// AnnotatedSample is a RawSample with the supersaturation model applied.
type AnnotatedSample struct {
	RawSample

	Gradient   float64 // computed temperature gradient (°C)
	SS         float64 // computed supersaturation (%)
	Deviation  float64 // percent deviation between SS and SetpointSS; NaN when undefined
	Unreliable bool    // Deviation above the limit

	Calibration Calibration
}

// Setpoint is a nominal supersaturation (%) the instrument is told to hold.
type Setpoint float64

// String renders the setpoint the way it appears in column names, e.g. "0.15".
func (s Setpoint) String() string {
	return strconv.FormatFloat(float64(s), 'f', -1, 64)
}

// Valid reports whether x carries data, i.e. is neither NaN nor infinite.
func Valid(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// nanMean is the arithmetic mean of the non-NaN values, NaN when there are none.
func nanMean(values []float64) float64 {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return math.NaN()
	}
	return stat.Mean(kept, nil)
}

// gt is x > limit with NaN on either side evaluating to false.
func gt(x, limit float64) bool {
	if math.IsNaN(x) || math.IsNaN(limit) {
		return false
	}
	return x > limit
}

// lt is x < limit with NaN on either side evaluating to false.
func lt(x, limit float64) bool {
	if math.IsNaN(x) || math.IsNaN(limit) {
		return false
	}
	return x < limit
}
