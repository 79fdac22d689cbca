package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitLine_RecoversKnownLine(t *testing.T) {
	x := []float64{0.1, 0.15, 0.25, 0.4, 0.7}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 10*v + 50
	}

	fit := FitLine(x, y)

	assert.InDelta(t, 10, fit.Slope, 1e-9)
	assert.InDelta(t, 50, fit.Intercept, 1e-9)
}

func TestFitLine_DegenerateX(t *testing.T) {
	fit := FitLine([]float64{0.5, 0.5, 0.5}, []float64{1, 2, 3})
	assert.True(t, math.IsNaN(fit.Slope))
	assert.True(t, math.IsNaN(fit.Intercept))
}

func TestFitLine_LengthMismatch(t *testing.T) {
	fit := FitLine([]float64{1, 2}, []float64{1})
	assert.True(t, math.IsNaN(fit.Slope))
}

func TestCorrectSetpoints(t *testing.T) {
	setpoints := []Setpoint{0.1, 0.15, 0.25, 0.4, 0.7}

	t.Run("evaluates at nominal setpoints", func(t *testing.T) {
		ss := []float64{0.12, 0.17, 0.27, 0.42, 0.72} // overshoot by 0.02
		n := make([]float64, len(ss))
		for i, v := range ss {
			n[i] = 1000*v + 20
		}

		got, fit := CorrectSetpoints(setpoints, ss, n)

		require.Len(t, got, len(setpoints))
		assert.InDelta(t, 1000, fit.Slope, 1e-6)
		for i, sp := range setpoints {
			assert.InDelta(t, 1000*float64(sp)+20, got[i], 1e-6)
		}
	})

	t.Run("negative fitted counts clamp to zero", func(t *testing.T) {
		ss := []float64{0.1, 0.15, 0.25, 0.4, 0.7}
		n := make([]float64, len(ss))
		for i, v := range ss {
			n[i] = 100*v - 20 // negative below ss = 0.2
		}

		got, _ := CorrectSetpoints(setpoints, ss, n)

		assert.Equal(t, 0.0, got[0])
		assert.Equal(t, 0.0, got[1])
		assert.InDelta(t, 5, got[2], 1e-9)
		for _, v := range got {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	})

	t.Run("NaN inputs are sanitised before fitting", func(t *testing.T) {
		ss := []float64{0.1, math.NaN()}
		n := []float64{100, math.NaN()}

		got, fit := CorrectSetpoints([]Setpoint{0.1, 0.7}, ss, n)

		// Fit passes through (0.1, 100) and (0, 0).
		assert.InDelta(t, 1000, fit.Slope, 1e-9)
		assert.InDelta(t, 0, fit.Intercept, 1e-9)
		assert.InDelta(t, 100, got[0], 1e-9)
		assert.InDelta(t, 700, got[1], 1e-9)
	})

	t.Run("degenerate bucket yields NaN", func(t *testing.T) {
		got, _ := CorrectSetpoints([]Setpoint{0.1, 0.7}, []float64{0.5, 0.5}, []float64{10, 20})
		assert.True(t, math.IsNaN(got[0]))
		assert.True(t, math.IsNaN(got[1]))
	})
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, 0.0, sanitize(math.NaN()))
	assert.Equal(t, 1e6, sanitize(math.Inf(1)))
	assert.Equal(t, -1e6, sanitize(math.Inf(-1)))
	assert.Equal(t, 3.5, sanitize(3.5))
}

func TestSTP(t *testing.T) {
	t.Run("identity at standard conditions", func(t *testing.T) {
		assert.InDelta(t, 1234.5, STP(1234.5, 0, StandardPressure), 1e-9)
	})

	t.Run("low pressure raises count", func(t *testing.T) {
		got := STP(1000, 25, 900)
		want := 1000 * (1013.25 / 900) * (298.15 / 273.15)
		assert.InDelta(t, want, got, 1e-9)
	})

	t.Run("NaN propagates", func(t *testing.T) {
		assert.True(t, math.IsNaN(STP(math.NaN(), 25, 900)))
		assert.True(t, math.IsNaN(STP(100, math.NaN(), 900)))
	})
}

func TestCorrect_DoesNotAliasBuckets(t *testing.T) {
	samples := minuteSamples(testBase, 60, 0.1, 100, 0.1)
	buckets, err := Average(samples, DefaultAverageOptions())
	require.NoError(t, err)

	corrected := Correct(buckets)
	require.Len(t, corrected, 1)

	corrected[0].Stats[0.1] = SetpointStats{N: -1}
	corrected[0].Setpoints[0] = 9
	assert.Equal(t, 100.0, buckets[0].Stat(0.1).N)
	assert.Equal(t, Setpoint(0.1), buckets[0].Setpoints[0])
}

func TestCorrect_TwoSetpointBucket(t *testing.T) {
	samples := append(
		minuteSamples(testBase, 30, 0.1, 100, 0.1),
		minuteSamples(testBase.Add(30*time.Minute), 30, 0.7, 700, 0.7)...,
	)
	opts := DefaultAverageOptions()
	opts.Setpoints = []Setpoint{0.1, 0.7}
	buckets, err := Average(samples, opts)
	require.NoError(t, err)

	corrected := Correct(buckets)
	require.Len(t, corrected, 1)
	c := corrected[0]
	assert.InDelta(t, 100, c.Corrected[0.1], 1e-6)
	assert.InDelta(t, 700, c.Corrected[0.7], 1e-6)
	assert.InDelta(t, STP(700, 25, 900), c.CorrectedSTP[0.7], 1e-6)
}
