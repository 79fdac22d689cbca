package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFlagSet_Code(t *testing.T) {
	cases := []struct {
		name  string
		flags FlagSet
		bits  string
		code  int
	}{
		{name: "none", flags: FlagSet{}, bits: "0000000", code: 0},
		{name: "setpoint only", flags: FlagSet{Setpoint: true}, bits: "1000000", code: 64},
		{name: "setpoint and flow", flags: FlagSet{Setpoint: true, Flow: true}, bits: "1010000", code: 80},
		{name: "stability only", flags: FlagSet{InletStability: true}, bits: "0000001", code: 1},
		{
			name:  "all",
			flags: FlagSet{true, true, true, true, true, true, true},
			bits:  "1111111",
			code:  127,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.bits, tc.flags.Bits())
			assert.Equal(t, tc.code, tc.flags.Code())
			assert.Equal(t, tc.code != 0, tc.flags.Any())
		})
	}
}

func TestFlagNames_MatchBitCount(t *testing.T) {
	assert.Len(t, FlagNames, len(FlagSet{}.Values()))
}

func flagBucket(start time.Time) CorrectedBucket {
	return CorrectedBucket{
		Bucket: Bucket{
			Start:        start,
			Setpoints:    []Setpoint{0.1, 0.7},
			Completeness: 1,
			Means: Means{
				QSample: 0.5,
				T1:      22,
				TInlet:  24,
			},
		},
		CorrectedSTP: map[Setpoint]float64{0.1: 100, 0.7: 800},
	}
}

func TestAssembleFlags(t *testing.T) {
	th := DefaultFlagThresholds()

	t.Run("clean buckets raise nothing", func(t *testing.T) {
		flags := AssembleFlags([]CorrectedBucket{flagBucket(testBase), flagBucket(testBase.Add(time.Hour))}, th)
		for _, f := range flags {
			assert.Equal(t, 0, f.Code())
		}
	})

	t.Run("each threshold", func(t *testing.T) {
		b := []CorrectedBucket{
			flagBucket(testBase),
			flagBucket(testBase),
			flagBucket(testBase),
			flagBucket(testBase),
			flagBucket(testBase),
			flagBucket(testBase),
		}
		b[0].UnreliableFraction = 0.8
		b[1].Completeness = 0.5
		b[2].CorrectedSTP[0.7] = 5001
		b[3].Means.T1 = 31
		b[3].Means.TInlet = 35
		b[4].Means.TInlet = 20
		b[5].Means.QSample = 0.6

		flags := AssembleFlags(b, th)

		assert.True(t, flags[0].Setpoint)
		assert.True(t, flags[1].Completeness)
		assert.True(t, flags[2].Concentration)
		assert.True(t, flags[3].InletCeiling)
		assert.True(t, flags[3].InletStability, "31 is more than 5 above the campaign mean")
		assert.False(t, flags[3].InletOrdering)
		assert.True(t, flags[4].InletOrdering)
		assert.True(t, flags[5].Flow)
		assert.False(t, flags[0].Flow)
	})

	t.Run("half unreliable rounds to even", func(t *testing.T) {
		b := flagBucket(testBase)
		b.UnreliableFraction = 0.5
		assert.False(t, AssembleFlags([]CorrectedBucket{b}, th)[0].Setpoint)
	})

	t.Run("NaN never flags", func(t *testing.T) {
		b := flagBucket(testBase)
		b.Completeness = math.NaN()
		b.Means.T1 = math.NaN()
		b.Means.QSample = math.NaN()
		b.CorrectedSTP[0.1] = math.NaN()
		f := AssembleFlags([]CorrectedBucket{b}, th)[0]
		assert.Equal(t, 0, f.Code())
	})
}
