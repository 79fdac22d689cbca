package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// FlagThresholds are the limits behind the seven QC flags.
type FlagThresholds struct {
	Completeness   float64 // flag below this fraction
	FlowPercent    float64 // flag when |Q - mean Q| / mean Q * 100 exceeds this
	Concentration  float64 // flag when any STP count exceeds this (cm-3)
	InletCeiling   float64 // flag when T1 exceeds this (°C)
	InletStability float64 // flag when |T1 - mean T1| exceeds this (°C)
}

// DefaultFlagThresholds returns the operational limits.
func DefaultFlagThresholds() FlagThresholds {
	return FlagThresholds{
		Completeness:   0.75,
		FlowPercent:    5,
		Concentration:  5000,
		InletCeiling:   30,
		InletStability: 5,
	}
}

// FlagSet holds the seven QC flags of one bucket. Field order is bit order,
// most significant first.
type FlagSet struct {
	Setpoint       bool // majority of samples deviate from their setpoint
	Completeness   bool // too few samples in the window
	Flow           bool // sample flow off its campaign mean
	Concentration  bool // an STP count above the ceiling
	InletCeiling   bool // T1 too warm
	InletOrdering  bool // T1 warmer than the inlet
	InletStability bool // T1 off its campaign mean
}

// FlagNames lists the flag column names in bit order.
var FlagNames = []string{
	"ss_flag",
	"integrity_flag",
	"Q_flag",
	"N_flag",
	"T1_flag1",
	"T1_flag2",
	"T1_flag3",
}

// Values returns the flags in bit order.
func (f FlagSet) Values() []bool {
	return []bool{
		f.Setpoint,
		f.Completeness,
		f.Flow,
		f.Concentration,
		f.InletCeiling,
		f.InletOrdering,
		f.InletStability,
	}
}

// Bits renders the flags MSB-first as a string of 0 and 1.
func (f FlagSet) Bits() string {
	var b strings.Builder
	for _, v := range f.Values() {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Code packs the flags into one integer by reading Bits as base 2.
func (f FlagSet) Code() int {
	code, _ := strconv.ParseInt(f.Bits(), 2, 64)
	return int(code)
}

// Any reports whether at least one flag is raised.
func (f FlagSet) Any() bool {
	return f.Code() != 0
}

// Provenance stamps a processed record with how it was produced.
type Provenance struct {
	RunID       string
	ProcessedAt time.Time
	ParamDate   string // calibration "Last Date Updated"
	Slope       float64
	Intercept   float64
}

// Record is one fully processed bucket.
type Record struct {
	CorrectedBucket
	Flags      FlagSet
	FlagCode   int
	Provenance Provenance
}

// AssembleFlags evaluates the QC flags for every bucket. Flow and T1
// stability are measured against means taken over all buckets.
func AssembleFlags(buckets []CorrectedBucket, th FlagThresholds) []FlagSet {
	q := make([]float64, len(buckets))
	t1 := make([]float64, len(buckets))
	for i, b := range buckets {
		q[i] = b.Means.QSample
		t1[i] = b.Means.T1
	}
	qMean := nanMean(q)
	t1Mean := nanMean(t1)

	out := make([]FlagSet, len(buckets))
	for i, b := range buckets {
		out[i] = FlagSet{
			Setpoint:       math.RoundToEven(b.UnreliableFraction) == 1,
			Completeness:   lt(b.Completeness, th.Completeness),
			Flow:           gt(math.Abs((b.Means.QSample-qMean)/qMean*100), th.FlowPercent),
			Concentration:  anyAbove(b, th.Concentration),
			InletCeiling:   gt(b.Means.T1, th.InletCeiling),
			InletOrdering:  gt(b.Means.T1, b.Means.TInlet),
			InletStability: gt(math.Abs(b.Means.T1-t1Mean), th.InletStability),
		}
	}
	return out
}

func anyAbove(b CorrectedBucket, limit float64) bool {
	for _, sp := range b.Setpoints {
		if gt(b.CorrectedSTP[sp], limit) {
			return true
		}
	}
	return false
}
