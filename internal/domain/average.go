package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrOverlappingPeriods is returned when setpoint periods share any instant.
	ErrOverlappingPeriods = errors.New("setpoint periods overlap")
	// ErrInvalidWidth is returned for a non-positive averaging or native width.
	ErrInvalidWidth = errors.New("averaging width must be a positive multiple of the native resolution")
	// ErrNoSetpoints is returned when samples exist but no setpoint is configured or reported.
	ErrNoSetpoints = errors.New("no setpoints to stratify by")
	// ErrUnalignedPeriod is returned when a setpoint period boundary falls inside an averaging window.
	ErrUnalignedPeriod = errors.New("setpoint period not aligned to averaging windows")
)

// setpointTolerance absorbs float noise when matching a reported setpoint to a
// configured one.
const setpointTolerance = 1e-9

// AverageOptions controls stratified time averaging.
type AverageOptions struct {
	Width  time.Duration // bucket width, default 1h
	Native time.Duration // native sample spacing, default 1m

	// Setpoints to stratify by. Empty means every distinct reported setpoint.
	Setpoints []Setpoint

	// ExcludeUnreliable drops samples flagged Unreliable from the per-setpoint means.
	ExcludeUnreliable bool

	// StableSetpoint drops samples whose reported setpoint differs from the
	// preceding sample before windowing.
	StableSetpoint bool
}

// DefaultAverageOptions returns hourly buckets over minute data with
// unreliable samples excluded and the stability filter off.
func DefaultAverageOptions() AverageOptions {
	return AverageOptions{
		Width:             time.Hour,
		Native:            time.Minute,
		ExcludeUnreliable: true,
	}
}

// Expected is the number of native samples in a fully populated bucket.
func (o AverageOptions) Expected() int {
	return int(o.Width / o.Native)
}

func (o AverageOptions) validate() error {
	if o.Width <= 0 || o.Native <= 0 || o.Width < o.Native || o.Width%o.Native != 0 {
		return fmt.Errorf("%w: width=%s native=%s", ErrInvalidWidth, o.Width, o.Native)
	}
	return nil
}

// SetpointStats is the family of means for one setpoint within a bucket.
type SetpointStats struct {
	N        float64 // mean concentration (cm-3)
	SS       float64 // mean computed supersaturation (%)
	Gradient float64 // mean computed gradient (°C)
	T1       float64
	T2       float64
	Count    int // qualifying samples
}

// emptyStats is the all-NaN family of a setpoint with no qualifying samples.
func emptyStats() SetpointStats {
	nan := math.NaN()
	return SetpointStats{N: nan, SS: nan, Gradient: nan, T1: nan, T2: nan}
}

// Means holds the window-wide NaN-skipping means of each channel, over all
// samples in the window regardless of setpoint.
type Means struct {
	N          float64
	TInlet     float64
	T1         float64
	T2         float64
	T3         float64
	TSample    float64
	TOPC       float64
	TNafion    float64
	QSample    float64
	QSheath    float64
	PSample    float64
	SetpointSS float64
	TGSetpoint float64
	Gradient   float64
	SS         float64
	Deviation  float64
}

// Bucket is one averaging window.
type Bucket struct {
	Start time.Time
	Width time.Duration

	Setpoints []Setpoint
	Stats     map[Setpoint]SetpointStats
	Means     Means

	Observed     int
	Expected     int
	Completeness float64 // Observed / Expected, in [0,1]

	// UnreliableFraction is the share of window samples flagged Unreliable.
	UnreliableFraction float64
}

// Stat returns the family for s, all-NaN when s has no data in the bucket.
func (b Bucket) Stat(s Setpoint) SetpointStats {
	if st, ok := b.Stats[s]; ok {
		return st
	}
	return emptyStats()
}

func (b Bucket) clone() Bucket {
	c := b
	c.Setpoints = append([]Setpoint(nil), b.Setpoints...)
	c.Stats = make(map[Setpoint]SetpointStats, len(b.Stats))
	for k, v := range b.Stats {
		c.Stats[k] = v
	}
	return c
}

// DiscoverSetpoints returns the sorted distinct reported setpoints, ignoring NaN.
func DiscoverSetpoints(samples []AnnotatedSample) []Setpoint {
	seen := make(map[Setpoint]struct{})
	for _, s := range samples {
		if math.IsNaN(s.SetpointSS) {
			continue
		}
		seen[Setpoint(s.SetpointSS)] = struct{}{}
	}
	return sortedSetpoints(seen)
}

// NormalizeSetpoints sorts and de-duplicates a setpoint list.
func NormalizeSetpoints(in []Setpoint) []Setpoint {
	seen := make(map[Setpoint]struct{}, len(in))
	for _, s := range in {
		seen[s] = struct{}{}
	}
	return sortedSetpoints(seen)
}

func sortedSetpoints(set map[Setpoint]struct{}) []Setpoint {
	out := make([]Setpoint, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Average groups samples into buckets of opts.Width and computes per-setpoint
// means and completeness. Only windows holding at least one sample are
// returned, in chronological order.
func Average(samples []AnnotatedSample, opts AverageOptions) ([]Bucket, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	sorted := sortedByTime(samples)
	if opts.StableSetpoint {
		sorted = stableOnly(sorted)
	}

	setpoints := NormalizeSetpoints(opts.Setpoints)
	if len(setpoints) == 0 {
		setpoints = DiscoverSetpoints(sorted)
	}
	if len(sorted) > 0 && len(setpoints) == 0 {
		return nil, ErrNoSetpoints
	}

	var buckets []Bucket
	for start := 0; start < len(sorted); {
		windowStart := sorted[start].Time.UTC().Truncate(opts.Width)
		end := start
		for end < len(sorted) && sorted[end].Time.UTC().Truncate(opts.Width).Equal(windowStart) {
			end++
		}
		buckets = append(buckets, buildBucket(windowStart, sorted[start:end], setpoints, opts))
		start = end
	}
	return buckets, nil
}

// PeriodSetpoints assigns a setpoint list to the inclusive range [From, To].
type PeriodSetpoints struct {
	From      time.Time
	To        time.Time
	Setpoints []Setpoint
}

// CheckAligned reports whether p starts on a window boundary and ends on the
// last native sample of a window, so no window is shared with another period.
func (p PeriodSetpoints) CheckAligned(opts AverageOptions) error {
	from, end := p.From.UTC(), p.To.UTC().Add(opts.Native)
	if !from.Equal(from.Truncate(opts.Width)) || !end.Equal(end.Truncate(opts.Width)) {
		return fmt.Errorf("%w: %s - %s with width %s", ErrUnalignedPeriod,
			p.From.Format(time.RFC3339), p.To.Format(time.RFC3339), opts.Width)
	}
	return nil
}

// AveragePeriods averages each period independently with its own setpoints
// and concatenates the results chronologically. A period without setpoints
// uses opts.Setpoints. Periods must not overlap and must be aligned to the
// averaging windows.
func AveragePeriods(samples []AnnotatedSample, periods []PeriodSetpoints, opts AverageOptions) ([]Bucket, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ps := append([]PeriodSetpoints(nil), periods...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].From.Before(ps[j].From) })
	for i := 1; i < len(ps); i++ {
		if !ps[i].From.After(ps[i-1].To) {
			return nil, fmt.Errorf("%w: %s - %s and %s - %s", ErrOverlappingPeriods,
				ps[i-1].From.Format(time.RFC3339), ps[i-1].To.Format(time.RFC3339),
				ps[i].From.Format(time.RFC3339), ps[i].To.Format(time.RFC3339))
		}
	}
	for _, p := range ps {
		if err := p.CheckAligned(opts); err != nil {
			return nil, err
		}
	}

	var out []Bucket
	for _, p := range ps {
		var subset []AnnotatedSample
		for _, s := range samples {
			if !s.Time.Before(p.From) && !s.Time.After(p.To) {
				subset = append(subset, s)
			}
		}
		periodOpts := opts
		if len(p.Setpoints) > 0 {
			periodOpts.Setpoints = p.Setpoints
		}
		buckets, err := Average(subset, periodOpts)
		if err != nil {
			return nil, err
		}
		out = append(out, buckets...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func sortedByTime(samples []AnnotatedSample) []AnnotatedSample {
	out := append([]AnnotatedSample(nil), samples...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// stableOnly keeps samples whose setpoint equals the preceding sample's. The
// first sample has no predecessor and is dropped.
func stableOnly(samples []AnnotatedSample) []AnnotatedSample {
	out := make([]AnnotatedSample, 0, len(samples))
	for i := 1; i < len(samples); i++ {
		if samples[i].SetpointSS == samples[i-1].SetpointSS {
			out = append(out, samples[i])
		}
	}
	return out
}

func matchesSetpoint(reported float64, s Setpoint) bool {
	return math.Abs(reported-float64(s)) < setpointTolerance
}

func buildBucket(start time.Time, window []AnnotatedSample, setpoints []Setpoint, opts AverageOptions) Bucket {
	expected := opts.Expected()
	completeness := float64(len(window)) / float64(expected)
	if completeness > 1 {
		completeness = 1
	}

	b := Bucket{
		Start:        start,
		Width:        opts.Width,
		Setpoints:    append([]Setpoint(nil), setpoints...),
		Stats:        make(map[Setpoint]SetpointStats, len(setpoints)),
		Means:        windowMeans(window),
		Observed:     len(window),
		Expected:     expected,
		Completeness: completeness,
	}

	unreliable := 0
	for _, s := range window {
		if s.Unreliable {
			unreliable++
		}
	}
	b.UnreliableFraction = float64(unreliable) / float64(len(window))

	for _, sp := range setpoints {
		b.Stats[sp] = setpointStats(window, sp, opts.ExcludeUnreliable)
	}
	return b
}

func setpointStats(window []AnnotatedSample, sp Setpoint, excludeUnreliable bool) SetpointStats {
	var n, ss, tg, t1, t2 []float64
	for _, s := range window {
		if !matchesSetpoint(s.SetpointSS, sp) {
			continue
		}
		if excludeUnreliable && s.Unreliable {
			continue
		}
		n = append(n, s.N)
		ss = append(ss, s.SS)
		tg = append(tg, s.Gradient)
		t1 = append(t1, s.T1)
		t2 = append(t2, s.T2)
	}
	if len(n) == 0 {
		return emptyStats()
	}
	return SetpointStats{
		N:        nanMean(n),
		SS:       nanMean(ss),
		Gradient: nanMean(tg),
		T1:       nanMean(t1),
		T2:       nanMean(t2),
		Count:    len(n),
	}
}

func windowMeans(window []AnnotatedSample) Means {
	col := func(f func(AnnotatedSample) float64) float64 {
		vals := make([]float64, len(window))
		for i, s := range window {
			vals[i] = f(s)
		}
		return nanMean(vals)
	}
	return Means{
		N:          col(func(s AnnotatedSample) float64 { return s.N }),
		TInlet:     col(func(s AnnotatedSample) float64 { return s.TInlet }),
		T1:         col(func(s AnnotatedSample) float64 { return s.T1 }),
		T2:         col(func(s AnnotatedSample) float64 { return s.T2 }),
		T3:         col(func(s AnnotatedSample) float64 { return s.T3 }),
		TSample:    col(func(s AnnotatedSample) float64 { return s.TSample }),
		TOPC:       col(func(s AnnotatedSample) float64 { return s.TOPC }),
		TNafion:    col(func(s AnnotatedSample) float64 { return s.TNafion }),
		QSample:    col(func(s AnnotatedSample) float64 { return s.QSample }),
		QSheath:    col(func(s AnnotatedSample) float64 { return s.QSheath }),
		PSample:    col(func(s AnnotatedSample) float64 { return s.PSample }),
		SetpointSS: col(func(s AnnotatedSample) float64 { return s.SetpointSS }),
		TGSetpoint: col(func(s AnnotatedSample) float64 { return s.TGSetpoint }),
		Gradient:   col(func(s AnnotatedSample) float64 { return s.Gradient }),
		SS:         col(func(s AnnotatedSample) float64 { return s.SS }),
		Deviation:  col(func(s AnnotatedSample) float64 { return s.Deviation }),
	}
}
