package domain

import (
	"fmt"
	"math"
	"time"
)

// NoFlag is the placeholder flag attached to every exported value.
const NoFlag = 0

// SampleTime is the start and end of one exported sample.
type SampleTime struct {
	Start time.Time
	End   time.Time
}

// Interval is a contiguous run of buckets with no gap wider than one bucket.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ExportTable is the column-oriented shape consumed by an interchange file
// writer. Values[i] and Flags[i] belong to Names[i]; each has one entry per
// sample in Samples.
type ExportTable struct {
	Names     []string
	Setpoints []Setpoint
	Values    [][]float64
	Flags     [][][]int
	Samples   []SampleTime
	Intervals []Interval
}

// VariableName is the exported name of the STP-corrected count at s.
func VariableName(s Setpoint) string {
	return fmt.Sprintf("cloud_condensation_nuclei_number_concentration, 1/cm3, SS=%s%%", s)
}

// BuildExport reshapes processed records into one series per setpoint.
// Missing values are exported as 0. Each sample ends at the last native
// sample of its window; a zero native means one minute.
func BuildExport(records []Record, setpoints []Setpoint, width, native time.Duration) ExportTable {
	if native <= 0 {
		native = DefaultAverageOptions().Native
	}
	t := ExportTable{
		Names:     make([]string, len(setpoints)),
		Setpoints: append([]Setpoint(nil), setpoints...),
		Values:    make([][]float64, len(setpoints)),
		Flags:     make([][][]int, len(setpoints)),
		Samples:   make([]SampleTime, len(records)),
	}

	starts := make([]time.Time, len(records))
	for i, r := range records {
		starts[i] = r.Start
		t.Samples[i] = SampleTime{Start: r.Start, End: r.Start.Add(width - native)}
	}
	t.Intervals = Intervals(starts, width)

	for i, sp := range setpoints {
		t.Names[i] = VariableName(sp)
		values := make([]float64, len(records))
		flags := make([][]int, len(records))
		for j, r := range records {
			v, ok := r.CorrectedSTP[sp]
			if !ok || math.IsNaN(v) {
				v = 0
			}
			values[j] = v
			flags[j] = []int{NoFlag}
		}
		t.Values[i] = values
		t.Flags[i] = flags
	}
	return t
}

// Intervals collapses sorted bucket starts into contiguous runs, splitting
// wherever consecutive starts are more than one width apart. Each interval
// ends at its last bucket's start.
func Intervals(starts []time.Time, width time.Duration) []Interval {
	if len(starts) == 0 {
		return nil
	}
	var out []Interval
	cur := Interval{Start: starts[0], End: starts[0]}
	for i := 1; i < len(starts); i++ {
		if starts[i].Sub(starts[i-1]) > width {
			out = append(out, cur)
			cur = Interval{Start: starts[i]}
		}
		cur.End = starts[i]
	}
	return append(out, cur)
}
