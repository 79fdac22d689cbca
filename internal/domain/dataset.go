package domain

import "time"

// Dataset is the result of one processing run, handed to every sink.
type Dataset struct {
	RunID     string
	Setpoints []Setpoint // union of setpoints across all records, sorted
	Width     time.Duration
	Native    time.Duration
	Records   []Record
}

// Export reshapes the dataset for an interchange file writer.
func (d Dataset) Export() ExportTable {
	return BuildExport(d.Records, d.Setpoints, d.Width, d.Native)
}

// Flagged counts records with each flag raised, keyed by flag name.
func (d Dataset) Flagged() map[string]int {
	out := make(map[string]int, len(FlagNames))
	for _, r := range d.Records {
		for i, v := range r.Flags.Values() {
			if v {
				out[FlagNames[i]]++
			}
		}
	}
	return out
}
