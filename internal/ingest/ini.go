package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

// Labels recognised in the instrument ini file. Matching is by substring.
const (
	LabelTGDum       = "TG Dum"
	LabelSlope       = "Temp Gradient Slope"
	LabelIntercept   = "Temp Gradient Y-intercept"
	LabelLastUpdated = "Last Date Updated"
)

// DefaultSetpoints is the setpoint table the counter is normally run with.
var DefaultSetpoints = []domain.Setpoint{0.1, 0.15, 0.25, 0.4, 0.7}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"1/2/2006 15:04:05",
	"01/02/2006 15:04:05",
	"Monday, January 2, 2006",
	"January 2, 2006",
	"2 January 2006",
}

// IniFile is the subset of the instrument ini file the pipeline uses.
type IniFile struct {
	Calibration domain.Calibration
	Setpoints   []domain.Setpoint

	// Missing lists labels not found; their values were left at zero.
	Missing []string
	// Invalid lists labels whose value did not parse; their values were left at zero.
	Invalid []string
}

// ReadIniFile opens path and parses it with ReadIni.
func ReadIniFile(path string) (IniFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return IniFile{}, fmt.Errorf("open ini file: %w", err)
	}
	defer f.Close()

	ini, err := ReadIni(f)
	if err != nil {
		return IniFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return ini, nil
}

// ReadIni scans the ini text line by line. A line containing one of the known
// labels contributes the text after its last "=". Labels that never appear
// leave a zero value and are listed in Missing.
func ReadIni(r io.Reader) (IniFile, error) {
	ini := IniFile{Setpoints: domain.NormalizeSetpoints(DefaultSetpoints)}
	found := make(map[string]bool, 4)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.Contains(line, LabelTGDum):
			ini.Calibration.TGDum = ini.number(LabelTGDum, line)
			found[LabelTGDum] = true
		case strings.Contains(line, LabelSlope):
			ini.Calibration.Slope = ini.number(LabelSlope, line)
			found[LabelSlope] = true
		case strings.Contains(line, LabelIntercept):
			ini.Calibration.Intercept = ini.number(LabelIntercept, line)
			found[LabelIntercept] = true
		case strings.Contains(line, LabelLastUpdated):
			ini.Calibration.Updated = lastValue(line)
			ini.Calibration.UpdatedAt = parseDate(ini.Calibration.Updated)
			found[LabelLastUpdated] = true
		}
	}
	if err := sc.Err(); err != nil {
		return IniFile{}, fmt.Errorf("scan ini: %w", err)
	}

	for _, l := range []string{LabelTGDum, LabelSlope, LabelIntercept, LabelLastUpdated} {
		if !found[l] {
			ini.Missing = append(ini.Missing, l)
		}
	}
	return ini, nil
}

func (ini *IniFile) number(label, line string) float64 {
	v, err := strconv.ParseFloat(lastValue(line), 64)
	if err != nil {
		ini.Invalid = append(ini.Invalid, label)
		return 0
	}
	return v
}

func lastValue(line string) string {
	parts := strings.Split(line, "=")
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[len(parts)-1]), `"`))
}

func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
