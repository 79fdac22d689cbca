package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Profile is the processing profile: how raw data is averaged, corrected and flagged.
type Profile struct {
	Averaging    AveragingConfig     `mapstructure:"averaging"`
	Setpoints    []float64           `mapstructure:"setpoints"`
	Periods      []PeriodConfig      `mapstructure:"periods"`
	Calibrations []CalibrationConfig `mapstructure:"calibrations"`
	Thresholds   ThresholdsConfig    `mapstructure:"thresholds"`
	Export       ExportConfig        `mapstructure:"export"`
}

// AveragingConfig holds bucket and sample filtering settings.
type AveragingConfig struct {
	Width             time.Duration `mapstructure:"width"`
	Native            time.Duration `mapstructure:"native"`
	StableSetpoint    bool          `mapstructure:"stable_setpoint"`
	ExcludeUnreliable bool          `mapstructure:"exclude_unreliable"`
	DeviationLimit    float64       `mapstructure:"deviation_limit"`

	// DiscoverSetpoints stratifies by the distinct reported setpoints
	// instead of the profile or ini setpoint table.
	DiscoverSetpoints bool `mapstructure:"discover_setpoints"`
}

// PeriodConfig assigns setpoints to the inclusive range [From, To].
type PeriodConfig struct {
	From      string    `mapstructure:"from"`
	To        string    `mapstructure:"to"`
	Setpoints []float64 `mapstructure:"setpoints"`
}

// CalibrationConfig overrides the ini calibration for From <= t < To.
type CalibrationConfig struct {
	From      string  `mapstructure:"from"`
	To        string  `mapstructure:"to"`
	Slope     float64 `mapstructure:"slope"`
	Intercept float64 `mapstructure:"intercept"`

	// DriftTo, when set, is the calibration reached at To.
	DriftTo *CalibrationValues `mapstructure:"drift_to"`
}

// CalibrationValues is a bare slope and intercept.
type CalibrationValues struct {
	Slope     float64 `mapstructure:"slope"`
	Intercept float64 `mapstructure:"intercept"`
}

// ThresholdsConfig holds the QC flag limits.
type ThresholdsConfig struct {
	Completeness   float64 `mapstructure:"completeness"`
	FlowPercent    float64 `mapstructure:"flow_percent"`
	Concentration  float64 `mapstructure:"concentration"`
	InletCeiling   float64 `mapstructure:"inlet_ceiling"`
	InletStability float64 `mapstructure:"inlet_stability"`
}

// ExportConfig holds interchange file settings.
type ExportConfig struct {
	Dir      string `mapstructure:"dir"`
	Metadata string `mapstructure:"metadata"`
}

// LoadProfile reads a processing profile from path. An empty path yields the
// defaults. Any key can be overridden from the environment with the CCN_
// prefix, e.g. CCN_AVERAGING_WIDTH=30m.
func LoadProfile(path string) (*Profile, error) {
	v := viper.New()
	setProfileDefaults(v)

	v.SetEnvPrefix("CCN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read profile: %w", err)
		}
	}

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func setProfileDefaults(v *viper.Viper) {
	opts := domain.DefaultAverageOptions()
	v.SetDefault("averaging.width", opts.Width.String())
	v.SetDefault("averaging.native", opts.Native.String())
	v.SetDefault("averaging.stable_setpoint", opts.StableSetpoint)
	v.SetDefault("averaging.exclude_unreliable", opts.ExcludeUnreliable)
	v.SetDefault("averaging.deviation_limit", domain.DefaultDeviationLimit)
	v.SetDefault("averaging.discover_setpoints", false)

	th := domain.DefaultFlagThresholds()
	v.SetDefault("thresholds.completeness", th.Completeness)
	v.SetDefault("thresholds.flow_percent", th.FlowPercent)
	v.SetDefault("thresholds.concentration", th.Concentration)
	v.SetDefault("thresholds.inlet_ceiling", th.InletCeiling)
	v.SetDefault("thresholds.inlet_stability", th.InletStability)

	v.SetDefault("export.dir", "")
	v.SetDefault("export.metadata", "")
}

// Validate checks that all profile values are usable.
func (p *Profile) Validate() error {
	a := p.Averaging
	if a.Native <= 0 {
		return errors.New("averaging.native must be positive")
	}
	if a.Width < a.Native {
		return errors.New("averaging.width must be at least averaging.native")
	}
	if a.Width%a.Native != 0 {
		return errors.New("averaging.width must be a multiple of averaging.native")
	}
	if a.DeviationLimit <= 0 {
		return errors.New("averaging.deviation_limit must be positive")
	}
	for _, s := range p.Setpoints {
		if s <= 0 {
			return fmt.Errorf("setpoints: %v is not positive", s)
		}
	}
	if a.DiscoverSetpoints && len(p.Setpoints) > 0 {
		return errors.New("setpoints and averaging.discover_setpoints are mutually exclusive")
	}

	periods, err := p.PeriodSetpoints()
	if err != nil {
		return err
	}
	opts := p.AverageOptions()
	for i, ps := range periods {
		if err := ps.CheckAligned(opts); err != nil {
			return fmt.Errorf("periods[%d]: %w", i, err)
		}
	}
	if _, err := p.CalibrationPeriods(); err != nil {
		return err
	}

	th := p.Thresholds
	if th.Completeness < 0 || th.Completeness > 1 {
		return errors.New("thresholds.completeness must be between 0 and 1")
	}
	if th.FlowPercent < 0 || th.Concentration < 0 || th.InletStability < 0 {
		return errors.New("thresholds must not be negative")
	}
	return nil
}

// AverageOptions maps the averaging section onto domain options.
func (p *Profile) AverageOptions() domain.AverageOptions {
	var setpoints []domain.Setpoint
	if !p.Averaging.DiscoverSetpoints {
		setpoints = toSetpoints(p.Setpoints)
	}
	return domain.AverageOptions{
		Width:             p.Averaging.Width,
		Native:            p.Averaging.Native,
		Setpoints:         setpoints,
		ExcludeUnreliable: p.Averaging.ExcludeUnreliable,
		StableSetpoint:    p.Averaging.StableSetpoint,
	}
}

// FlagThresholds maps the thresholds section onto domain thresholds.
func (p *Profile) FlagThresholds() domain.FlagThresholds {
	return domain.FlagThresholds{
		Completeness:   p.Thresholds.Completeness,
		FlowPercent:    p.Thresholds.FlowPercent,
		Concentration:  p.Thresholds.Concentration,
		InletCeiling:   p.Thresholds.InletCeiling,
		InletStability: p.Thresholds.InletStability,
	}
}

// PeriodSetpoints parses the periods section. Overlap is left to the domain.
func (p *Profile) PeriodSetpoints() ([]domain.PeriodSetpoints, error) {
	out := make([]domain.PeriodSetpoints, 0, len(p.Periods))
	for i, pc := range p.Periods {
		from, err := parseTime(pc.From)
		if err != nil {
			return nil, fmt.Errorf("periods[%d].from: %w", i, err)
		}
		to, err := parseTime(pc.To)
		if err != nil {
			return nil, fmt.Errorf("periods[%d].to: %w", i, err)
		}
		if to.Before(from) {
			return nil, fmt.Errorf("periods[%d]: to is before from", i)
		}
		out = append(out, domain.PeriodSetpoints{From: from, To: to, Setpoints: toSetpoints(pc.Setpoints)})
	}
	return out, nil
}

// CalibrationPeriods parses the calibrations section. An empty To is open-ended.
func (p *Profile) CalibrationPeriods() ([]domain.CalibrationPeriod, error) {
	out := make([]domain.CalibrationPeriod, 0, len(p.Calibrations))
	for i, cc := range p.Calibrations {
		from, err := parseTime(cc.From)
		if err != nil {
			return nil, fmt.Errorf("calibrations[%d].from: %w", i, err)
		}
		var to time.Time
		if cc.To != "" {
			if to, err = parseTime(cc.To); err != nil {
				return nil, fmt.Errorf("calibrations[%d].to: %w", i, err)
			}
		}
		if cc.Slope == 0 {
			return nil, fmt.Errorf("calibrations[%d].slope must not be zero", i)
		}
		period := domain.CalibrationPeriod{
			From:        from,
			To:          to,
			Calibration: domain.Calibration{Slope: cc.Slope, Intercept: cc.Intercept},
		}
		if cc.DriftTo != nil {
			if to.IsZero() {
				return nil, fmt.Errorf("calibrations[%d]: drift_to needs a closed period", i)
			}
			period.DriftTo = &domain.Calibration{Slope: cc.DriftTo.Slope, Intercept: cc.DriftTo.Intercept}
		}
		out = append(out, period)
	}
	return out, nil
}

func toSetpoints(in []float64) []domain.Setpoint {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Setpoint, len(in))
	for i, v := range in {
		out[i] = domain.Setpoint(v)
	}
	return domain.NormalizeSetpoints(out)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
