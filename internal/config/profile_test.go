package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadProfile_Defaults(t *testing.T) {
	p, err := LoadProfile("")
	require.NoError(t, err)

	assert.Equal(t, time.Hour, p.Averaging.Width)
	assert.Equal(t, time.Minute, p.Averaging.Native)
	assert.False(t, p.Averaging.StableSetpoint)
	assert.True(t, p.Averaging.ExcludeUnreliable)
	assert.Equal(t, domain.DefaultDeviationLimit, p.Averaging.DeviationLimit)
	assert.Equal(t, domain.DefaultFlagThresholds(), p.FlagThresholds())
	assert.Empty(t, p.Setpoints)
	assert.Empty(t, p.Periods)

	opts := p.AverageOptions()
	assert.Equal(t, 60, opts.Expected())
	assert.Nil(t, opts.Setpoints)
}

func TestLoadProfile_File(t *testing.T) {
	path := writeProfile(t, `
averaging:
  width: 30m
  stable_setpoint: true
setpoints: [0.7, 0.1, 0.1]
periods:
  - from: "2025-06-01"
    to: "2025-06-15 23:59:00"
    setpoints: [0.1, 0.4]
  - from: "2025-06-16T00:00:00Z"
    to: "2025-06-30T23:59:00Z"
    setpoints: [0.2]
calibrations:
  - from: "2025-06-01"
    to: "2025-07-01"
    slope: 12
    intercept: -1
    drift_to:
      slope: 14
      intercept: -1.5
thresholds:
  concentration: 8000
export:
  dir: /data/export
  metadata: /etc/ccn/station.yaml
`)

	p, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, p.Averaging.Width)
	assert.True(t, p.Averaging.StableSetpoint)
	assert.Equal(t, []domain.Setpoint{0.1, 0.7}, p.AverageOptions().Setpoints)
	assert.Equal(t, 8000.0, p.FlagThresholds().Concentration)
	assert.Equal(t, 0.75, p.FlagThresholds().Completeness, "unset keys keep defaults")
	assert.Equal(t, "/data/export", p.Export.Dir)
	assert.Equal(t, "/etc/ccn/station.yaml", p.Export.Metadata)

	periods, err := p.PeriodSetpoints()
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), periods[0].From)
	assert.Equal(t, time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC), periods[0].To)
	assert.Equal(t, []domain.Setpoint{0.1, 0.4}, periods[0].Setpoints)

	cals, err := p.CalibrationPeriods()
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.Equal(t, 12.0, cals[0].Calibration.Slope)
	require.NotNil(t, cals[0].DriftTo)
	assert.Equal(t, 14.0, cals[0].DriftTo.Slope)
}

func TestLoadProfile_EnvOverride(t *testing.T) {
	t.Setenv("CCN_AVERAGING_WIDTH", "2h")
	p, err := LoadProfile("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, p.Averaging.Width)
}

func TestLoadProfile_MissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read profile")
}

func TestLoadProfile_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "width not multiple", body: "averaging:\n  width: 90s\n", want: "multiple"},
		{name: "width below native", body: "averaging:\n  width: 30s\n", want: "at least"},
		{name: "negative setpoint", body: "setpoints: [-0.1]\n", want: "setpoints"},
		{name: "bad period time", body: "periods:\n  - from: yesterday\n    to: \"2025-06-01\"\n", want: "periods[0].from"},
		{name: "reversed period", body: "periods:\n  - from: \"2025-06-02\"\n    to: \"2025-06-01\"\n", want: "before"},
		{name: "zero slope", body: "calibrations:\n  - from: \"2025-06-01\"\n    intercept: 1\n", want: "slope"},
		{name: "open drift", body: "calibrations:\n  - from: \"2025-06-01\"\n    slope: 1\n    drift_to:\n      slope: 2\n", want: "drift_to"},
		{name: "period inside a window", body: "periods:\n  - from: \"2025-06-01 00:30\"\n    to: \"2025-06-01 23:59\"\n", want: "periods[0]: setpoint period not aligned"},
		{name: "period end inside a window", body: "periods:\n  - from: \"2025-06-01\"\n    to: \"2025-06-01 12:00\"\n", want: "not aligned"},
		{name: "discover with setpoints", body: "setpoints: [0.1]\naveraging:\n  discover_setpoints: true\n", want: "mutually exclusive"},
		{name: "completeness range", body: "thresholds:\n  completeness: 1.5\n", want: "completeness"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadProfile(writeProfile(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadProfile_UnalignedPeriodIsSentinel(t *testing.T) {
	_, err := LoadProfile(writeProfile(t, "periods:\n  - from: \"2025-06-01 00:30\"\n    to: \"2025-06-01 23:59\"\n"))
	require.ErrorIs(t, err, domain.ErrUnalignedPeriod)
}

func TestLoadProfile_DiscoverSetpoints(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "averaging:\n  discover_setpoints: true\n"))
	require.NoError(t, err)
	assert.True(t, p.Averaging.DiscoverSetpoints)
	assert.Empty(t, p.AverageOptions().Setpoints)
}
