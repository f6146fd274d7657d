package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := load(nil, dir)
	require.NoError(t, err)

	assert.Equal(t, ride.TargetZone{Min: 140, Max: 180, Metric: ride.ZoneMetricPower}, cfg.Zone)
	assert.Equal(t, 80, cfg.TrackWidth)
	assert.Equal(t, 30, cfg.FPS)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, filepath.Join(dir, "workouts"), cfg.RecorderDir)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.HistoryDB)
	assert.Equal(t, filepath.Join(dir, "notch-rider.log"), cfg.Log.File)
	assert.Empty(t, cfg.ConfigFile)
	assert.Equal(t, time.Second/30, cfg.FrameInterval())
}

func TestLoad_FileEnvAndFlagsLayer(t *testing.T) {
	dir := t.TempDir()
	yaml := `
zone:
  metric: heart_rate
  min: 130
  max: 150
track:
  width: 120
sim:
  seed: 99
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("NOTCH_RIDER_TRACK_WIDTH", "100")
	t.Setenv("NOTCH_RIDER_TELEMETRY_SIMULATE", "true")

	cfg, err := load([]string{"--zone-max", "155", "--device", "KICKR"}, dir)
	require.NoError(t, err)

	assert.Equal(t, ride.TargetZone{Min: 130, Max: 155, Metric: ride.ZoneMetricHeartRate}, cfg.Zone)
	assert.Equal(t, 100, cfg.TrackWidth, "env beats file")
	assert.True(t, cfg.Simulate)
	assert.Equal(t, "KICKR", cfg.DeviceName)
	assert.Equal(t, uint64(99), cfg.Sim.Seed)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.ConfigFile)
}

func TestLoad_ExplicitConfigMustExist(t *testing.T) {
	_, err := load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, t.TempDir())
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"inverted zone", []string{"--zone-min", "200", "--zone-max", "100"}},
		{"unknown metric", []string{"--zone-metric", "cadence"}},
		{"zero width", []string{"--track-width", "0"}},
		{"zero fps", []string{"--fps", "0"}},
		{"zero poll", []string{"--poll-interval", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.args, t.TempDir())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_ZeroWidthZoneIsAllowed(t *testing.T) {
	cfg, err := load([]string{"--zone-min", "150", "--zone-max", "150"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 150.0, cfg.Zone.Min)
	assert.Equal(t, 150.0, cfg.Zone.Max)
}

func TestLoad_BadFlag(t *testing.T) {
	_, err := load([]string{"--no-such-flag"}, t.TempDir())
	assert.Error(t, err)
}

func TestWriteYAML_PrintsMergedSettings(t *testing.T) {
	cfg, err := load([]string{"--print-config", "--track-width", "120"}, t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.PrintConfig)

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	out := buf.String()
	assert.Contains(t, out, "width: 120")
	assert.Contains(t, out, "metric: power")
}
