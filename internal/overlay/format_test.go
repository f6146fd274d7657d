package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
	"github.com/lowaak/smart-trainer/notch-rider/internal/telemetry"
)

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{65 * time.Second, "1:05"},
		{62*time.Minute + 5*time.Second, "62:05"},
		{1500 * time.Millisecond, "0:01"},
		{-time.Second, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.in), tt.in.String())
	}
}

func TestFormatDistanceKm(t *testing.T) {
	assert.Equal(t, "0.0 km", FormatDistanceKm(0))
	assert.Equal(t, "12.3 km", FormatDistanceKm(12345))
}

func TestFormatStreak(t *testing.T) {
	assert.Equal(t, "0m", FormatStreak(0))
	assert.Equal(t, "999m", FormatStreak(999.9))
	assert.Equal(t, "1.00 km", FormatStreak(1000))
	assert.Equal(t, "2.50 km", FormatStreak(2500))
}

func TestFormatGrade(t *testing.T) {
	assert.Equal(t, "▲ 3.2%", FormatGrade(3.2))
	assert.Equal(t, "▼ 1.5%", FormatGrade(-1.5))
	assert.Equal(t, "0.0%", FormatGrade(0))
}

func TestFormatZone(t *testing.T) {
	power, err := ride.NewTargetZone(140, 180, ride.ZoneMetricPower)
	assert.NoError(t, err)
	assert.Equal(t, "140-180 W", FormatZone(power))

	hr, err := ride.NewTargetZone(120, 150, ride.ZoneMetricHeartRate)
	assert.NoError(t, err)
	assert.Equal(t, "120-150 bpm", FormatZone(hr))
}

func TestFormatHUD_HighlightsZoneMetricOutOfZone(t *testing.T) {
	sample := ride.Sample{PowerWatts: 250, CadenceRpm: 90, HeartRateBpm: 160, SpeedKmh: 33.3, GradePercent: 2}
	power := ride.TargetZone{Min: 140, Max: 180, Metric: ride.ZoneMetricPower}

	inZone := FormatHUD(ride.Readout{Sample: sample, Zone: power, Drift: ride.DriftResult{State: ride.DriftInZone}})
	assert.Contains(t, inZone, "250 W")
	assert.NotContains(t, inZone, "[red]250 W")
	assert.Contains(t, inZone, "▲ 2.0%")
	assert.Contains(t, inZone, "140-180 W")

	tooFast := FormatHUD(ride.Readout{Sample: sample, Zone: power, Drift: ride.DriftResult{State: ride.DriftTooFast, Offset: 20}})
	assert.Contains(t, tooFast, "[red]250 W[white]")

	hrZone := ride.TargetZone{Min: 120, Max: 150, Metric: ride.ZoneMetricHeartRate}
	hrOff := FormatHUD(ride.Readout{Sample: sample, Zone: hrZone, Drift: ride.DriftResult{State: ride.DriftOffRoad, Offset: 30}})
	assert.Contains(t, hrOff, "[red]160[white]")
	assert.NotContains(t, hrOff, "[red]250 W")
}

func TestFormatHUD_MissingHeartRate(t *testing.T) {
	out := FormatHUD(ride.Readout{Sample: ride.Sample{PowerWatts: 100}})
	assert.Contains(t, out, "♥[white] --")
}

func TestFormatRideLine(t *testing.T) {
	r := ride.Readout{
		Drift:   ride.DriftResult{State: ride.DriftInZone},
		Streak:  ride.StreakState{CurrentMeters: 420, BestMeters: 1250, IsActive: true},
		Metrics: ride.Metrics{DistanceMeters: 5400, Elapsed: 9*time.Minute + 3*time.Second},
	}
	line := FormatRideLine(r, session.RecordingSession{State: session.StateRecording})
	assert.Contains(t, line, "REC")
	assert.Contains(t, line, "9:03")
	assert.Contains(t, line, "5.4 km")
	assert.Contains(t, line, "streak 420m (best 1.25 km)")
}

func TestFormatStatus(t *testing.T) {
	assert.Contains(t, FormatStatus(telemetry.Status{Mode: telemetry.ModeHardware, SourceName: "KICKR"}), "KICKR")
	assert.Contains(t, FormatStatus(telemetry.Status{Mode: telemetry.ModeSimulated, SourceName: "sim"}), "simulated")
	assert.Contains(t, FormatStatus(telemetry.Status{}), "no telemetry")
	assert.Contains(t, FormatStatus(telemetry.Status{Mode: telemetry.ModeHardware, LastError: "link lost"}), "link lost")
}

func TestFormatSummary(t *testing.T) {
	s := session.WorkoutSummary{DistanceKm: 12.34, DurationSeconds: 1830, AvgPower: 188}
	assert.Equal(t, "Saved 12.3 km in 30:30, 188 W avg", FormatSummary(s))
}
