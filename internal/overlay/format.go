package overlay

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lowaak/smart-trainer/notch-rider/internal/history"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
	"github.com/lowaak/smart-trainer/notch-rider/internal/telemetry"
)

// FormatElapsed renders d as m:ss. Minutes are not wrapped into hours.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func FormatDistanceKm(meters float64) string {
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatStreak shows whole metres below a kilometre and km with two decimals above.
func FormatStreak(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Floor(math.Max(meters, 0))))
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}

func GradeArrow(grade float64) string {
	switch {
	case grade > 0:
		return "▲"
	case grade < 0:
		return "▼"
	default:
		return ""
	}
}

func FormatGrade(grade float64) string {
	arrow := GradeArrow(grade)
	if arrow == "" {
		return fmt.Sprintf("%.1f%%", grade)
	}
	return fmt.Sprintf("%s %.1f%%", arrow, math.Abs(grade))
}

func FormatZone(zone ride.TargetZone) string {
	return fmt.Sprintf("%.0f-%.0f %s", zone.Min, zone.Max, zone.Unit())
}

func formatHeartRate(bpm int) string {
	if bpm <= 0 {
		return "--"
	}
	return fmt.Sprintf("%d", bpm)
}

// driftColor is the tview color tag for a drift state
func driftColor(state ride.DriftState) string {
	switch state {
	case ride.DriftInZone:
		return "green"
	case ride.DriftTooFast, ride.DriftTooSlow:
		return "yellow"
	case ride.DriftOffRoad:
		return "red"
	default:
		return "gray"
	}
}

func outOfZone(d ride.DriftResult) bool {
	return d.State == ride.DriftTooFast || d.State == ride.DriftTooSlow || d.State == ride.DriftOffRoad
}

// FormatHUD renders the readout line with tview color tags. The value the
// zone tracks turns red while the rider is out of the zone.
func FormatHUD(r ride.Readout) string {
	power := fmt.Sprintf("%d W", r.Sample.PowerWatts)
	heart := formatHeartRate(r.Sample.HeartRateBpm)
	if outOfZone(r.Drift) {
		if r.Zone.Metric == ride.ZoneMetricHeartRate {
			heart = "[red]" + heart + "[white]"
		} else {
			power = "[red]" + power + "[white]"
		}
	}

	parts := []string{
		"[red]♥[white] " + heart,
		"[yellow]⚡[white] " + power,
		fmt.Sprintf("%d rpm", r.Sample.CadenceRpm),
		fmt.Sprintf("%.1f km/h", r.Sample.SpeedKmh),
		FormatGrade(r.Sample.GradePercent),
		"[gray]zone[white] " + FormatZone(r.Zone),
	}
	return strings.Join(parts, "  ")
}

// FormatRideLine renders the totals and streak line.
func FormatRideLine(r ride.Readout, sess session.RecordingSession) string {
	streak := fmt.Sprintf("[%s]%s[white] streak %s (best %s)",
		driftColor(r.Drift.State), r.Drift.State, FormatStreak(r.Streak.CurrentMeters), FormatStreak(r.Streak.BestMeters))
	return fmt.Sprintf("%s  %s  %s  %s",
		formatSessionState(sess.State),
		FormatElapsed(r.Metrics.Elapsed),
		FormatDistanceKm(r.Metrics.DistanceMeters),
		streak)
}

func formatSessionState(state session.State) string {
	switch state {
	case session.StateRecording:
		return "[red]● REC[white]"
	case session.StatePaused:
		return "[yellow]❚❚ PAUSED[white]"
	case session.StateConfirming:
		return "[yellow]■ STOP?[white]"
	default:
		return "[gray]○ idle[white]"
	}
}

// FormatStatus describes where telemetry comes from.
func FormatStatus(s telemetry.Status) string {
	var b strings.Builder
	switch s.Mode {
	case telemetry.ModeHardware:
		fmt.Fprintf(&b, "[green]%s[white]", s.SourceName)
	case telemetry.ModeSimulated:
		fmt.Fprintf(&b, "[yellow]simulated[white] (%s)", s.SourceName)
	default:
		b.WriteString("[gray]no telemetry[white]")
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "  [red]%s[white]", s.LastError)
	}
	return b.String()
}

// FormatRide renders one history row.
func FormatRide(r history.Ride) string {
	return fmt.Sprintf("%s  %s  %5.1f km  %3d W avg",
		r.StartedAt.Local().Format("2006-01-02 15:04"),
		FormatElapsed(time.Duration(r.DurationSeconds)*time.Second),
		r.DistanceKm,
		r.AvgPower)
}

func FormatSummary(s session.WorkoutSummary) string {
	return fmt.Sprintf("Saved %.1f km in %s, %d W avg",
		s.DistanceKm, FormatElapsed(time.Duration(s.DurationSeconds)*time.Second), s.AvgPower)
}
