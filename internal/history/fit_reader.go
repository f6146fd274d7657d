package history

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tormoder/fit"

	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
)

var ErrNoSession = errors.New("activity file has no session message")

// ReadFITSummary decodes a FIT activity and summarizes its first session.
// Fields the file leaves unset fall back to values derived from its records.
func ReadFITSummary(path string) (session.WorkoutSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return session.WorkoutSummary{}, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()

	decoded, err := fit.Decode(f)
	if err != nil {
		return session.WorkoutSummary{}, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return session.WorkoutSummary{}, fmt.Errorf("activity FIT expected: %w", err)
	}
	if len(activity.Sessions) == 0 {
		return session.WorkoutSummary{}, ErrNoSession
	}
	sess := activity.Sessions[0]

	timer := safePositive(sess.GetTotalTimerTimeScaled())
	elapsed := safePositive(sess.GetTotalElapsedTimeScaled())
	distance := safePositive(sess.GetTotalDistanceScaled())

	summary := session.WorkoutSummary{
		StartedAt:       validTimeOrZero(sess.StartTime),
		DurationSeconds: int(timer),
		DistanceKm:      distance / 1000,
		AvgPower:        int(validUint16(sess.AvgPower)),
		MaxPower:        int(validUint16(sess.MaxPower)),
		AvgHeartRate:    int(validUint8(sess.AvgHeartRate)),
		MaxHeartRate:    int(validUint8(sess.MaxHeartRate)),
		AvgCadence:      int(validUint8(sess.AvgCadence)),
		SampleCount:     len(activity.Records),
		FilePath:        path,
	}
	if elapsed > timer {
		summary.PausedSeconds = int(elapsed - timer)
	}

	if len(activity.Records) > 0 {
		first := validTimeOrZero(activity.Records[0].Timestamp)
		last := validTimeOrZero(activity.Records[len(activity.Records)-1].Timestamp)
		if summary.StartedAt.IsZero() {
			summary.StartedAt = first
		}
		if summary.DurationSeconds == 0 && !first.IsZero() && !last.IsZero() {
			summary.DurationSeconds = int(last.Sub(first).Seconds())
		}
		if summary.DistanceKm == 0 {
			summary.DistanceKm = safePositive(activity.Records[len(activity.Records)-1].GetDistanceScaled()) / 1000
		}
	}
	return summary, nil
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) uint8 {
	if v == math.MaxUint8 {
		return 0
	}
	return v
}

func validUint16(v uint16) uint16 {
	if v == math.MaxUint16 {
		return 0
	}
	return v
}

func safePositive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}
