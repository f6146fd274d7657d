package history

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/notch-rider/internal/recorder"
	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
	"github.com/lowaak/smart-trainer/notch-rider/internal/session"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "db", "history.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summaryAt(start time.Time, km float64, file string) session.WorkoutSummary {
	return session.WorkoutSummary{
		SessionID:       "s-" + file,
		StartedAt:       start,
		DurationSeconds: 1800,
		DistanceKm:      km,
		AvgPower:        190,
		FilePath:        "/rides/" + file,
	}
}

// writeRide records a real FIT file of n one-second samples.
func writeRide(t *testing.T, dir string, start time.Time, n int) session.WorkoutSummary {
	t.Helper()
	r := recorder.NewFITRecorder(recorder.Config{Dir: dir}, testLogger())
	require.NoError(t, r.Start(start))
	for i := 0; i < n; i++ {
		require.NoError(t, r.AddSample(ride.Sample{
			PowerWatts: 210, CadenceRpm: 88, HeartRateBpm: 145, SpeedKmh: 36,
			Timestamp: start.Add(time.Duration(i) * time.Second),
		}))
	}
	s, err := r.Stop()
	require.NoError(t, err)
	return s
}

func TestStore_SaveRecentTotal(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 2, 1, 7, 0, 0, 0, time.UTC)

	total, err := s.TotalDistanceKm()
	require.NoError(t, err)
	assert.Zero(t, total)

	for i, km := range []float64{10, 20.5, 5} {
		_, err := s.Save(summaryAt(base.Add(time.Duration(i)*24*time.Hour), km, string(rune('a'+i))+".fit"))
		require.NoError(t, err)
	}

	recent, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "/rides/c.fit", recent[0].FilePath)
	assert.Equal(t, "/rides/b.fit", recent[1].FilePath)

	total, err = s.TotalDistanceKm()
	require.NoError(t, err)
	assert.InDelta(t, 35.5, total, 1e-9)
}

func TestStore_SaveSameFileUpdates(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2026, 2, 1, 7, 0, 0, 0, time.UTC)

	_, err := s.Save(summaryAt(start, 10, "a.fit"))
	require.NoError(t, err)
	_, err = s.Save(summaryAt(start, 12, "a.fit"))
	require.NoError(t, err)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	rides, err := s.Recent(5)
	require.NoError(t, err)
	assert.InDelta(t, 12, rides[0].DistanceKm, 1e-9)

	_, err = s.Save(session.WorkoutSummary{})
	assert.Error(t, err)
}

func TestReadFITSummary(t *testing.T) {
	start := time.Date(2026, 2, 3, 19, 30, 0, 0, time.UTC)
	written := writeRide(t, t.TempDir(), start, 61)

	got, err := ReadFITSummary(written.FilePath)
	require.NoError(t, err)
	assert.True(t, start.Equal(got.StartedAt))
	assert.Equal(t, 60, got.DurationSeconds)
	assert.InDelta(t, written.DistanceKm, got.DistanceKm, 0.001)
	assert.Equal(t, 210, got.AvgPower)
	assert.Equal(t, 145, got.AvgHeartRate)
	assert.Equal(t, 88, got.AvgCadence)
	assert.Equal(t, 61, got.SampleCount)
}

func TestReadFITSummary_Errors(t *testing.T) {
	_, err := ReadFITSummary(filepath.Join(t.TempDir(), "missing.fit"))
	assert.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.fit")
	require.NoError(t, os.WriteFile(junk, []byte("not a fit file"), 0o644))
	_, err = ReadFITSummary(junk)
	assert.Error(t, err)
}

func TestStore_ImportDir(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	writeRide(t, dir, time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC), 10)
	writeRide(t, dir, time.Date(2026, 1, 6, 6, 0, 0, 0, time.UTC), 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.fit"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	n, err := s.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.ImportDir(dir)
	require.NoError(t, err)
	assert.Zero(t, n, "already imported")

	n, err = s.ImportDir(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)

	rides, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, rides, 2)
	assert.NotEmpty(t, rides[0].SessionID)
	assert.Equal(t, 20, rides[0].SampleCount)
}

type fakeSaved struct {
	ch chan<- session.WorkoutSummary
}

func (f *fakeSaved) ListenToSaved(ch chan<- session.WorkoutSummary) func() {
	f.ch = ch
	return func() {}
}

func TestArchiver_StoresSavedWorkouts(t *testing.T) {
	s := openTestStore(t)
	saved := &fakeSaved{}
	a := NewArchiver(s, saved, 5, testLogger())
	defer a.Shutdown()

	overviews := make(chan Overview, 4)
	defer a.ListenToOverview(overviews)()

	// sticky: the initial empty overview is replayed
	select {
	case o := <-overviews:
		assert.Empty(t, o.Recent)
		assert.Zero(t, o.RideCount)
	case <-time.After(time.Second):
		t.Fatal("no initial overview")
	}

	summary := summaryAt(time.Now(), 15, "new.fit")
	saved.ch <- summary

	select {
	case o := <-overviews:
		require.Len(t, o.Recent, 1)
		assert.Equal(t, "/rides/new.fit", o.Recent[0].FilePath)
		assert.EqualValues(t, 1, o.RideCount)
		assert.InDelta(t, summary.DistanceKm, o.TotalDistanceKm, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("overview not republished")
	}
}
