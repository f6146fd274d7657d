package session

import (
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/notch-rider/internal/ride"
)

type fakeRecorder struct {
	mu         sync.Mutex
	calls      []string
	samples    []ride.Sample
	startErr   error
	pauseErr   error
	stopErr    error
	stopResult WorkoutSummary
}

func (f *fakeRecorder) Start(time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeRecorder) Pause(paused bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if paused {
		f.calls = append(f.calls, "pause")
	} else {
		f.calls = append(f.calls, "resume")
	}
	return f.pauseErr
}

func (f *fakeRecorder) AddSample(s ride.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeRecorder) Stop() (WorkoutSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	if f.stopErr != nil {
		return WorkoutSummary{}, f.stopErr
	}
	return f.stopResult, nil
}

func (f *fakeRecorder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRecorder) SampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestMachine(rec *fakeRecorder) *Machine {
	return NewMachine(rec, ride.NewRideMetrics(), testLogger())
}

func TestMachine_StartStopConfirm(t *testing.T) {
	rec := &fakeRecorder{stopResult: WorkoutSummary{SampleCount: 3, FilePath: "/tmp/x.fit"}}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	assert.Equal(t, StateRecording, m.State())
	id := m.Session().ID
	assert.NotEmpty(t, id)
	assert.False(t, m.Session().StartedAt.IsZero())

	m.RequestStop()
	assert.Equal(t, StateConfirming, m.State())
	assert.Equal(t, []string{"start"}, rec.Calls())

	summary, ok, err := m.ConfirmStop()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, id, summary.SessionID)
	assert.Equal(t, "/tmp/x.fit", summary.FilePath)
	assert.Equal(t, []string{"start", "stop"}, rec.Calls())
}

func TestMachine_StopCancelResumesRecording(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	m.RequestStop()
	m.CancelStop()

	assert.Equal(t, StateRecording, m.State())
	assert.NotContains(t, rec.Calls(), "stop")
}

func TestMachine_CancelStopFromPausedResumesRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	require.NoError(t, m.PauseRecording())
	m.RequestStop()
	m.CancelStop()

	assert.Equal(t, StateRecording, m.State())
	assert.Equal(t, []string{"start", "pause", "resume"}, rec.Calls())

	for i := 0; i < 5; i++ {
		ok, err := m.RecordSample(ride.Sample{PowerWatts: 150})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 5, m.Session().SampleCount)
	assert.Equal(t, 5, rec.SampleCount())
}

func TestMachine_CancelStopFromRecordingLeavesRecorderAlone(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	require.NoError(t, m.PauseRecording())
	require.NoError(t, m.ResumeRecording())
	m.RequestStop()
	m.CancelStop()

	assert.Equal(t, StateRecording, m.State())
	assert.Equal(t, []string{"start", "pause", "resume"}, rec.Calls())
}

func TestMachine_FailedResumeOnCancelStaysConfirming(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	require.NoError(t, m.PauseRecording())
	m.RequestStop()

	rec.mu.Lock()
	rec.pauseErr = errors.New("device busy")
	rec.mu.Unlock()
	res, err := m.Dispatch(CmdCancelStop)
	assert.ErrorIs(t, err, ErrRecorder)
	assert.False(t, res.Applied)
	assert.Equal(t, StateConfirming, m.State())

	rec.mu.Lock()
	rec.pauseErr = nil
	rec.mu.Unlock()
	m.CancelStop()
	assert.Equal(t, StateRecording, m.State())
}

func TestMachine_PauseWhileIdleIsNoop(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	require.NoError(t, m.PauseRecording())
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, rec.Calls())
}

func TestMachine_IllegalCommandsAreIgnored(t *testing.T) {
	illegal := map[State][]Command{
		StateIdle:       {CmdPause, CmdResume, CmdRequestStop, CmdConfirmStop, CmdCancelStop},
		StateRecording:  {CmdStart, CmdResume, CmdConfirmStop, CmdCancelStop},
		StatePaused:     {CmdStart, CmdPause, CmdConfirmStop, CmdCancelStop},
		StateConfirming: {CmdStart, CmdPause, CmdResume, CmdRequestStop},
	}
	reach := map[State][]Command{
		StateIdle:       nil,
		StateRecording:  {CmdStart},
		StatePaused:     {CmdStart, CmdPause},
		StateConfirming: {CmdStart, CmdRequestStop},
	}

	for state, cmds := range illegal {
		for _, cmd := range cmds {
			rec := &fakeRecorder{}
			m := newTestMachine(rec)
			for _, c := range reach[state] {
				_, err := m.Dispatch(c)
				require.NoError(t, err)
			}
			require.Equal(t, state, m.State())
			before := len(rec.Calls())

			res, err := m.Dispatch(cmd)
			assert.NoError(t, err, "%v in %v", cmd, state)
			assert.False(t, res.Applied, "%v in %v", cmd, state)
			assert.Equal(t, state, m.State(), "%v in %v", cmd, state)
			assert.Len(t, rec.Calls(), before, "%v in %v", cmd, state)
		}
	}
}

func TestMachine_PauseResume(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	require.NoError(t, m.PauseRecording())
	assert.Equal(t, StatePaused, m.State())
	assert.False(t, m.IsRecording())

	require.NoError(t, m.ResumeRecording())
	assert.Equal(t, StateRecording, m.State())
	assert.Equal(t, []string{"start", "pause", "resume"}, rec.Calls())
}

func TestMachine_StopFromPaused(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	require.NoError(t, m.PauseRecording())
	m.RequestStop()
	assert.Equal(t, StateConfirming, m.State())
}

func TestMachine_FailedSaveStaysConfirming(t *testing.T) {
	rec := &fakeRecorder{stopErr: errors.New("disk full")}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	m.RequestStop()

	_, ok, err := m.ConfirmStop()
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecorderPersistence)
	assert.Equal(t, StateConfirming, m.State())

	// retry succeeds once the recorder recovers
	rec.mu.Lock()
	rec.stopErr = nil
	rec.mu.Unlock()
	_, ok, err = m.ConfirmStop()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateIdle, m.State())
}

func TestMachine_FailedSaveCanBeCancelled(t *testing.T) {
	rec := &fakeRecorder{stopErr: errors.New("disk full")}
	m := newTestMachine(rec)

	require.NoError(t, m.StartRecording())
	m.RequestStop()
	_, _, err := m.ConfirmStop()
	require.Error(t, err)

	m.CancelStop()
	assert.Equal(t, StateRecording, m.State())
}

func TestMachine_FailedStartStaysIdle(t *testing.T) {
	rec := &fakeRecorder{startErr: errors.New("no dir")}
	m := newTestMachine(rec)

	err := m.StartRecording()
	assert.ErrorIs(t, err, ErrRecorder)
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, m.Session().ID)
}

func TestMachine_StartResetsMetrics(t *testing.T) {
	metrics := ride.NewRideMetrics()
	metrics.Advance(30, time.Minute)
	m := NewMachine(&fakeRecorder{}, metrics, testLogger())

	require.NoError(t, m.StartRecording())
	assert.Equal(t, ride.Metrics{}, metrics.Snapshot())
}

func TestMachine_RecordSampleOnlyWhileRecording(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	ok, err := m.RecordSample(ride.Sample{PowerWatts: 100})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.StartRecording())
	ok, err = m.RecordSample(ride.Sample{PowerWatts: 100})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.PauseRecording())
	ok, _ = m.RecordSample(ride.Sample{PowerWatts: 100})
	assert.False(t, ok)

	require.NoError(t, m.ResumeRecording())
	m.RequestStop()
	ok, _ = m.RecordSample(ride.Sample{PowerWatts: 100})
	assert.False(t, ok)

	assert.Equal(t, 1, m.Session().SampleCount)
	assert.Equal(t, 1, rec.SampleCount())
}

func TestMachine_SavedEventFires(t *testing.T) {
	rec := &fakeRecorder{stopResult: WorkoutSummary{DistanceKm: 1.5}}
	m := newTestMachine(rec)

	saved := make(chan WorkoutSummary, 1)
	unregister := m.ListenToSaved(saved)
	defer unregister()

	require.NoError(t, m.StartRecording())
	m.RequestStop()
	_, _, err := m.ConfirmStop()
	require.NoError(t, err)

	select {
	case s := <-saved:
		assert.Equal(t, 1.5, s.DistanceKm)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for saved event")
	}
}

func TestMachine_ConcurrentCommandsKeepStateValid(t *testing.T) {
	rec := &fakeRecorder{}
	m := newTestMachine(rec)

	cmds := []Command{CmdStart, CmdPause, CmdResume, CmdRequestStop, CmdCancelStop, CmdConfirmStop}
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = m.Dispatch(cmds[i%len(cmds)])
		}(i)
	}
	wg.Wait()

	assert.Contains(t, []State{StateIdle, StateRecording, StatePaused, StateConfirming}, m.State())
	starts, stops := 0, 0
	for _, c := range rec.Calls() {
		switch c {
		case "start":
			starts++
		case "stop":
			stops++
		}
	}
	// every stop closes a start, and at most one ride is open
	assert.LessOrEqual(t, stops, starts)
	assert.LessOrEqual(t, starts-stops, 1)
}
