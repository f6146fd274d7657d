package telemetry

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestBikeModel_SpeedKmh(t *testing.T) {
	bike := NewBikeModel(75, 9)

	flat := bike.SpeedKmh(200, 0)
	assert.InDelta(t, 33, flat, 3)
	assert.Greater(t, bike.SpeedKmh(300, 0), flat)
	assert.Less(t, bike.SpeedKmh(200, 6), flat)
	assert.Greater(t, bike.SpeedKmh(0, -5), 0.0, "coasting downhill still moves")
	assert.InDelta(t, 0, bike.SpeedKmh(0, 0), 0.01)
	assert.InDelta(t, 0, bike.SpeedKmh(-50, 0), 0.01)
}

func TestNewBikeModel_Defaults(t *testing.T) {
	assert.Equal(t, BikeModel{RiderWeightKg: 75, BikeWeightKg: 9}, NewBikeModel(0, -1))
}

func newTestSim(seed uint64) (*SimulatedSource, *time.Time) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	s := NewSimulatedSource(SimConfig{Seed: seed}, testLogger())
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSimulatedSource_NeedsConnect(t *testing.T) {
	s, _ := newTestSim(1)
	_, err := s.PollSample(context.Background())
	assert.ErrorIs(t, err, ErrSourceDisconnected)
	assert.True(t, s.FindDevice(context.Background()))
}

func TestSimulatedSource_StaysInBounds(t *testing.T) {
	s, now := newTestSim(7)
	require.NoError(t, s.Connect(context.Background()))

	for i := 0; i < 600; i++ {
		*now = now.Add(500 * time.Millisecond)
		sample, err := s.PollSample(context.Background())
		require.NoError(t, err)

		assert.InDelta(t, 180, sample.PowerWatts, 40+180*0.04+1)
		assert.InDelta(t, 85, sample.CadenceRpm, 8+85*0.04+1)
		assert.InDelta(t, 135, sample.HeartRateBpm, 12+135*0.02+1)
		assert.InDelta(t, 0, sample.GradePercent, 3.0001)
		assert.Greater(t, sample.SpeedKmh, 0.0)
		assert.Equal(t, *now, sample.Timestamp)
	}
}

func TestSimulatedSource_SeedIsDeterministic(t *testing.T) {
	a, nowA := newTestSim(42)
	b, nowB := newTestSim(42)
	require.NoError(t, a.Connect(context.Background()))
	require.NoError(t, b.Connect(context.Background()))

	for i := 0; i < 20; i++ {
		*nowA = nowA.Add(time.Second)
		*nowB = nowB.Add(time.Second)
		sa, err := a.PollSample(context.Background())
		require.NoError(t, err)
		sb, err := b.PollSample(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
	}
}

func TestSimulatedSource_HonoursContextAndDisconnect(t *testing.T) {
	s, _ := newTestSim(3)
	require.NoError(t, s.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.PollSample(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	s.Disconnect()
	_, err = s.PollSample(context.Background())
	assert.ErrorIs(t, err, ErrSourceDisconnected)
}
