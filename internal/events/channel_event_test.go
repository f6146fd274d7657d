package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type speedReading struct {
	Kmh   float64
	Grade float64
}

func receiveN[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()
	got := make([]T, 0, n)
	for len(got) < n {
		select {
		case v := <-ch:
			got = append(got, v)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for events, got %d of %d", len(got), n)
		}
	}
	return got
}

func TestNewChannelEvent(t *testing.T) {
	event := NewChannelEvent[string](false)
	require.NotNil(t, event)
	assert.Equal(t, 0, event.ListenerCount())

	_, ok := event.Latest()
	assert.False(t, ok)
}

func TestChannelEvent_ListenNotifyUnregister(t *testing.T) {
	event := NewChannelEvent[string](false)

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("recording")
	event.Notify("paused")

	assert.Equal(t, []string{"recording", "paused"}, receiveN(t, ch, 2))

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("idle")
	select {
	case val := <-ch:
		t.Errorf("Unexpected value received after unregister: %s", val)
	default:
	}
}

func TestChannelEvent_MultipleListeners(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch1 := make(chan int, 10)
	ch2 := make(chan int, 10)
	defer event.Listen(ch1)()
	defer event.Listen(ch2)()

	event.Notify(42)
	event.Notify(100)

	assert.ElementsMatch(t, []int{42, 100}, receiveN(t, ch1, 2))
	assert.ElementsMatch(t, []int{42, 100}, receiveN(t, ch2, 2))
}

func TestChannelEvent_StickyReplaysLastValue(t *testing.T) {
	event := NewChannelEvent[speedReading](true)

	early := make(chan speedReading, 10)
	defer event.Listen(early)()
	select {
	case v := <-early:
		t.Errorf("Nothing should be replayed before the first Notify, got %v", v)
	case <-time.After(10 * time.Millisecond):
	}

	event.Notify(speedReading{Kmh: 30})
	event.Notify(speedReading{Kmh: 32, Grade: 1.5})
	receiveN(t, early, 2)

	late := make(chan speedReading, 10)
	defer event.Listen(late)()
	assert.Equal(t, []speedReading{{Kmh: 32, Grade: 1.5}}, receiveN(t, late, 1))

	latest, ok := event.Latest()
	assert.True(t, ok)
	assert.Equal(t, 32.0, latest.Kmh)
}

func TestChannelEvent_NotStickyDoesNotReplay(t *testing.T) {
	event := NewChannelEvent[string](false)
	event.Notify("before")

	ch := make(chan string, 10)
	defer event.Listen(ch)()

	select {
	case v := <-ch:
		t.Errorf("Unexpected replay: %s", v)
	case <-time.After(10 * time.Millisecond):
	}
	_, ok := event.Latest()
	assert.False(t, ok)
}

func TestChannelEvent_Listen_NilChannel(t *testing.T) {
	event := NewChannelEvent[string](false)
	assert.Panics(t, func() { event.Listen(nil) })
}

func TestChannelEvent_FullChannelDoesNotBlock(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch := make(chan int, 1)
	defer event.Listen(ch)()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			event.Notify(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full channel")
	}
	assert.Equal(t, 0, <-ch)
}

func TestChannelEvent_ListenLatestKeepsNewestValue(t *testing.T) {
	event := NewChannelEvent[string](true)

	ch := make(chan string, 1)
	defer event.ListenLatest(ch)()

	event.Notify("recording")
	event.Notify("paused")
	event.Notify("confirming")

	assert.Equal(t, "confirming", <-ch)
	select {
	case v := <-ch:
		t.Errorf("Unexpected stale value: %s", v)
	default:
	}
}

func TestChannelEvent_ListenLatestReplaysIntoFullBuffer(t *testing.T) {
	event := NewChannelEvent[speedReading](true)
	event.Notify(speedReading{Kmh: 32, Grade: 1.5})

	ch := make(chan speedReading, 1)
	ch <- speedReading{Kmh: 10}
	defer event.ListenLatest(ch)()

	assert.Equal(t, speedReading{Kmh: 32, Grade: 1.5}, <-ch)
}

func TestChannelEvent_ListenLatestMixedWithPlainListeners(t *testing.T) {
	event := NewChannelEvent[int](false)

	plain := make(chan int, 1)
	latest := make(chan int, 1)
	defer event.Listen(plain)()
	defer event.ListenLatest(latest)()

	for i := 1; i <= 4; i++ {
		event.Notify(i)
	}
	assert.Equal(t, 1, <-plain, "plain listeners keep the first value")
	assert.Equal(t, 4, <-latest, "latest listeners keep the last value")
}

func TestChannelEvent_ListenLatest_NilChannel(t *testing.T) {
	event := NewChannelEvent[string](false)
	assert.Panics(t, func() { event.ListenLatest(nil) })
}

func TestChannelEvent_UnregisterTwice(t *testing.T) {
	event := NewChannelEvent[int](false)
	unregister := event.Listen(make(chan int, 1))
	other := event.Listen(make(chan int, 1))
	defer other()

	unregister()
	unregister()
	assert.Equal(t, 1, event.ListenerCount())
}

func TestChannelEvent_ConcurrentAccess(t *testing.T) {
	event := NewChannelEvent[int](true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			ch := make(chan int, 100)
			unregister := event.Listen(ch)
			event.Notify(n)
			unregister()
		}(i)
		go func(n int) {
			defer wg.Done()
			event.Notify(n * 10)
			event.Latest()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, event.ListenerCount())
}
