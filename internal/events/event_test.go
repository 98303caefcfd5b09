package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reading struct {
	BPM     int
	Battery int
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for value")
	}
	var zero T
	return zero
}

func assertEmpty[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	default:
	}
}

func TestChannelEvent_ListenNotify(t *testing.T) {
	event := NewChannelEvent[int](false)
	ch := make(chan int, 4)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify(120)
	event.Notify(121)
	assert.Equal(t, 120, receive(t, ch))
	assert.Equal(t, 121, receive(t, ch))

	unregister()
	assert.Equal(t, 0, event.ListenerCount())
	event.Notify(122)
	assertEmpty(t, ch)

	// unregistering twice is harmless
	unregister()
}

func TestChannelEvent_ReplayLastValue(t *testing.T) {
	event := NewChannelEvent[reading](true)

	early := make(chan reading, 4)
	defer event.Listen(early)()
	assertEmpty(t, early)

	event.Notify(reading{BPM: 140, Battery: 80})
	assert.Equal(t, 140, receive(t, early).BPM)

	late := make(chan reading, 4)
	defer event.Listen(late)()
	assert.Equal(t, reading{BPM: 140, Battery: 80}, receive(t, late))
}

func TestChannelEvent_NoReplay(t *testing.T) {
	event := NewChannelEvent[string](false)
	event.Notify("before")

	ch := make(chan string, 1)
	defer event.Listen(ch)()
	assertEmpty(t, ch)
}

func TestChannelEvent_FullChannelIsSkipped(t *testing.T) {
	event := NewChannelEvent[string](false)
	ch := make(chan string, 1)
	defer event.Listen(ch)()

	ch <- "blocking"
	event.Notify("dropped")
	assert.Equal(t, 1, len(ch))

	<-ch
	event.Notify("delivered")
	assert.Equal(t, "delivered", receive(t, ch))
}

func TestChannelEvent_NilChannelPanics(t *testing.T) {
	event := NewChannelEvent[string](false)
	assert.Panics(t, func() { event.Listen(nil) })
}

func TestChannelEvent_ConcurrentNotify(t *testing.T) {
	event := NewChannelEvent[int](false)
	channels := make([]chan int, 5)
	for i := range channels {
		channels[i] = make(chan int, 20)
		defer event.Listen(channels[i])()
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			event.Notify(v)
		}(i)
	}
	wg.Wait()

	for _, ch := range channels {
		assert.Equal(t, 10, len(ch))
	}
}

func TestCallbackEvent_ListenNotify(t *testing.T) {
	event := NewCallbackEvent[reading](false)

	var mu sync.Mutex
	var got []reading
	unregister := event.Listen(func(r reading) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})

	event.Notify(reading{BPM: 100})
	event.Notify(reading{BPM: 101})
	unregister()
	event.Notify(reading{BPM: 102})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, 101, got[1].BPM)
}

func TestCallbackEvent_ReplayLastValue(t *testing.T) {
	event := NewCallbackEvent[string](true)
	event.Notify("connected")

	var got []string
	unregister := event.Listen(func(s string) { got = append(got, s) })
	defer unregister()

	assert.Equal(t, []string{"connected"}, got)
}

func TestCallbackEvent_UnregisterDuringNotify(t *testing.T) {
	event := NewCallbackEvent[string](false)

	var got []string
	var unregister func()
	unregister = event.Listen(func(s string) {
		got = append(got, s)
		if s == "stop" {
			unregister()
		}
	})

	event.Notify("a")
	event.Notify("stop")
	event.Notify("b")

	assert.Equal(t, []string{"a", "stop"}, got)
	assert.Equal(t, 0, event.ListenerCount())
}

func TestCallbackEvent_NilCallbackPanics(t *testing.T) {
	event := NewCallbackEvent[int](false)
	assert.Panics(t, func() { event.Listen(nil) })
}
