package ircd

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventLoopDeferRunsQueuedCallback(t *testing.T) {
	loop := NewEventLoop(nil)
	go loop.Run()
	defer loop.Stop()

	done := make(chan struct{})
	loop.Defer(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deferred callback did not run")
	}
}

func TestEventLoopDeferredPanicDoesNotStopLoop(t *testing.T) {
	loop := NewEventLoop(nil)
	go loop.Run()
	defer loop.Stop()

	loop.Defer(func() { panic("boom") })

	done := make(chan struct{})
	loop.Defer(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop should keep processing deferred callbacks after a panic")
	}
}

func TestEventLoopScanTimersFiresDueEntriesInOrder(t *testing.T) {
	loop := NewEventLoop(nil)

	var mu sync.Mutex
	var fired []string

	base := time.Unix(1000, 0)
	loop.ScheduleTimer("b", base.Add(2*time.Second), func() {
		mu.Lock()
		fired = append(fired, "b")
		mu.Unlock()
	})
	loop.ScheduleTimer("a", base.Add(1*time.Second), func() {
		mu.Lock()
		fired = append(fired, "a")
		mu.Unlock()
	})
	loop.ScheduleTimer("c", base.Add(10*time.Second), func() {
		mu.Lock()
		fired = append(fired, "c")
		mu.Unlock()
	})

	loop.scanTimers(base.Add(5 * time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, fired)
}

func TestEventLoopCancelTimerRemovesEntry(t *testing.T) {
	loop := NewEventLoop(nil)
	called := false
	loop.ScheduleTimer("x", time.Unix(1000, 0), func() { called = true })
	loop.CancelTimer("x")

	loop.scanTimers(time.Unix(2000, 0))
	assert.False(t, called)
}
