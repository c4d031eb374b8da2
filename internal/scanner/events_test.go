package scanner

import (
	"sync"
	"testing"
	"time"

	"github.com/costscope/costscope/internal/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json"})
}

func TestEventQueueDelivers(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	q := NewEventQueue(10, 1, func(ev Event) {
		mu.Lock()
		got = append(got, ev.ScanID)
		mu.Unlock()
	}, testLogger())

	q.Publish(Event{ScanID: "a"})
	q.Publish(Event{ScanID: "b"})
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("delivered %d events, want 2: %v", len(got), got)
	}
}

func TestEventQueueDropsOldestWhenFull(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	block := make(chan struct{})

	q := NewEventQueue(2, 1, func(ev Event) {
		<-block
		mu.Lock()
		got = append(got, ev.ScanID)
		mu.Unlock()
	}, testLogger())

	// first event is picked up by the worker and parks on block; the
	// buffer then absorbs two more and evicts the oldest on the fourth
	q.Publish(Event{ScanID: "a"})
	waitUntil(t, func() bool { return q.queued() == 0 })
	q.Publish(Event{ScanID: "b"})
	q.Publish(Event{ScanID: "c"})
	q.Publish(Event{ScanID: "d"})

	if q.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", q.Dropped())
	}

	close(block)
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// queued reports the current buffer depth, for test synchronization
func (q *EventQueue) queued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}
