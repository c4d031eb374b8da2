package scanner

import (
	"sync"
	"time"

	"github.com/costscope/costscope/internal/domain/scan"
	"github.com/costscope/costscope/internal/pkg/logger"
	"github.com/costscope/costscope/internal/pkg/metrics"
)

// Event is one progress update emitted by a running scan
type Event struct {
	ScanID    string      `json:"scan_id"`
	Step      scan.Step   `json:"step"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Status    scan.Status `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventHandler consumes progress events. Handlers run on the queue's
// worker pool, never on the scan goroutine.
type EventHandler func(Event)

// EventQueue decouples scan execution from event consumers with a bounded
// buffer. When the buffer is full the oldest event is dropped; a slow
// consumer can never stall a scan.
type EventQueue struct {
	mu      sync.Mutex
	buf     []Event
	cap     int
	dropped uint64
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	log     *logger.Logger
}

// NewEventQueue starts a queue with the given capacity and worker count
func NewEventQueue(capacity, workers int, handler EventHandler, log *logger.Logger) *EventQueue {
	if capacity < 1 {
		capacity = 1
	}
	if workers < 1 {
		workers = 1
	}
	q := &EventQueue{
		cap:  capacity,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(handler)
	}
	return q
}

// Publish enqueues an event, evicting the oldest entry when full. Never
// blocks.
func (q *EventQueue) Publish(ev Event) {
	q.mu.Lock()
	if len(q.buf) >= q.cap {
		q.buf = q.buf[1:]
		q.dropped++
		metrics.RecordEventDropped()
	}
	q.buf = append(q.buf, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dropped returns the number of events evicted so far
func (q *EventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close drains the queue and stops the workers
func (q *EventQueue) Close() {
	close(q.done)
	q.wg.Wait()
}

func (q *EventQueue) worker(handler EventHandler) {
	defer q.wg.Done()
	for {
		ev, ok := q.pop()
		if ok {
			handler(ev)
			continue
		}
		select {
		case <-q.wake:
		case <-q.done:
			// final drain
			for {
				ev, ok := q.pop()
				if !ok {
					return
				}
				handler(ev)
			}
		}
	}
}

func (q *EventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return Event{}, false
	}
	ev := q.buf[0]
	q.buf = q.buf[1:]
	return ev, true
}
