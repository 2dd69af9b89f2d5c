// Package audit is the fire-and-forget sink for ledger facts. Operations
// publish who/what/before/after records; persistence and querying live
// elsewhere. A publish failure must never fail or roll back a ledger
// operation, so Publish cannot block and cannot return an error.
package audit

import (
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"
)

// Event is one structured audit fact.
type Event struct {
	Action        string                 `json:"action"`
	CustomerID    primitive.ObjectID     `json:"customerId"`
	TransactionID primitive.ObjectID     `json:"transactionId,omitempty"`
	Points        int64                  `json:"points"`
	BalanceBefore int64                  `json:"balanceBefore"`
	BalanceAfter  int64                  `json:"balanceAfter"`
	Details       map[string]interface{} `json:"details,omitempty"`
	At            time.Time              `json:"at"`
}

// Writer consumes events off the queue.
type Writer interface {
	Write(event Event)
}

// Publisher is what ledger operations depend on.
type Publisher interface {
	Publish(event Event)
}

// Queue is a bounded audit queue drained by a fixed worker pool. When the
// queue is full the oldest pending event is dropped to admit the new one;
// backpressure never reaches the ledger operation.
type Queue struct {
	events  chan Event
	writer  Writer
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	dropped int64
}

var _ Publisher = (*Queue)(nil)

// NewQueue creates and starts a queue with the given capacity and worker
// count. Close must be called to drain it on shutdown.
func NewQueue(capacity, workers int, writer Writer) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	q := &Queue{
		events: make(chan Event, capacity),
		writer: writer,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.run()
	}
	return q
}

// Publish enqueues an event without blocking. On a full queue the oldest
// pending event is discarded and counted.
func (q *Queue) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.dropped++
		return
	}
	for {
		select {
		case q.events <- event:
			return
		default:
		}
		// Full: drop the oldest and retry. The drain below can race with
		// a worker also receiving, hence the loop.
		select {
		case <-q.events:
			q.dropped++
		default:
		}
	}
}

// Dropped reports how many events were discarded under backpressure.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops intake, drains remaining events and waits for the workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.events)
	q.wg.Wait()

	if d := q.Dropped(); d > 0 {
		slog.Warn("Audit queue dropped events under backpressure", "dropped", d)
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for event := range q.events {
		q.writer.Write(event)
	}
}

// LogWriter writes audit events to the structured log. The full detail of
// ledger failures is only visible here, per the error-surface design.
type LogWriter struct {
	Logger *slog.Logger
}

// Write logs one event.
func (w *LogWriter) Write(event Event) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("audit",
		"action", event.Action,
		"customerId", event.CustomerID.Hex(),
		"transactionId", event.TransactionID.Hex(),
		"points", event.Points,
		"balanceBefore", event.BalanceBefore,
		"balanceAfter", event.BalanceAfter,
		"at", event.At,
		"details", event.Details,
	)
}

// Discard is a Publisher that drops everything; useful in tests.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(Event) {}
