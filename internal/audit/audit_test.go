package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// recordingWriter collects written events for assertions.
type recordingWriter struct {
	mu     sync.Mutex
	events []Event
	gate   chan struct{} // when set, Write blocks until the gate closes
}

func (w *recordingWriter) Write(event Event) {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
}

func (w *recordingWriter) snapshot() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Event(nil), w.events...)
}

func TestQueueDeliversEvents(t *testing.T) {
	w := &recordingWriter{}
	q := NewQueue(16, 2, w)

	customerID := primitive.NewObjectID()
	for i := 0; i < 5; i++ {
		q.Publish(Event{Action: "earn", CustomerID: customerID, Points: int64(i)})
	}
	q.Close()

	events := w.snapshot()
	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, "earn", e.Action)
		assert.Equal(t, customerID, e.CustomerID)
		assert.False(t, e.At.IsZero(), "Publish stamps the event time")
	}
	assert.Equal(t, int64(0), q.Dropped())
}

func TestQueueDropsOldestUnderBackpressure(t *testing.T) {
	gate := make(chan struct{})
	w := &recordingWriter{gate: gate}
	q := NewQueue(2, 1, w)

	// The worker blocks on the gate; the queue holds 2, so further
	// publishes must evict the oldest pending event instead of blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Publish(Event{Action: "earn", Points: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked under backpressure")
	}

	close(gate)
	q.Close()
	assert.Greater(t, q.Dropped(), int64(0))
}

func TestQueuePublishAfterCloseIsDropped(t *testing.T) {
	w := &recordingWriter{}
	q := NewQueue(4, 1, w)
	q.Close()

	q.Publish(Event{Action: "earn"})
	assert.Equal(t, int64(1), q.Dropped())
	assert.Empty(t, w.snapshot())
}
