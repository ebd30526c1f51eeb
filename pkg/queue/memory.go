package queue

import (
	"context"
	"sync"
	"time"
)

// Delivery records one published payload for inspection in tests.
type Delivery struct {
	OrderingKey string
	Payload     []byte
	Delay       time.Duration
}

// MemoryQueue is an in-process Client. Deliveries are recorded (with their
// requested delays, so backoff behavior is observable) and handed to the
// subscriber synchronously in publish order per key.
type MemoryQueue struct {
	mu        sync.Mutex
	pending   []Delivery
	Published []Delivery // every publish ever made, in order
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Publish enqueues a payload.
func (q *MemoryQueue) Publish(ctx context.Context, orderingKey string, payload []byte) error {
	return q.PublishAfter(ctx, orderingKey, payload, 0)
}

// PublishAfter enqueues a payload recording the requested delay. The delay
// is not slept in tests.
func (q *MemoryQueue) PublishAfter(ctx context.Context, orderingKey string, payload []byte, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d := Delivery{OrderingKey: orderingKey, Payload: append([]byte(nil), payload...), Delay: delay}
	q.pending = append(q.pending, d)
	q.Published = append(q.Published, d)
	return nil
}

// Subscribe drains pending deliveries through handler until the queue is
// empty or ctx is done, then returns.
func (q *MemoryQueue) Subscribe(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		d, ok := q.pop()
		if !ok {
			return nil
		}
		if err := handler(ctx, d.Payload); err != nil {
			// Mirror transport redelivery.
			q.mu.Lock()
			q.pending = append([]Delivery{d}, q.pending...)
			q.mu.Unlock()
			return err
		}
	}
}

// Pending returns a copy of the not-yet-delivered payloads.
func (q *MemoryQueue) Pending() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Delivery, len(q.pending))
	copy(out, q.pending)
	return out
}

func (q *MemoryQueue) pop() (Delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Delivery{}, false
	}
	d := q.pending[0]
	q.pending = q.pending[1:]
	return d, true
}
