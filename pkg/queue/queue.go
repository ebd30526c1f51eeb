// Package queue abstracts the page-job delivery mechanism. Jobs published
// with the same ordering key are delivered sequentially, which is what keeps
// checkpoint writes and rollup recomputation race-free per grant.
package queue

import (
	"context"
	"time"
)

// Handler processes one delivered payload. Returning an error nacks the
// message so the transport redelivers it.
type Handler func(ctx context.Context, payload []byte) error

// Client publishes and consumes page jobs. Constructed once per process and
// passed explicitly into the ingestion entry points, so tests can run with
// the in-memory implementation and no network.
type Client interface {
	// Publish enqueues a payload under an ordering key.
	Publish(ctx context.Context, orderingKey string, payload []byte) error

	// PublishAfter enqueues a payload after a delay. Used for continuation
	// smoothing and backoff retries.
	PublishAfter(ctx context.Context, orderingKey string, payload []byte, delay time.Duration) error

	// Subscribe blocks, delivering payloads to handler until ctx is done.
	Subscribe(ctx context.Context, handler Handler) error
}
