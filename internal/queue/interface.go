package queue

import (
	"context"
	"time"
)

// Delivery is one consumed training job awaiting settlement. Workers depend
// on it rather than *Message so tests can settle jobs without a broker.
type Delivery interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// Enqueuer publishes training jobs. The admin API and the retry path of the
// worker only need this half of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// JobQueue is the full broker surface used by the server and the worker.
type JobQueue interface {
	Enqueuer
	// Consume delivers jobs until ctx ends. At most prefetchCount deliveries
	// are unsettled at once; every one must be acked or nacked.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// DLQPurger removes dead-lettered jobs older than a retention period.
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
