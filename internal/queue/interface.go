package queue

import (
	"context"
	"time"
)

// MessageInterface is a received job plus its acknowledgement handle.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue is the interface for job queues.
type JobQueue interface {
	// Enqueue adds a job to the queue. Jobs with NotBefore in the future
	// are held back until their window opens.
	Enqueue(ctx context.Context, job *Job) error

	// Consume returns a channel of messages delivered as they arrive.
	// The caller must Ack or Nack each message. prefetchCount bounds the
	// unacknowledged messages this consumer holds; 1 gives fair dispatch
	// across workers. The channels close when ctx is cancelled or the
	// connection drops.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close closes the queue connection.
	Close() error

	// HealthCheck verifies the queue connection is healthy.
	HealthCheck(ctx context.Context) error
}

// DLQPurger removes dead-lettered messages past their retention.
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
