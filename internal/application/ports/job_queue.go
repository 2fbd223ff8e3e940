package ports

import (
	"context"
	"time"
)

// JobOptions configures one enqueue call.
type JobOptions struct {
	// JobID deduplicates submissions: enqueueing the same JobID twice
	// yields a single processed job.
	JobID string
	// Attempts is the max delivery attempts before a job moves to failed.
	Attempts int
	// BaseBackoff is the base delay for exponential backoff between
	// attempts (delay = BaseBackoff * 2^(attempt-1)).
	BaseBackoff time.Duration
}

// Job is one unit of work dequeued from a Queue.
type Job struct {
	ID      string
	Type    string
	Data    []byte
	Attempt int
}

// JobHandler processes a dequeued Job. Returning an error causes a retry
// until attempts are exhausted, after which the job moves to failed.
type JobHandler func(ctx context.Context, job Job) error

// QueueStats mirrors spec §4.6's stats() contract.
type QueueStats struct {
	Waiting   int
	Active    int
	Completed int
	Failed    int
	Delayed   int
}

// Queue is a persistent FIFO of typed jobs with at-least-once delivery,
// configurable retries and exponential backoff (spec §4.6).
type Queue interface {
	// Enqueue submits data under jobType, deduplicated by opts.JobID.
	Enqueue(ctx context.Context, jobType string, data []byte, opts JobOptions) error

	// Consume runs handler against jobs as they become ready, blocking
	// until ctx is cancelled. Safe to call from multiple goroutines to
	// get worker concurrency.
	Consume(ctx context.Context, jobType string, handler JobHandler) error

	// Stats reports queue depth for jobType.
	Stats(ctx context.Context, jobType string) (QueueStats, error)

	// Close stops accepting new work and releases transport resources.
	// Callers should let in-flight Consume calls drain via ctx first.
	Close() error
}
