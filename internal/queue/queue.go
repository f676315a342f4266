package queue

import (
	"context"
	"time"
)

// Queue is the broker contract shared by both processes. Enqueue failures
// surface synchronously so callers can roll back the state change that
// preceded them. Delivery is at-least-once: a dequeued job stays on an
// in-flight record until Ack, Retry, or Fail settles it, and a consumer
// that dies mid-job has its lease expire and the job redelivered, so
// handlers must tolerate duplicates.
type Queue interface {
	// Enqueue admits a job for asynchronous execution.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue pops the next ready job of the given kind, blocking briefly.
	// It returns (nil, nil) when no job became ready within the internal
	// poll window. The job is held in flight until settled.
	Dequeue(ctx context.Context, kind Kind) (*Job, error)

	// Ack settles a job that ran to completion.
	Ack(ctx context.Context, job *Job) error

	// Retry settles the job and schedules it for redelivery after delay.
	Retry(ctx context.Context, job *Job, delay time.Duration) error

	// Fail settles the job and moves it to the dead list. It is never
	// silently dropped.
	Fail(ctx context.Context, job *Job) error
}
