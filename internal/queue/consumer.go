package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/logging"
)

// HandlerFunc executes one job. Returning an error hands the job back to
// the queue for retry accounting; the queue never preempts a running
// handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// Consumer is the long-lived loop for one job kind: it pulls jobs and runs
// them on a bounded pool. Every failed attempt publishes a <kind>:failed
// event, so a client watching a job is never silent through a backoff
// window; the final attempt's event is marked terminal, and exhaustion
// additionally dead-letters the job and invokes the exhaustion hook.
type Consumer struct {
	queue       Queue
	bus         events.Publisher
	logger      logging.Logger
	kind        Kind
	handler     HandlerFunc
	concurrency int

	// onExhausted runs after a job's final failed attempt, before the
	// terminal event is published. Used to mark the referenced object
	// failed. Optional.
	onExhausted func(ctx context.Context, job *Job, jobErr error)
}

func NewConsumer(q Queue, bus events.Publisher, logger logging.Logger, kind Kind, concurrency int, handler HandlerFunc) *Consumer {
	return &Consumer{
		queue:       q,
		bus:         bus,
		logger:      logger.With("queue", string(kind)),
		kind:        kind,
		handler:     handler,
		concurrency: concurrency,
	}
}

// OnExhausted registers the exhaustion hook and returns the consumer.
func (c *Consumer) OnExhausted(fn func(ctx context.Context, job *Job, jobErr error)) *Consumer {
	c.onExhausted = fn
	return c
}

// Run pulls jobs until ctx is cancelled, then waits for in-flight handlers
// to finish.
func (c *Consumer) Run(ctx context.Context) error {
	g := &errgroup.Group{}
	g.SetLimit(c.concurrency)

	c.logger.Info(ctx, "consumer started", "concurrency", c.concurrency)

	for {
		if ctx.Err() != nil {
			break
		}

		job, err := c.dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error(ctx, "dequeue failed, backing off", "error", err.Error())
			continue
		}
		if job == nil {
			// The Redis broker already blocks in Dequeue; the pause only
			// matters for the in-memory broker, which returns immediately.
			select {
			case <-ctx.Done():
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		// Once delivered, a handler runs to completion even during
		// shutdown; cancellation is not a lever the queue has.
		jobCtx := context.WithoutCancel(ctx)
		g.Go(func() error {
			c.process(jobCtx, job)
			return nil
		})
	}

	_ = g.Wait()
	c.logger.Info(context.WithoutCancel(ctx), "consumer stopped")
	return nil
}

// dequeue wraps the broker call with backoff so a transient broker outage
// does not spin the loop.
func (c *Consumer) dequeue(ctx context.Context) (*Job, error) {
	var job *Job
	b := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var derr error
		job, derr = c.queue.Dequeue(ctx, c.kind)
		if derr != nil {
			return retry.RetryableError(derr)
		}
		return nil
	})
	return job, err
}

func (c *Consumer) process(ctx context.Context, job *Job) {
	err := c.handler(ctx, job)
	if err == nil {
		if aerr := c.withBrokerRetry(ctx, func(ctx context.Context) error {
			return c.queue.Ack(ctx, job)
		}); aerr != nil {
			c.logger.Error(ctx, "failed to ack job", "job_id", job.ID, "error", aerr.Error())
		}
		return
	}

	job.Attempt++
	terminal := job.Attempt >= job.Policy.MaxAttempts
	c.logger.Warn(ctx, "job attempt failed",
		"job_id", job.ID, "object_id", job.ObjectID, "attempt", job.Attempt, "error", err.Error())

	// Every failed attempt is announced, not only the last one; without
	// this a watcher sees <kind>:start and then nothing for the whole
	// backoff window.
	ev := events.Event{
		Type:     fmt.Sprintf("%s:failed", c.kind),
		JobID:    job.ID,
		FileID:   job.ObjectID,
		OwnerID:  job.OwnerID,
		Error:    err.Error(),
		Attempt:  job.Attempt,
		Terminal: terminal,
	}
	if perr := c.bus.Publish(ctx, ev); perr != nil {
		c.logger.Error(ctx, "failed to publish failure event", "job_id", job.ID, "error", perr.Error())
	}

	if !terminal {
		delay := job.Policy.Delay(job.Attempt - 1)
		if rerr := c.withBrokerRetry(ctx, func(ctx context.Context) error {
			return c.queue.Retry(ctx, job, delay)
		}); rerr != nil {
			c.logger.Error(ctx, "failed to schedule redelivery", "job_id", job.ID, "error", rerr.Error())
		}
		return
	}

	// Attempts exhausted: dead-letter and mark the object.
	if ferr := c.withBrokerRetry(ctx, func(ctx context.Context) error {
		return c.queue.Fail(ctx, job)
	}); ferr != nil {
		c.logger.Error(ctx, "failed to dead-letter job", "job_id", job.ID, "error", ferr.Error())
	}

	if c.onExhausted != nil {
		c.onExhausted(ctx, job, err)
	}

	c.logger.Error(ctx, "job permanently failed",
		"job_id", job.ID, "object_id", job.ObjectID, "attempts", job.Attempt, "error", err.Error())
}

func (c *Consumer) withBrokerRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
