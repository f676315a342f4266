package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "filepin:queue:"
	dequeueTimeout = 1 * time.Second
	promoteBatch   = 64

	// leaseTTL bounds how long a dequeued job may sit in the processing
	// list before the sweep assumes its worker died and returns it to the
	// ready list. It must exceed the longest legitimate handler run.
	leaseTTL = 15 * time.Minute
)

// RedisQueue is the durable Queue both processes share. Each kind gets a
// ready list, a delayed sorted set scored by ready time, a processing list
// with a lease sorted set scored by lease expiry, and a dead list. Dequeue
// moves the job atomically from ready to processing, so a worker crash
// never loses it: the job stays in processing until Ack, Retry, or Fail
// removes it, and expired leases are swept back onto the ready list.
type RedisQueue struct {
	rdb *redis.Client

	// inflight maps job id to the exact payload bytes delivered by
	// Dequeue, so settling can remove that entry from the processing list.
	mu       sync.Mutex
	inflight map[string]string
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{
		rdb:      rdb,
		inflight: make(map[string]string),
	}
}

func readyKey(kind Kind) string      { return keyPrefix + string(kind) }
func delayedKey(kind Kind) string    { return keyPrefix + string(kind) + ":delayed" }
func processingKey(kind Kind) string { return keyPrefix + string(kind) + ":processing" }
func leaseKey(kind Kind) string      { return keyPrefix + string(kind) + ":leases" }
func deadKey(kind Kind) string       { return keyPrefix + string(kind) + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, readyKey(job.Kind), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s job: %w", job.Kind, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, kind Kind) (*Job, error) {
	if err := q.promoteDue(ctx, kind); err != nil {
		return nil, err
	}

	payload, err := q.rdb.BLMove(ctx, readyKey(kind), processingKey(kind), "RIGHT", "LEFT", dequeueTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue %s job: %w", kind, err)
	}

	deadline := float64(time.Now().Add(leaseTTL).UnixMilli())
	if err := q.rdb.ZAdd(ctx, leaseKey(kind), redis.Z{Score: deadline, Member: payload}).Err(); err != nil {
		// Without a lease the sweep would never reclaim the payload; hand
		// it straight back to the ready list.
		q.rdb.LRem(ctx, processingKey(kind), 1, payload)
		q.rdb.LPush(ctx, readyKey(kind), payload)
		return nil, fmt.Errorf("lease %s job: %w", kind, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// A payload that cannot decode would bounce between processing and
		// ready forever; park it on the dead list instead.
		pipe := q.rdb.Pipeline()
		pipe.LRem(ctx, processingKey(kind), 1, payload)
		pipe.ZRem(ctx, leaseKey(kind), payload)
		pipe.LPush(ctx, deadKey(kind), payload)
		_, _ = pipe.Exec(ctx)
		return nil, fmt.Errorf("decode %s job: %w", kind, err)
	}

	q.mu.Lock()
	q.inflight[job.ID] = payload
	q.mu.Unlock()

	return &job, nil
}

// settle removes the job's processing entry and lease. A job this process
// never dequeued has no record here; its stale processing entry, if any,
// is reclaimed by the lease sweep.
func (q *RedisQueue) settle(ctx context.Context, job *Job) error {
	q.mu.Lock()
	payload, ok := q.inflight[job.ID]
	delete(q.inflight, job.ID)
	q.mu.Unlock()
	if !ok {
		return nil
	}

	pipe := q.rdb.Pipeline()
	pipe.LRem(ctx, processingKey(job.Kind), 1, payload)
	pipe.ZRem(ctx, leaseKey(job.Kind), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("settle %s job: %w", job.Kind, err)
	}
	return nil
}

// promoteDue moves delayed jobs whose ready time has passed, and
// processing entries whose lease expired, back onto the ready list.
// Removal before push keeps an entry from being promoted by two consumers
// at once.
func (q *RedisQueue) promoteDue(ctx context.Context, kind Kind) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	if err := q.promoteSet(ctx, kind, delayedKey(kind), now, nil); err != nil {
		return err
	}
	return q.promoteSet(ctx, kind, leaseKey(kind), now, func(member string) error {
		// The abandoned payload is still in the processing list.
		return q.rdb.LRem(ctx, processingKey(kind), 1, member).Err()
	})
}

func (q *RedisQueue) promoteSet(ctx context.Context, kind Kind, key, max string, beforePush func(member string) error) error {
	members, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   max,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("promote %s jobs: %w", kind, err)
	}

	for _, m := range members {
		removed, err := q.rdb.ZRem(ctx, key, m).Result()
		if err != nil {
			return fmt.Errorf("promote %s jobs: %w", kind, err)
		}
		if removed == 0 {
			continue // another consumer won the race
		}
		if beforePush != nil {
			if err := beforePush(m); err != nil {
				return fmt.Errorf("promote %s jobs: %w", kind, err)
			}
		}
		if err := q.rdb.LPush(ctx, readyKey(kind), m).Err(); err != nil {
			return fmt.Errorf("promote %s jobs: %w", kind, err)
		}
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	return q.settle(ctx, job)
}

func (q *RedisQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	if err := q.settle(ctx, job); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	z := redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: data,
	}
	if err := q.rdb.ZAdd(ctx, delayedKey(job.Kind), z).Err(); err != nil {
		return fmt.Errorf("retry %s job: %w", job.Kind, err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, job *Job) error {
	if err := q.settle(ctx, job); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, deadKey(job.Kind), data).Err(); err != nil {
		return fmt.Errorf("dead-letter %s job: %w", job.Kind, err)
	}
	return nil
}
