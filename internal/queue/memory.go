package queue

import (
	"context"
	"sync"
	"time"
)

type delayedJob struct {
	job     *Job
	readyAt time.Time
}

type leasedJob struct {
	job      *Job
	deadline time.Time
}

// MemoryQueue is an in-process Queue used by tests and by single-process
// setups where Redis is not configured. It mirrors the broker contract:
// delayed jobs become visible once their ready time passes, and a
// dequeued job stays leased until Ack, Retry, or Fail settles it, after
// which an expired lease puts it back on the ready list.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    map[Kind][]*Job
	delayed  map[Kind][]delayedJob
	inflight map[Kind][]leasedJob
	dead     map[Kind][]*Job

	// now is swappable in tests.
	now func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		ready:    make(map[Kind][]*Job),
		delayed:  make(map[Kind][]delayedJob),
		inflight: make(map[Kind][]leasedJob),
		dead:     make(map[Kind][]*Job),
		now:      time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready[job.Kind] = append(q.ready[job.Kind], job)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, kind Kind) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteLocked(kind)

	jobs := q.ready[kind]
	if len(jobs) == 0 {
		return nil, nil
	}
	job := jobs[0]
	q.ready[kind] = jobs[1:]
	q.inflight[kind] = append(q.inflight[kind], leasedJob{job: job, deadline: q.now().Add(leaseTTL)})
	return job, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settleLocked(job)
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settleLocked(job)
	q.delayed[job.Kind] = append(q.delayed[job.Kind], delayedJob{job: job, readyAt: q.now().Add(delay)})
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settleLocked(job)
	q.dead[job.Kind] = append(q.dead[job.Kind], job)
	return nil
}

func (q *MemoryQueue) settleLocked(job *Job) {
	leases := q.inflight[job.Kind]
	for i, l := range leases {
		if l.job.ID == job.ID {
			q.inflight[job.Kind] = append(leases[:i], leases[i+1:]...)
			return
		}
	}
}

// promoteLocked moves due delayed jobs and expired leases back to ready.
func (q *MemoryQueue) promoteLocked(kind Kind) {
	now := q.now()

	var stillDelayed []delayedJob
	for _, d := range q.delayed[kind] {
		if d.readyAt.After(now) {
			stillDelayed = append(stillDelayed, d)
			continue
		}
		q.ready[kind] = append(q.ready[kind], d.job)
	}
	q.delayed[kind] = stillDelayed

	var stillLeased []leasedJob
	for _, l := range q.inflight[kind] {
		if l.deadline.After(now) {
			stillLeased = append(stillLeased, l)
			continue
		}
		q.ready[kind] = append(q.ready[kind], l.job)
	}
	q.inflight[kind] = stillLeased
}

// Dead returns a copy of the dead list for kind.
func (q *MemoryQueue) Dead(kind Kind) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.dead[kind]))
	copy(out, q.dead[kind])
	return out
}

// Pending returns how many jobs of kind are ready or delayed.
func (q *MemoryQueue) Pending(kind Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready[kind]) + len(q.delayed[kind])
}

// Inflight returns how many dequeued jobs of kind are still unsettled.
func (q *MemoryQueue) Inflight(kind Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight[kind])
}
