// Package queue implements the durable background-job subsystem: one queue
// per job kind with at-least-once delivery, per-job retry accounting and
// exponential backoff, and a dead list for jobs that exhausted their
// attempts.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Kind tags a job with the background operation it requests. The consumer
// dispatches on it to the matching handler.
type Kind string

const (
	KindPin       Kind = "pin"
	KindUnpin     Kind = "unpin"
	KindVerify    Kind = "verify"
	KindThumbnail Kind = "thumbnail"
)

// Kinds lists every job kind, in the order worker pools are started.
var Kinds = []Kind{KindPin, KindUnpin, KindVerify, KindThumbnail}

// Policy controls redelivery of a failing job: total attempts and the
// exponential backoff between them.
type Policy struct {
	MaxAttempts int           `json:"max_attempts"`
	BackoffBase time.Duration `json:"backoff_base"`
	BackoffCap  time.Duration `json:"backoff_cap"`
}

// Delay returns the redelivery delay after the given zero-based attempt:
// base * 2^attempt, capped.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if p.BackoffCap > 0 && d > p.BackoffCap {
		return p.BackoffCap
	}
	return d
}

// Job is one unit of queued work. The payload fields are kind-specific:
//
//	pin       — ObjectID, LocalPath
//	unpin     — ObjectID, CID
//	verify    — ObjectID
//	thumbnail — ObjectID, CID, OwnerID
//
// Attempt counts executions so far; the queue increments it on failure
// before deciding between redelivery and the dead list.
type Job struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	ObjectID   string    `json:"object_id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	LocalPath  string    `json:"local_path,omitempty"`
	CID        string    `json:"cid,omitempty"`
	Attempt    int       `json:"attempt"`
	Policy     Policy    `json:"policy"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func newJob(kind Kind, policy Policy) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Policy:     policy,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewPinJob requests pinning of the assembled local file for an object.
func NewPinJob(objectID, localPath string, policy Policy) *Job {
	j := newJob(KindPin, policy)
	j.ObjectID = objectID
	j.LocalPath = localPath
	return j
}

// NewUnpinJob requests release of an object's pinned content id.
func NewUnpinJob(objectID, cid string, policy Policy) *Job {
	j := newJob(KindUnpin, policy)
	j.ObjectID = objectID
	j.CID = cid
	return j
}

// NewVerifyJob requests re-hashing of an object's stored bytes.
func NewVerifyJob(objectID string, policy Policy) *Job {
	j := newJob(KindVerify, policy)
	j.ObjectID = objectID
	return j
}

// NewThumbnailJob requests thumbnail derivation for a pinned image.
func NewThumbnailJob(objectID, cid, ownerID string, policy Policy) *Job {
	j := newJob(KindThumbnail, policy)
	j.ObjectID = objectID
	j.CID = cid
	j.OwnerID = ownerID
	return j
}
