// Package events carries job-lifecycle events from the workers to live
// client connections. The bus is fire-and-forget: no persistence, no
// replay, at-most-once delivery to each currently-connected subscriber.
// Ownership filtering happens at the subscriber layer, not here.
package events

import "context"

// Event type tags. One event is published per state transition.
const (
	TypePinStart   = "pin:start"
	TypePinSuccess = "pin:success"
	TypePinFailed  = "pin:failed"

	TypeUnpinStart   = "unpin:start"
	TypeUnpinSuccess = "unpin:success"
	TypeUnpinFailed  = "unpin:failed"

	TypeVerifyStart   = "verify:start"
	TypeVerifySuccess = "verify:success"
	TypeVerifyFailed  = "verify:failed"

	TypeThumbQueued  = "thumb:queued"
	TypeThumbStart   = "thumb:start"
	TypeThumbSuccess = "thumb:success"
	TypeThumbFailed  = "thumb:failed"

	TypeFileDeleted = "file:deleted"
)

// Event is the flat wire structure broadcast after a state transition.
// Kind-specific fields stay empty for events that do not use them.
type Event struct {
	Type    string `json:"type"`
	FileID  string `json:"fileId,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`
	JobID   string `json:"jobId,omitempty"`

	CID            string `json:"cid,omitempty"`
	ThumbCID       string `json:"thumbCid,omitempty"`
	Verified       *bool  `json:"verified,omitempty"`
	ComputedSHA256 string `json:"computedSha256,omitempty"`
	Error          string `json:"error,omitempty"`

	// Failure events carry the attempt number that just failed; Terminal
	// marks the last one, after which the job is dead-lettered.
	Attempt  int  `json:"attempt,omitempty"`
	Terminal bool `json:"terminal,omitempty"`
}

// Publisher is the send side of the bus. Workers hold only this.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus adds the receive side: one subscription per live client connection.
// A subscriber connected after an event was published never sees it.
type Bus interface {
	Publisher

	// Subscribe registers a new subscriber and returns its event channel
	// together with a cancel function that must be called when the
	// connection goes away.
	Subscribe() (<-chan Event, func())
}
