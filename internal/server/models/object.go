// Package models defines the data models persisted in the database and
// shared between the API process and the workers.
package models

import "time"

// ObjectStatus is the pipeline lifecycle state of a stored object.
type ObjectStatus string

const (
	// ObjectUploading: assembled locally, pin not finished yet.
	ObjectUploading ObjectStatus = "uploading"
	// ObjectAvailable: content is pinned and fetchable.
	ObjectAvailable ObjectStatus = "available"
	// ObjectProcessing: a background job is reworking the object.
	ObjectProcessing ObjectStatus = "processing"
	// ObjectFailed: the pipeline gave up; recovery needs a fresh upload.
	ObjectFailed ObjectStatus = "failed"
	// ObjectDeleted is terminal: workers may only no-op on the record.
	ObjectDeleted ObjectStatus = "deleted"
)

// PinRecord describes the provider-side retention of an object's content.
type PinRecord struct {
	Name     string
	PinID    string
	PinnedAt time.Time
}

// Thumbnail is the derived-preview descriptor for image objects.
type Thumbnail struct {
	CID         string
	Format      string
	Width       int
	Height      int
	GeneratedAt time.Time
}

// StoredObject is the durable record for a file once assembly has produced
// it, independent of how it was chunked on the way in.
//
// CID and the pin fields stay empty until the pin worker succeeds; the
// verification fields are meaningful only after at least one verify job
// has run.
type StoredObject struct {
	ID       string
	OwnerID  string
	Filename string
	Size     int64
	MimeType string
	SHA256   string

	CID    string
	Pinned bool
	Status ObjectStatus
	Pin    *PinRecord

	VerificationPending bool
	Verified            bool
	LastVerifiedAt      *time.Time
	LastVerifiedSHA256  string

	Thumbnail *Thumbnail

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsImage reports whether the declared media type marks the object as an
// image, which is what gates thumbnail derivation.
func (o *StoredObject) IsImage() bool {
	return len(o.MimeType) > 6 && o.MimeType[:6] == "image/"
}
