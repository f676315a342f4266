package models

import "time"

// UploadStatus is the lifecycle state of a chunked-upload session. It only
// advances receiving → assembling → done, or to error from any state; a
// session is never reused after done or error.
type UploadStatus string

const (
	UploadReceiving  UploadStatus = "receiving"
	UploadAssembling UploadStatus = "assembling"
	UploadDone       UploadStatus = "done"
	UploadError      UploadStatus = "error"
)

// UploadSession is one in-progress chunked upload. TotalChunks is fixed at
// creation; the set of received chunk indices lives in its own table so
// duplicate deliveries stay idempotent.
type UploadSession struct {
	ID          string
	OwnerID     string
	Filename    string
	MimeType    string
	TotalChunks int
	ChunkSize   int64
	FileSize    int64
	Status      UploadStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
