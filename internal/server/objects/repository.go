// Package objects owns the StoredObject record: its repository and the
// API-side operations (verify trigger, deletion, download) that act on it.
package objects

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filepin/internal/server/models"
)

// Repository persists StoredObject records.
//
// Every mutation is a targeted partial update touching only the fields of
// one worker concern, so concurrent workers of different kinds never
// clobber each other's writes. Mutations also exclude deleted objects:
// status "deleted" is terminal, and a worker update that lands after
// deletion must degrade to a no-op rather than resurrect the record.
type Repository interface {
	Create(ctx context.Context, obj *models.StoredObject) error
	Get(ctx context.Context, id string) (*models.StoredObject, error)

	// SetPinned records a successful pin: content id, pinned flag, provider
	// record, status=available.
	SetPinned(ctx context.Context, id, cid string, rec models.PinRecord) error

	// ClearPin records a successful unpin of cid: pinned flag cleared,
	// provider record removed, status=available.
	ClearPin(ctx context.Context, id, cid string) error

	// SetStatus moves the object to the given pipeline status.
	SetStatus(ctx context.Context, id string, status models.ObjectStatus) error

	// MarkDeleted soft-deletes: status=deleted and the pin flag cleared.
	MarkDeleted(ctx context.Context, id string) error

	// SetVerificationPending flips the duplicate-verify guard.
	SetVerificationPending(ctx context.Context, id string, pending bool) error

	// SetVerifyResult records one verification attempt and always clears
	// the pending flag, whether or not the attempt completed.
	SetVerifyResult(ctx context.Context, id string, at time.Time, digest string, verified bool) error

	// SetThumbnail stores the derived-thumbnail descriptor.
	SetThumbnail(ctx context.Context, id string, t models.Thumbnail) error
}
