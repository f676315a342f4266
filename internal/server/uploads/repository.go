// Package uploads implements the chunked-upload assembler: session
// bookkeeping, per-index part storage, and index-ordered assembly into a
// single local file that is handed to the pin pipeline.
package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filepin/internal/server/models"
)

// Repository persists upload sessions and their received-chunk sets.
// RecordChunk must be idempotent per (session, index): a re-delivered
// index is recorded once, so the completion check can rely on per-index
// presence rather than a count that duplicates could inflate.
type Repository interface {
	Create(ctx context.Context, session *models.UploadSession) error
	Get(ctx context.Context, id string) (*models.UploadSession, error)

	RecordChunk(ctx context.Context, id string, index int) error
	ReceivedChunks(ctx context.Context, id string) ([]int, error)

	SetStatus(ctx context.Context, id string, status models.UploadStatus) error

	// SelectStale returns receiving sessions that saw no update since the
	// cutoff; the sweeper abandons them.
	SelectStale(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error)
}
