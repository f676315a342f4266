package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filepin/internal/common"
	"github.com/dmitrijs2005/filepin/internal/dbx"
	"github.com/dmitrijs2005/filepin/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or
// *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, obj *models.StoredObject) error {
	query := `
		INSERT INTO objects (id, owner_id, filename, size, mime_type, sha256, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		obj.ID, obj.OwnerID, obj.Filename, obj.Size, obj.MimeType, obj.SHA256, obj.Status)
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	query := `
		SELECT id, owner_id, filename, size, mime_type, sha256,
		       COALESCE(cid, ''), pinned, status,
		       pin_provider_name, pin_provider_id, pinned_at,
		       verification_pending, verified, last_verified_at, COALESCE(last_verified_sha256, ''),
		       thumb_cid, thumb_format, thumb_width, thumb_height, thumb_generated_at,
		       created_at, updated_at
		FROM objects WHERE id=$1
	`

	obj := &models.StoredObject{}
	var (
		pinName, pinID, thumbCID, thumbFormat sql.NullString
		pinnedAt, thumbGeneratedAt            sql.NullTime
		lastVerifiedAt                        sql.NullTime
		thumbWidth, thumbHeight               sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&obj.ID, &obj.OwnerID, &obj.Filename, &obj.Size, &obj.MimeType, &obj.SHA256,
		&obj.CID, &obj.Pinned, &obj.Status,
		&pinName, &pinID, &pinnedAt,
		&obj.VerificationPending, &obj.Verified, &lastVerifiedAt, &obj.LastVerifiedSHA256,
		&thumbCID, &thumbFormat, &thumbWidth, &thumbHeight, &thumbGeneratedAt,
		&obj.CreatedAt, &obj.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select object: %w", err)
	}

	if pinID.Valid {
		obj.Pin = &models.PinRecord{Name: pinName.String, PinID: pinID.String, PinnedAt: pinnedAt.Time}
	}
	if lastVerifiedAt.Valid {
		t := lastVerifiedAt.Time
		obj.LastVerifiedAt = &t
	}
	if thumbCID.Valid {
		obj.Thumbnail = &models.Thumbnail{
			CID:         thumbCID.String,
			Format:      thumbFormat.String,
			Width:       int(thumbWidth.Int64),
			Height:      int(thumbHeight.Int64),
			GeneratedAt: thumbGeneratedAt.Time,
		}
	}

	return obj, nil
}

// exec runs a targeted update that must not touch deleted objects. Zero
// affected rows is not an error: either the object is gone (the caller has
// its own not-found path) or it was deleted mid-flight, in which case the
// update degrades to the mandated no-op.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update object: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetPinned(ctx context.Context, id, cid string, rec models.PinRecord) error {
	query := `
		UPDATE objects
		SET cid=$2, pinned=TRUE, status='available',
		    pin_provider_name=$3, pin_provider_id=$4, pinned_at=$5,
		    updated_at=now()
		WHERE id=$1 AND status <> 'deleted'
	`
	return r.exec(ctx, query, id, cid, rec.Name, rec.PinID, rec.PinnedAt)
}

func (r *PostgresRepository) ClearPin(ctx context.Context, id, cid string) error {
	query := `
		UPDATE objects
		SET pinned=FALSE, status='available',
		    pin_provider_name=NULL, pin_provider_id=NULL, pinned_at=NULL,
		    updated_at=now()
		WHERE id=$1 AND pin_provider_id=$2 AND status <> 'deleted'
	`
	return r.exec(ctx, query, id, cid)
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.ObjectStatus) error {
	query := `
		UPDATE objects SET status=$2, updated_at=now()
		WHERE id=$1 AND status <> 'deleted'
	`
	return r.exec(ctx, query, id, status)
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string) error {
	query := `
		UPDATE objects SET status='deleted', pinned=FALSE, updated_at=now()
		WHERE id=$1 AND status <> 'deleted'
	`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) SetVerificationPending(ctx context.Context, id string, pending bool) error {
	query := `
		UPDATE objects SET verification_pending=$2, updated_at=now()
		WHERE id=$1 AND status <> 'deleted'
	`
	return r.exec(ctx, query, id, pending)
}

func (r *PostgresRepository) SetVerifyResult(ctx context.Context, id string, at time.Time, digest string, verified bool) error {
	query := `
		UPDATE objects
		SET verification_pending=FALSE, verified=$2,
		    last_verified_at=$3, last_verified_sha256=$4,
		    updated_at=now()
		WHERE id=$1 AND status <> 'deleted'
	`
	return r.exec(ctx, query, id, verified, at, digest)
}

func (r *PostgresRepository) SetThumbnail(ctx context.Context, id string, t models.Thumbnail) error {
	query := `
		UPDATE objects
		SET thumb_cid=$2, thumb_format=$3, thumb_width=$4, thumb_height=$5, thumb_generated_at=$6,
		    updated_at=now()
		WHERE id=$1 AND status <> 'deleted'
	`
	return r.exec(ctx, query, id, t.CID, t.Format, t.Width, t.Height, t.GeneratedAt)
}
