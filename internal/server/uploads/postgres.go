package uploads

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

// PostgresRepository implements Repository over a dbx.DBTX. Received chunk
// indices live in the upload_chunks table; the composite primary key plus
// ON CONFLICT DO NOTHING makes duplicate deliveries idempotent and leaves
// the received-set serialization to the database.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.UploadSession) error {
	query := `
		INSERT INTO uploads (id, owner_id, filename, mime_type, total_chunks, chunk_size, file_size, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.OwnerID, session.Filename, session.MimeType,
		session.TotalChunks, session.ChunkSize, session.FileSize, session.Status)
	if err != nil {
		return fmt.Errorf("insert upload session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `
		SELECT id, owner_id, filename, COALESCE(mime_type, ''), total_chunks,
		       COALESCE(chunk_size, 0), COALESCE(file_size, 0), status, created_at, updated_at
		FROM uploads WHERE id=$1
	`
	s := &models.UploadSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.OwnerID, &s.Filename, &s.MimeType, &s.TotalChunks,
		&s.ChunkSize, &s.FileSize, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select upload session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) RecordChunk(ctx context.Context, id string, index int) error {
	query := `
		INSERT INTO upload_chunks (upload_id, idx)
		VALUES ($1, $2)
		ON CONFLICT (upload_id, idx) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, id, index); err != nil {
		return fmt.Errorf("record chunk %d: %w", index, err)
	}

	touch := `UPDATE uploads SET updated_at=now() WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, touch, id); err != nil {
		return fmt.Errorf("touch upload session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReceivedChunks(ctx context.Context, id string) ([]int, error) {
	query := `SELECT idx FROM upload_chunks WHERE upload_id=$1 ORDER BY idx`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("select received chunks: %w", err)
	}
	defer rows.Close()

	var indices []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return indices, nil
}

func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status models.UploadStatus) error {
	query := `UPDATE uploads SET status=$2, updated_at=now() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SelectStale(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error) {
	query := `
		SELECT id, owner_id, filename, COALESCE(mime_type, ''), total_chunks,
		       COALESCE(chunk_size, 0), COALESCE(file_size, 0), status, created_at, updated_at
		FROM uploads
		WHERE status='receiving' AND updated_at < $1
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("select stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.UploadSession
	for rows.Next() {
		s := &models.UploadSession{}
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Filename, &s.MimeType, &s.TotalChunks,
			&s.ChunkSize, &s.FileSize, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
