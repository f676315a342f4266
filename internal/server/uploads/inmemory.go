package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/filepin/internal/common"
	"github.com/dmitrijs2005/filepin/internal/server/models"
)

// InMemoryRepository is a map-backed Repository for tests and development.
type InMemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
	chunks   map[string]map[int]struct{}
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions: make(map[string]*models.UploadSession),
		chunks:   make(map[string]map[int]struct{}),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, session *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *session
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.sessions[session.ID] = &cp
	r.chunks[session.ID] = make(map[int]struct{})
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *InMemoryRepository) RecordChunk(ctx context.Context, id string, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.chunks[id][index] = struct{}{}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) ReceivedChunks(ctx context.Context, id string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.chunks[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	indices := make([]int, 0, len(set))
	for idx := range set {
		indices = append(indices, idx)
	}
	return indices, nil
}

func (r *InMemoryRepository) SetStatus(ctx context.Context, id string, status models.UploadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) SelectStale(ctx context.Context, cutoff time.Time) ([]*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.UploadSession
	for _, s := range r.sessions {
		if s.Status == models.UploadReceiving && s.UpdatedAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}
