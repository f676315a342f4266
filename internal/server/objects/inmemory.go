package objects

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/filepin/internal/common"
	"github.com/dmitrijs2005/filepin/internal/server/models"
)

// InMemoryRepository is a map-backed Repository used in tests and in
// no-database development setups. Mutations mirror the Postgres
// implementation's semantics, including the deleted-is-terminal guard.
type InMemoryRepository struct {
	mu      sync.Mutex
	objects map[string]*models.StoredObject
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{objects: make(map[string]*models.StoredObject)}
}

func (r *InMemoryRepository) Create(ctx context.Context, obj *models.StoredObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *obj
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.objects[obj.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*models.StoredObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *obj
	return &cp, nil
}

// mutate applies fn to the object if it exists and is not deleted.
// Matching the SQL implementation, a missing or deleted object is a no-op.
func (r *InMemoryRepository) mutate(id string, fn func(obj *models.StoredObject)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[id]
	if !ok || obj.Status == models.ObjectDeleted {
		return nil
	}
	fn(obj)
	obj.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) SetPinned(ctx context.Context, id, cid string, rec models.PinRecord) error {
	return r.mutate(id, func(obj *models.StoredObject) {
		obj.CID = cid
		obj.Pinned = true
		obj.Status = models.ObjectAvailable
		pin := rec
		obj.Pin = &pin
	})
}

func (r *InMemoryRepository) ClearPin(ctx context.Context, id, cid string) error {
	return r.mutate(id, func(obj *models.StoredObject) {
		if obj.Pin == nil || obj.Pin.PinID != cid {
			return
		}
		obj.Pinned = false
		obj.Status = models.ObjectAvailable
		obj.Pin = nil
	})
}

func (r *InMemoryRepository) SetStatus(ctx context.Context, id string, status models.ObjectStatus) error {
	return r.mutate(id, func(obj *models.StoredObject) {
		obj.Status = status
	})
}

func (r *InMemoryRepository) MarkDeleted(ctx context.Context, id string) error {
	return r.mutate(id, func(obj *models.StoredObject) {
		obj.Status = models.ObjectDeleted
		obj.Pinned = false
	})
}

func (r *InMemoryRepository) SetVerificationPending(ctx context.Context, id string, pending bool) error {
	return r.mutate(id, func(obj *models.StoredObject) {
		obj.VerificationPending = pending
	})
}

func (r *InMemoryRepository) SetVerifyResult(ctx context.Context, id string, at time.Time, digest string, verified bool) error {
	return r.mutate(id, func(obj *models.StoredObject) {
		obj.VerificationPending = false
		obj.Verified = verified
		t := at
		obj.LastVerifiedAt = &t
		obj.LastVerifiedSHA256 = digest
	})
}

func (r *InMemoryRepository) SetThumbnail(ctx context.Context, id string, t models.Thumbnail) error {
	return r.mutate(id, func(obj *models.StoredObject) {
		th := t
		obj.Thumbnail = &th
	})
}
