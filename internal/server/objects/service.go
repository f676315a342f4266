package objects

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/filepin/internal/common"
	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/models"
)

// Service exposes the API-side operations on stored objects: requesting
// verification, deletion, and download passthrough. Ownership is checked
// here; the repository does not know about principals.
type Service struct {
	repo   Repository
	queue  queue.Queue
	store  pinata.Store
	bus    events.Publisher
	logger logging.Logger
	policy queue.Policy
}

func NewService(repo Repository, q queue.Queue, store pinata.Store, bus events.Publisher, logger logging.Logger, policy queue.Policy) *Service {
	return &Service{
		repo:   repo,
		queue:  q,
		store:  store,
		bus:    bus,
		logger: logger,
		policy: policy,
	}
}

// getOwned loads the object and enforces ownership. Deleted objects are
// reported as not found: from the caller's perspective they no longer
// exist.
func (s *Service) getOwned(ctx context.Context, ownerID, id string) (*models.StoredObject, error) {
	obj, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.Status == models.ObjectDeleted {
		return nil, common.ErrorNotFound
	}
	if obj.OwnerID != ownerID {
		return nil, common.ErrorForbidden
	}
	return obj, nil
}

// Get returns the object for its owner.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.StoredObject, error) {
	return s.getOwned(ctx, ownerID, id)
}

// RequestVerify enqueues a verify job for the object. A request is
// rejected while a verification is already in flight, and requires the
// object to have pinned content to verify against.
func (s *Service) RequestVerify(ctx context.Context, ownerID, id string) error {
	obj, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if obj.CID == "" {
		return fmt.Errorf("%w: object has no pinned content to verify", common.ErrorValidation)
	}
	if obj.VerificationPending {
		return common.ErrorVerificationPending
	}

	if err := s.repo.SetVerificationPending(ctx, id, true); err != nil {
		return err
	}

	job := queue.NewVerifyJob(id, s.policy)
	job.OwnerID = obj.OwnerID
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// The guard was set for a job that never made it in; roll it back
		// so a later request is not locked out.
		if rerr := s.repo.SetVerificationPending(ctx, id, false); rerr != nil {
			s.logger.Error(ctx, "failed to roll back verification-pending flag",
				"object_id", id, "error", rerr.Error())
		}
		return fmt.Errorf("enqueue verify job: %w", err)
	}

	return nil
}

// Delete soft-deletes the object and, when it was pinned, enqueues the
// matching unpin job. Deletion proceeds even if the cleanup enqueue fails;
// a user's delete must not hang on background housekeeping.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	obj, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if obj.Pinned && obj.CID != "" {
		job := queue.NewUnpinJob(id, obj.CID, s.policy)
		job.OwnerID = obj.OwnerID
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Error(ctx, "failed to enqueue unpin job, deleting anyway",
				"object_id", id, "cid", obj.CID, "error", err.Error())
		}
	}

	if err := s.repo.MarkDeleted(ctx, id); err != nil {
		return err
	}

	ev := events.Event{Type: events.TypeFileDeleted, FileID: id, OwnerID: obj.OwnerID}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Error(ctx, "failed to publish deletion event", "object_id", id, "error", err.Error())
	}

	return nil
}

// Download streams the object's content from the store gateway. The
// returned info falls back to the object's own metadata where the gateway
// reports none.
func (s *Service) Download(ctx context.Context, ownerID, id string) (io.ReadCloser, pinata.FetchInfo, error) {
	obj, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, pinata.FetchInfo{}, err
	}
	if obj.CID == "" {
		return nil, pinata.FetchInfo{}, fmt.Errorf("%w: object content is not available yet", common.ErrorValidation)
	}

	rc, info, err := s.store.FetchStream(ctx, obj.CID)
	if err != nil {
		return nil, pinata.FetchInfo{}, err
	}

	if info.Filename == "" {
		info.Filename = obj.Filename
	}
	if info.ContentType == "" {
		info.ContentType = obj.MimeType
	}
	if info.Size == 0 {
		info.Size = obj.Size
	}
	return rc, info, nil
}
