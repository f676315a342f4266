package worker

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
)

// UnpinWorker releases provider retention for deleted objects. The record
// update is guarded so it no-ops on objects already soft-deleted; the
// provider call itself succeeds even when the content id was already
// released upstream.
type UnpinWorker struct {
	objects objects.Repository
	store   pinata.Store
	bus     events.Publisher
	logger  logging.Logger
}

func NewUnpinWorker(repo objects.Repository, store pinata.Store, bus events.Publisher, logger logging.Logger) *UnpinWorker {
	return &UnpinWorker{
		objects: repo,
		store:   store,
		bus:     bus,
		logger:  logger.With("worker", "unpin"),
	}
}

func (w *UnpinWorker) Handle(ctx context.Context, job *queue.Job) error {
	w.publish(ctx, events.Event{
		Type: events.TypeUnpinStart, JobID: job.ID, FileID: job.ObjectID, OwnerID: job.OwnerID, CID: job.CID,
	})

	if err := w.store.Unpin(ctx, job.CID); err != nil {
		return fmt.Errorf("unpin %s: %w", job.CID, err)
	}

	if err := w.objects.ClearPin(ctx, job.ObjectID, job.CID); err != nil {
		return fmt.Errorf("clear pin for object %s: %w", job.ObjectID, err)
	}

	w.logger.Info(ctx, "unpinned", "object_id", job.ObjectID, "cid", job.CID)
	w.publish(ctx, events.Event{
		Type: events.TypeUnpinSuccess, JobID: job.ID, FileID: job.ObjectID, OwnerID: job.OwnerID, CID: job.CID,
	})
	return nil
}

func (w *UnpinWorker) publish(ctx context.Context, ev events.Event) {
	if err := w.bus.Publish(ctx, ev); err != nil {
		w.logger.Error(ctx, "failed to publish event", "type", ev.Type, "error", err.Error())
	}
}
