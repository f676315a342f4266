// Package worker implements the background job handlers (pin, unpin,
// verify, thumbnail) and the worker-process application that runs their
// consumer loops.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/filex"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/models"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
)

// PinWorker makes a freshly assembled object durable: it pins the local
// file to the content store, records the content id, and kicks off
// thumbnail derivation for images.
type PinWorker struct {
	objects     objects.Repository
	store       pinata.Store
	queue       queue.Queue
	bus         events.Publisher
	logger      logging.Logger
	thumbPolicy queue.Policy
}

func NewPinWorker(repo objects.Repository, store pinata.Store, q queue.Queue, bus events.Publisher, logger logging.Logger, thumbPolicy queue.Policy) *PinWorker {
	return &PinWorker{
		objects:     repo,
		store:       store,
		queue:       q,
		bus:         bus,
		logger:      logger.With("worker", "pin"),
		thumbPolicy: thumbPolicy,
	}
}

// Handle processes one pin job. Handlers are idempotent under
// redelivery: pinning the same bytes again yields the same content id,
// and the record update is a targeted overwrite of the same fields.
func (w *PinWorker) Handle(ctx context.Context, job *queue.Job) error {
	obj, err := w.objects.Get(ctx, job.ObjectID)
	if err != nil {
		return fmt.Errorf("load object %s: %w", job.ObjectID, err)
	}

	w.publish(ctx, events.Event{
		Type: events.TypePinStart, JobID: job.ID, FileID: obj.ID, OwnerID: obj.OwnerID,
	})

	cid, err := w.store.Pin(ctx, job.LocalPath)
	if err != nil {
		// The scratch file stays for the retry; the object is parked in
		// failed until an attempt succeeds or the queue gives up.
		if serr := w.objects.SetStatus(ctx, obj.ID, models.ObjectFailed); serr != nil {
			w.logger.Error(ctx, "failed to mark object failed", "object_id", obj.ID, "error", serr.Error())
		}
		return fmt.Errorf("pin object %s: %w", obj.ID, err)
	}

	rec := models.PinRecord{Name: pinata.ProviderName, PinID: cid, PinnedAt: time.Now().UTC()}
	if err := w.objects.SetPinned(ctx, obj.ID, cid, rec); err != nil {
		return fmt.Errorf("record pin for object %s: %w", obj.ID, err)
	}

	w.logger.Info(ctx, "pinned", "object_id", obj.ID, "cid", cid)
	w.publish(ctx, events.Event{
		Type: events.TypePinSuccess, JobID: job.ID, FileID: obj.ID, OwnerID: obj.OwnerID, CID: cid,
	})

	if obj.IsImage() {
		thumbJob := queue.NewThumbnailJob(obj.ID, cid, obj.OwnerID, w.thumbPolicy)
		if err := w.queue.Enqueue(ctx, thumbJob); err != nil {
			// The pin itself succeeded; a lost thumbnail is not worth
			// re-running the whole job.
			w.logger.Error(ctx, "failed to enqueue thumbnail job", "object_id", obj.ID, "error", err.Error())
		} else {
			w.publish(ctx, events.Event{
				Type: events.TypeThumbQueued, FileID: obj.ID, OwnerID: obj.OwnerID,
			})
		}
	}

	filex.RemoveQuiet(job.LocalPath)
	return nil
}

func (w *PinWorker) publish(ctx context.Context, ev events.Event) {
	if err := w.bus.Publish(ctx, ev); err != nil {
		w.logger.Error(ctx, "failed to publish event", "type", ev.Type, "error", err.Error())
	}
}
