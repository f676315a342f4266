package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/filex"
	"github.com/dmitrijs2005/filepin/internal/hashx"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
)

// VerifyWorker re-fetches an object's bytes from the store and compares
// their digest with the one recorded at assembly time. An attempt that
// cannot complete still resolves to verified=false with the pending flag
// cleared: "could not verify" counts as not verified, never as unknown.
type VerifyWorker struct {
	objects objects.Repository
	store   pinata.Store
	bus     events.Publisher
	logger  logging.Logger
	tempDir string
}

func NewVerifyWorker(repo objects.Repository, store pinata.Store, bus events.Publisher, logger logging.Logger, tempDir string) *VerifyWorker {
	return &VerifyWorker{
		objects: repo,
		store:   store,
		bus:     bus,
		logger:  logger.With("worker", "verify"),
		tempDir: tempDir,
	}
}

func (w *VerifyWorker) Handle(ctx context.Context, job *queue.Job) error {
	obj, err := w.objects.Get(ctx, job.ObjectID)
	if err != nil {
		return fmt.Errorf("load object %s: %w", job.ObjectID, err)
	}

	w.publish(ctx, events.Event{
		Type: events.TypeVerifyStart, JobID: job.ID, FileID: obj.ID, OwnerID: obj.OwnerID,
	})

	scratch := filepath.Join(w.tempDir, fmt.Sprintf("verify-%s-%s", obj.ID, uuid.NewString()))
	defer filex.RemoveQuiet(scratch)

	computed, err := w.fetchAndHash(ctx, obj.CID, scratch)
	if err != nil {
		if serr := w.objects.SetVerifyResult(ctx, obj.ID, time.Now().UTC(), "", false); serr != nil {
			w.logger.Error(ctx, "failed to record verify failure", "object_id", obj.ID, "error", serr.Error())
		}
		return fmt.Errorf("verify object %s: %w", obj.ID, err)
	}

	verified := obj.SHA256 != "" && computed == obj.SHA256
	if err := w.objects.SetVerifyResult(ctx, obj.ID, time.Now().UTC(), computed, verified); err != nil {
		return fmt.Errorf("record verify result for object %s: %w", obj.ID, err)
	}

	if !verified {
		w.logger.Warn(ctx, "digest mismatch",
			"object_id", obj.ID, "expected", obj.SHA256, "computed", computed)
	}

	// A mismatch is a result, not a job failure: it is recorded and
	// surfaced, never retried automatically.
	w.publish(ctx, events.Event{
		Type: events.TypeVerifySuccess, JobID: job.ID, FileID: obj.ID, OwnerID: obj.OwnerID,
		Verified: &verified, ComputedSHA256: computed,
	})
	return nil
}

func (w *VerifyWorker) fetchAndHash(ctx context.Context, cid, scratch string) (string, error) {
	rc, _, err := w.store.FetchStream(ctx, cid)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.Create(scratch)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("fetch content: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return hashx.SHA256File(scratch)
}

func (w *VerifyWorker) publish(ctx context.Context, ev events.Event) {
	if err := w.bus.Publish(ctx, ev); err != nil {
		w.logger.Error(ctx, "failed to publish event", "type", ev.Type, "error", err.Error())
	}
}
