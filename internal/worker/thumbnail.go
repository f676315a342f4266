package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/filex"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/models"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
)

const thumbJPEGQuality = 70

// ThumbnailWorker derives a downscaled JPEG preview for a pinned image:
// fetch the original from the store, resize to at most maxWidth wide
// preserving aspect ratio, pin the result, and record its descriptor on
// the object. Both scratch files are removed whatever the outcome.
type ThumbnailWorker struct {
	objects  objects.Repository
	store    pinata.Store
	bus      events.Publisher
	logger   logging.Logger
	tempDir  string
	maxWidth int
}

func NewThumbnailWorker(repo objects.Repository, store pinata.Store, bus events.Publisher, logger logging.Logger, tempDir string, maxWidth int) *ThumbnailWorker {
	return &ThumbnailWorker{
		objects:  repo,
		store:    store,
		bus:      bus,
		logger:   logger.With("worker", "thumbnail"),
		tempDir:  tempDir,
		maxWidth: maxWidth,
	}
}

func (w *ThumbnailWorker) Handle(ctx context.Context, job *queue.Job) error {
	w.publish(ctx, events.Event{
		Type: events.TypeThumbStart, JobID: job.ID, FileID: job.ObjectID, OwnerID: job.OwnerID,
	})

	origPath := filepath.Join(w.tempDir, fmt.Sprintf("thumb-src-%s-%s", job.ObjectID, uuid.NewString()))
	thumbPath := origPath + ".thumb.jpg"
	defer filex.RemoveQuiet(origPath)
	defer filex.RemoveQuiet(thumbPath)

	if err := w.fetchOriginal(ctx, job.CID, origPath); err != nil {
		return fmt.Errorf("fetch original %s: %w", job.CID, err)
	}

	width, height, err := w.render(origPath, thumbPath)
	if err != nil {
		return fmt.Errorf("render thumbnail for object %s: %w", job.ObjectID, err)
	}

	thumbCID, err := w.store.Pin(ctx, thumbPath)
	if err != nil {
		return fmt.Errorf("pin thumbnail for object %s: %w", job.ObjectID, err)
	}

	thumb := models.Thumbnail{
		CID:         thumbCID,
		Format:      "jpeg",
		Width:       width,
		Height:      height,
		GeneratedAt: time.Now().UTC(),
	}
	if err := w.objects.SetThumbnail(ctx, job.ObjectID, thumb); err != nil {
		return fmt.Errorf("record thumbnail for object %s: %w", job.ObjectID, err)
	}

	w.logger.Info(ctx, "thumbnail generated",
		"object_id", job.ObjectID, "thumb_cid", thumbCID, "width", width, "height", height)
	w.publish(ctx, events.Event{
		Type: events.TypeThumbSuccess, JobID: job.ID, FileID: job.ObjectID, OwnerID: job.OwnerID,
		ThumbCID: thumbCID,
	})
	return nil
}

func (w *ThumbnailWorker) fetchOriginal(ctx context.Context, cid, dst string) error {
	rc, _, err := w.store.FetchStream(ctx, cid)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return fmt.Errorf("download content: %w", err)
	}
	return f.Close()
}

// render decodes the original, downscales it if it is wider than maxWidth,
// and writes the JPEG thumbnail. Images already narrow enough are
// re-encoded at their original size.
func (w *ThumbnailWorker) render(src, dst string) (int, int, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image: %w", err)
	}

	if img.Bounds().Dx() > w.maxWidth {
		img = imaging.Resize(img, w.maxWidth, 0, imaging.Lanczos)
	}

	if err := imaging.Save(img, dst, imaging.JPEGQuality(thumbJPEGQuality)); err != nil {
		return 0, 0, fmt.Errorf("encode thumbnail: %w", err)
	}

	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (w *ThumbnailWorker) publish(ctx context.Context, ev events.Event) {
	if err := w.bus.Publish(ctx, ev); err != nil {
		w.logger.Error(ctx, "failed to publish event", "type", ev.Type, "error", err.Error())
	}
}
