package objects

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/filepin/internal/common"
	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/models"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testPolicy() queue.Policy {
	return queue.Policy{MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute}
}

// fakeStore satisfies pinata.Store for the download path.
type fakeStore struct {
	pinata.Store
	fetchBody string
	fetchInfo pinata.FetchInfo
	fetchErr  error
	fetchCID  string
}

func (s *fakeStore) FetchStream(ctx context.Context, cid string) (io.ReadCloser, pinata.FetchInfo, error) {
	s.fetchCID = cid
	if s.fetchErr != nil {
		return nil, pinata.FetchInfo{}, s.fetchErr
	}
	return io.NopCloser(strings.NewReader(s.fetchBody)), s.fetchInfo, nil
}

func seedObject(t *testing.T, repo *InMemoryRepository, obj *models.StoredObject) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), obj))
}

func pinnedObject(id, owner string) *models.StoredObject {
	return &models.StoredObject{
		ID:       id,
		OwnerID:  owner,
		Filename: "photo.jpg",
		Size:     1024,
		MimeType: "image/jpeg",
		SHA256:   "abc123",
		CID:      "bafyoriginal",
		Pinned:   true,
		Status:   models.ObjectAvailable,
	}
}

func TestGet_OwnershipAndDeletion(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := NewService(repo, queue.NewMemoryQueue(), &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
	ctx := context.Background()

	seedObject(t, repo, pinnedObject("f1", "o1"))

	_, err := svc.Get(ctx, "o1", "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = svc.Get(ctx, "intruder", "f1")
	assert.ErrorIs(t, err, common.ErrorForbidden)

	obj, err := svc.Get(ctx, "o1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", obj.ID)

	// Deleted objects read as gone, not forbidden.
	require.NoError(t, repo.MarkDeleted(ctx, "f1"))
	_, err = svc.Get(ctx, "o1", "f1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRequestVerify(t *testing.T) {
	t.Run("enqueues and sets guard", func(t *testing.T) {
		repo := NewInMemoryRepository()
		q := queue.NewMemoryQueue()
		svc := NewService(repo, q, &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		seedObject(t, repo, pinnedObject("f1", "o1"))

		require.NoError(t, svc.RequestVerify(ctx, "o1", "f1"))

		obj, err := repo.Get(ctx, "f1")
		require.NoError(t, err)
		assert.True(t, obj.VerificationPending)

		job, err := q.Dequeue(ctx, queue.KindVerify)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, "f1", job.ObjectID)
		assert.Equal(t, "o1", job.OwnerID)
	})

	t.Run("rejects while pending", func(t *testing.T) {
		repo := NewInMemoryRepository()
		svc := NewService(repo, queue.NewMemoryQueue(), &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		obj := pinnedObject("f1", "o1")
		obj.VerificationPending = true
		seedObject(t, repo, obj)

		err := svc.RequestVerify(ctx, "o1", "f1")
		assert.ErrorIs(t, err, common.ErrorVerificationPending)
	})

	t.Run("rejects without pinned content", func(t *testing.T) {
		repo := NewInMemoryRepository()
		svc := NewService(repo, queue.NewMemoryQueue(), &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		obj := pinnedObject("f1", "o1")
		obj.CID = ""
		obj.Pinned = false
		obj.Status = models.ObjectUploading
		seedObject(t, repo, obj)

		err := svc.RequestVerify(ctx, "o1", "f1")
		assert.ErrorIs(t, err, common.ErrorValidation)
	})

	t.Run("rolls back guard when enqueue fails", func(t *testing.T) {
		repo := NewInMemoryRepository()
		q := &failEnqueueQueue{MemoryQueue: queue.NewMemoryQueue()}
		svc := NewService(repo, q, &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		seedObject(t, repo, pinnedObject("f1", "o1"))

		err := svc.RequestVerify(ctx, "o1", "f1")
		require.Error(t, err)

		obj, err := repo.Get(ctx, "f1")
		require.NoError(t, err)
		assert.False(t, obj.VerificationPending, "guard must not stay set for a job that never enqueued")
	})
}

type failEnqueueQueue struct {
	*queue.MemoryQueue
}

func (q *failEnqueueQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	return errors.New("broker unavailable")
}

func TestDelete(t *testing.T) {
	t.Run("pinned object enqueues unpin and publishes event", func(t *testing.T) {
		repo := NewInMemoryRepository()
		q := queue.NewMemoryQueue()
		bus := events.NewMemoryBus()
		svc := NewService(repo, q, &fakeStore{}, bus, testLogger(), testPolicy())
		ctx := context.Background()

		sub, unsub := bus.Subscribe()
		defer unsub()

		seedObject(t, repo, pinnedObject("f1", "o1"))

		require.NoError(t, svc.Delete(ctx, "o1", "f1"))

		obj, err := repo.Get(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, models.ObjectDeleted, obj.Status)
		assert.False(t, obj.Pinned)

		job, err := q.Dequeue(ctx, queue.KindUnpin)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, "f1", job.ObjectID)
		assert.Equal(t, "bafyoriginal", job.CID)

		select {
		case ev := <-sub:
			assert.Equal(t, events.TypeFileDeleted, ev.Type)
			assert.Equal(t, "f1", ev.FileID)
			assert.Equal(t, "o1", ev.OwnerID)
		case <-time.After(time.Second):
			t.Fatal("expected file:deleted event")
		}
	})

	t.Run("unpinned object skips the unpin job", func(t *testing.T) {
		repo := NewInMemoryRepository()
		q := queue.NewMemoryQueue()
		svc := NewService(repo, q, &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		obj := pinnedObject("f1", "o1")
		obj.Pinned = false
		obj.CID = ""
		seedObject(t, repo, obj)

		require.NoError(t, svc.Delete(ctx, "o1", "f1"))
		assert.Zero(t, q.Pending(queue.KindUnpin))
	})

	t.Run("deletion proceeds when the unpin enqueue fails", func(t *testing.T) {
		repo := NewInMemoryRepository()
		q := &failEnqueueQueue{MemoryQueue: queue.NewMemoryQueue()}
		svc := NewService(repo, q, &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		seedObject(t, repo, pinnedObject("f1", "o1"))

		require.NoError(t, svc.Delete(ctx, "o1", "f1"))

		obj, err := repo.Get(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, models.ObjectDeleted, obj.Status)
	})

	t.Run("deleting twice reads as not found", func(t *testing.T) {
		repo := NewInMemoryRepository()
		svc := NewService(repo, queue.NewMemoryQueue(), &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		seedObject(t, repo, pinnedObject("f1", "o1"))
		require.NoError(t, svc.Delete(ctx, "o1", "f1"))

		err := svc.Delete(ctx, "o1", "f1")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestDownload(t *testing.T) {
	t.Run("streams with metadata fallback", func(t *testing.T) {
		repo := NewInMemoryRepository()
		store := &fakeStore{fetchBody: "content-bytes", fetchInfo: pinata.FetchInfo{}}
		svc := NewService(repo, queue.NewMemoryQueue(), store, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		seedObject(t, repo, pinnedObject("f1", "o1"))

		rc, info, err := svc.Download(ctx, "o1", "f1")
		require.NoError(t, err)
		defer rc.Close()

		assert.Equal(t, "bafyoriginal", store.fetchCID)
		assert.Equal(t, "photo.jpg", info.Filename)
		assert.Equal(t, "image/jpeg", info.ContentType)
		assert.Equal(t, int64(1024), info.Size)

		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "content-bytes", string(data))
	})

	t.Run("gateway metadata wins when present", func(t *testing.T) {
		repo := NewInMemoryRepository()
		store := &fakeStore{fetchBody: "x", fetchInfo: pinata.FetchInfo{Size: 1, ContentType: "text/plain", Filename: "gw.txt"}}
		svc := NewService(repo, queue.NewMemoryQueue(), store, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		seedObject(t, repo, pinnedObject("f1", "o1"))

		rc, info, err := svc.Download(ctx, "o1", "f1")
		require.NoError(t, err)
		rc.Close()

		assert.Equal(t, "gw.txt", info.Filename)
		assert.Equal(t, "text/plain", info.ContentType)
		assert.Equal(t, int64(1), info.Size)
	})

	t.Run("no content yet", func(t *testing.T) {
		repo := NewInMemoryRepository()
		svc := NewService(repo, queue.NewMemoryQueue(), &fakeStore{}, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		obj := pinnedObject("f1", "o1")
		obj.CID = ""
		seedObject(t, repo, obj)

		_, _, err := svc.Download(ctx, "o1", "f1")
		assert.ErrorIs(t, err, common.ErrorValidation)
	})

	t.Run("provider error propagates", func(t *testing.T) {
		repo := NewInMemoryRepository()
		store := &fakeStore{fetchErr: pinata.ErrProvider}
		svc := NewService(repo, queue.NewMemoryQueue(), store, events.NewMemoryBus(), testLogger(), testPolicy())
		ctx := context.Background()

		seedObject(t, repo, pinnedObject("f1", "o1"))

		_, _, err := svc.Download(ctx, "o1", "f1")
		assert.ErrorIs(t, err, pinata.ErrProvider)
	})
}
