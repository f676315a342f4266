package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/models"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
)

func TestUnpinWorker_Success(t *testing.T) {
	repo := objects.NewInMemoryRepository()
	store := &fakeStore{}
	bus := events.NewMemoryBus()
	sub, unsub := bus.Subscribe()
	defer unsub()

	w := NewUnpinWorker(repo, store, bus, testLogger())
	ctx := context.Background()

	obj := uploadingObject("f1", "o1", "text/plain")
	obj.CID = "bafygone"
	obj.Pinned = true
	obj.Status = models.ObjectAvailable
	obj.Pin = &models.PinRecord{Name: "pinata", PinID: "bafygone", PinnedAt: time.Now()}
	seedObject(t, repo, obj)

	job := queue.NewUnpinJob("f1", "bafygone", testPolicy())
	job.OwnerID = "o1"
	require.NoError(t, w.Handle(ctx, job))

	assert.Equal(t, []string{"bafygone"}, store.unpinCIDs)

	got, err := repo.Get(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, got.Pinned)
	assert.Nil(t, got.Pin)

	evs := collectEvents(sub)
	assert.Equal(t, []string{events.TypeUnpinStart, events.TypeUnpinSuccess}, typesOf(evs))
	assert.Equal(t, "bafygone", evs[1].CID)
}

func TestUnpinWorker_DeletedObjectStaysDeleted(t *testing.T) {
	repo := objects.NewInMemoryRepository()
	store := &fakeStore{}
	w := NewUnpinWorker(repo, store, events.NewMemoryBus(), testLogger())
	ctx := context.Background()

	obj := uploadingObject("f1", "o1", "text/plain")
	obj.CID = "bafygone"
	obj.Pinned = true
	seedObject(t, repo, obj)
	require.NoError(t, repo.MarkDeleted(ctx, "f1"))

	// The usual case: the user deleted the file, the unpin job lands after.
	require.NoError(t, w.Handle(ctx, queue.NewUnpinJob("f1", "bafygone", testPolicy())))

	got, err := repo.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.ObjectDeleted, got.Status, "a late record update must not resurrect a deleted object")
}

func TestUnpinWorker_ProviderError(t *testing.T) {
	repo := objects.NewInMemoryRepository()
	store := &fakeStore{unpinErr: pinata.ErrProvider}
	w := NewUnpinWorker(repo, store, events.NewMemoryBus(), testLogger())
	ctx := context.Background()

	obj := uploadingObject("f1", "o1", "text/plain")
	obj.CID = "bafygone"
	obj.Pinned = true
	obj.Status = models.ObjectAvailable
	obj.Pin = &models.PinRecord{Name: "pinata", PinID: "bafygone"}
	seedObject(t, repo, obj)

	err := w.Handle(ctx, queue.NewUnpinJob("f1", "bafygone", testPolicy()))
	require.ErrorIs(t, err, pinata.ErrProvider)

	// The pin record is only cleared after the provider confirms.
	got, gerr := repo.Get(ctx, "f1")
	require.NoError(t, gerr)
	assert.True(t, got.Pinned)
}
