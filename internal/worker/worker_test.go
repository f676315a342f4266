package worker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/filepin/internal/events"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/pinata"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/models"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testPolicy() queue.Policy {
	return queue.Policy{MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute}
}

// fakeStore is a scripted pinata.Store.
type fakeStore struct {
	pinCID     string
	pinErr     error
	pinnedPath string
	pinCalls   int

	unpinErr  error
	unpinCIDs []string

	fetchBody []byte
	fetchErr  error
	fetchCIDs []string
}

func (s *fakeStore) Pin(ctx context.Context, localPath string) (string, error) {
	s.pinCalls++
	s.pinnedPath = localPath
	if s.pinErr != nil {
		return "", s.pinErr
	}
	return s.pinCID, nil
}

func (s *fakeStore) Unpin(ctx context.Context, cid string) error {
	s.unpinCIDs = append(s.unpinCIDs, cid)
	return s.unpinErr
}

func (s *fakeStore) FetchStream(ctx context.Context, cid string) (io.ReadCloser, pinata.FetchInfo, error) {
	s.fetchCIDs = append(s.fetchCIDs, cid)
	if s.fetchErr != nil {
		return nil, pinata.FetchInfo{}, s.fetchErr
	}
	return io.NopCloser(bytes.NewReader(s.fetchBody)), pinata.FetchInfo{Size: int64(len(s.fetchBody))}, nil
}

func seedObject(t *testing.T, repo *objects.InMemoryRepository, obj *models.StoredObject) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), obj))
}

func writeScratchFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "scratch-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

// collectEvents drains everything currently buffered on the subscription
// channel and returns the event types in order.
func collectEvents(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func typesOf(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}
