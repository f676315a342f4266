package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filepin/internal/common"
	"github.com/dmitrijs2005/filepin/internal/filex"
	"github.com/dmitrijs2005/filepin/internal/hashx"
	"github.com/dmitrijs2005/filepin/internal/logging"
	"github.com/dmitrijs2005/filepin/internal/queue"
	"github.com/dmitrijs2005/filepin/internal/server/models"
	"github.com/dmitrijs2005/filepin/internal/server/objects"
)

// SessionStatus is the read-only view returned by Status.
type SessionStatus struct {
	SessionID string
	Filename  string
	Received  []int
	Total     int
	State     models.UploadStatus
}

// Service is the chunk assembler. Chunk writes for one session may arrive
// concurrently from multiple connections; part files are independent, so
// the writes themselves need no mutual exclusion, but received-set
// bookkeeping and the completion transition are serialized per session.
type Service struct {
	repo    Repository
	objects objects.Repository
	queue   queue.Queue
	logger  logging.Logger
	tempDir string
	policy  queue.Policy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo Repository, objRepo objects.Repository, q queue.Queue, logger logging.Logger, tempDir string, policy queue.Policy) *Service {
	return &Service{
		repo:    repo,
		objects: objRepo,
		queue:   q,
		logger:  logger,
		tempDir: tempDir,
		policy:  policy,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-session mutex, creating it on first use.
func (s *Service) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// forgetLock drops the session's mutex entry once the session is done or
// errored; without this the map grows one entry per session forever.
func (s *Service) forgetLock(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

func (s *Service) chunkDir(id string) string {
	return filepath.Join(s.tempDir, "chunks", id)
}

func (s *Service) partPath(id string, index int) string {
	return filepath.Join(s.chunkDir(id), fmt.Sprintf("part.%d", index))
}

// InitSession declares a new chunked upload and allocates its scratch
// directory.
func (s *Service) InitSession(ctx context.Context, ownerID, filename, mimeType string, totalChunks int, chunkSize, fileSize int64) (*models.UploadSession, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename required", common.ErrorValidation)
	}
	if totalChunks < 1 {
		return nil, fmt.Errorf("%w: totalChunks must be >= 1", common.ErrorValidation)
	}

	session := &models.UploadSession{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Filename:    filename,
		MimeType:    mimeType,
		TotalChunks: totalChunks,
		ChunkSize:   chunkSize,
		FileSize:    fileSize,
		Status:      models.UploadReceiving,
	}

	if _, err := filex.EnsureDir(s.chunkDir(session.ID)); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, session); err != nil {
		filex.RemoveAllQuiet(s.chunkDir(session.ID))
		return nil, err
	}

	s.logger.Info(ctx, "upload session created",
		"session_id", session.ID, "filename", filename, "total_chunks", totalChunks)
	return session, nil
}

// getOwnedReceiving loads the session and checks ownership and state.
func (s *Service) getOwnedReceiving(ctx context.Context, ownerID, sessionID string) (*models.UploadSession, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, common.ErrorForbidden
	}
	if session.Status != models.UploadReceiving {
		return nil, fmt.Errorf("%w: session is %s, not accepting chunks", common.ErrorInvalidState, session.Status)
	}
	return session, nil
}

// AcceptChunk writes one byte range to its part file and records the
// index. Re-delivery of the same index overwrites the previous bytes
// rather than appending, so retries are safe.
func (s *Service) AcceptChunk(ctx context.Context, ownerID, sessionID string, index int, body io.Reader) error {
	session, err := s.getOwnedReceiving(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if index < 0 || index >= session.TotalChunks {
		return fmt.Errorf("%w: chunk index %d out of range [0,%d)", common.ErrorValidation, index, session.TotalChunks)
	}

	if _, err := filex.EnsureDir(s.chunkDir(sessionID)); err != nil {
		return err
	}

	// The part write happens outside the session lock: distinct indices
	// must not serialize behind each other's I/O.
	f, err := os.Create(s.partPath(sessionID, index))
	if err != nil {
		return fmt.Errorf("create part file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("write part %d: %w", index, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close part %d: %w", index, err)
	}

	l := s.lockFor(sessionID)
	l.Lock()
	err = s.repo.RecordChunk(ctx, sessionID, index)
	l.Unlock()
	if err != nil {
		return err
	}

	return nil
}

// Status reports which indices have arrived. Read-only.
func (s *Service) Status(ctx context.Context, ownerID, sessionID string) (*SessionStatus, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, common.ErrorForbidden
	}

	received, err := s.repo.ReceivedChunks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Ints(received)

	return &SessionStatus{
		SessionID: session.ID,
		Filename:  session.Filename,
		Received:  received,
		Total:     session.TotalChunks,
		State:     session.Status,
	}, nil
}

// Complete assembles the parts in index order into one file, hashes it,
// creates the StoredObject, and enqueues the pin job. Every individual
// index must be present: a duplicate delivery can make the count match
// while an index is still missing, so presence is checked per index. On a
// missing part the session stays receiving so the client can retry it.
func (s *Service) Complete(ctx context.Context, ownerID, sessionID string) (*models.StoredObject, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.getOwnedReceiving(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	received, err := s.repo.ReceivedChunks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	present := make(map[int]struct{}, len(received))
	for _, idx := range received {
		present[idx] = struct{}{}
	}
	for i := 0; i < session.TotalChunks; i++ {
		if _, ok := present[i]; !ok {
			return nil, fmt.Errorf("%w: chunk %d missing", common.ErrorIncompleteUpload, i)
		}
	}

	if err := s.repo.SetStatus(ctx, sessionID, models.UploadAssembling); err != nil {
		return nil, err
	}

	finalName := fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), sessionID, filex.SanitizeBasename(session.Filename))
	finalPath := filepath.Join(s.tempDir, finalName)

	if err := s.assemble(sessionID, session.TotalChunks, finalPath); err != nil {
		// Parts are still on disk; hand the session back to the client.
		if serr := s.repo.SetStatus(ctx, sessionID, models.UploadReceiving); serr != nil {
			s.logger.Error(ctx, "failed to reset session after assembly error",
				"session_id", sessionID, "error", serr.Error())
		}
		return nil, err
	}

	digest, err := hashx.SHA256File(finalPath)
	if err != nil {
		filex.RemoveQuiet(finalPath)
		if serr := s.repo.SetStatus(ctx, sessionID, models.UploadReceiving); serr != nil {
			s.logger.Error(ctx, "failed to reset session after hash error",
				"session_id", sessionID, "error", serr.Error())
		}
		return nil, err
	}

	size := session.FileSize
	if size == 0 {
		if fi, err := os.Stat(finalPath); err == nil {
			size = fi.Size()
		}
	}
	mimeType := session.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	obj := &models.StoredObject{
		ID:       uuid.NewString(),
		OwnerID:  session.OwnerID,
		Filename: session.Filename,
		Size:     size,
		MimeType: mimeType,
		SHA256:   digest,
		Status:   models.ObjectUploading,
	}
	if err := s.objects.Create(ctx, obj); err != nil {
		filex.RemoveQuiet(finalPath)
		return nil, err
	}

	pinJob := queue.NewPinJob(obj.ID, finalPath, s.policy)
	pinJob.OwnerID = obj.OwnerID
	if err := s.queue.Enqueue(ctx, pinJob); err != nil {
		// The object exists but nothing will ever pin it; mark it failed
		// so it does not sit in "uploading" forever.
		if serr := s.objects.SetStatus(ctx, obj.ID, models.ObjectFailed); serr != nil {
			s.logger.Error(ctx, "failed to mark object after enqueue error",
				"object_id", obj.ID, "error", serr.Error())
		}
		filex.RemoveQuiet(finalPath)
		return nil, fmt.Errorf("enqueue pin job: %w", err)
	}

	if err := s.repo.SetStatus(ctx, sessionID, models.UploadDone); err != nil {
		s.logger.Error(ctx, "failed to mark session done", "session_id", sessionID, "error", err.Error())
	}

	filex.RemoveAllQuiet(s.chunkDir(sessionID))
	s.forgetLock(sessionID)

	s.logger.Info(ctx, "upload assembled",
		"session_id", sessionID, "object_id", obj.ID, "size", size, "sha256", digest)
	return obj, nil
}

// assemble concatenates part files strictly in index order.
func (s *Service) assemble(sessionID string, totalChunks int, finalPath string) error {
	out, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("create assembled file: %w", err)
	}

	for i := 0; i < totalChunks; i++ {
		part, err := os.Open(s.partPath(sessionID, i))
		if err != nil {
			out.Close()
			filex.RemoveQuiet(finalPath)
			return fmt.Errorf("open part %d: %w", i, err)
		}
		_, err = io.Copy(out, part)
		part.Close()
		if err != nil {
			out.Close()
			filex.RemoveQuiet(finalPath)
			return fmt.Errorf("append part %d: %w", i, err)
		}
	}

	if err := out.Close(); err != nil {
		filex.RemoveQuiet(finalPath)
		return fmt.Errorf("close assembled file: %w", err)
	}
	return nil
}

// CleanupStale abandons receiving sessions idle past ttl: their scratch
// directories are removed and the session moves to error. Interrupted
// assemblies are never resumed.
func (s *Service) CleanupStale(ctx context.Context, ttl time.Duration) {
	stale, err := s.repo.SelectStale(ctx, time.Now().Add(-ttl))
	if err != nil {
		s.logger.Error(ctx, "stale session sweep failed", "error", err.Error())
		return
	}

	for _, session := range stale {
		l := s.lockFor(session.ID)
		l.Lock()
		if err := s.repo.SetStatus(ctx, session.ID, models.UploadError); err != nil {
			s.logger.Error(ctx, "failed to expire session", "session_id", session.ID, "error", err.Error())
			l.Unlock()
			continue
		}
		filex.RemoveAllQuiet(s.chunkDir(session.ID))
		l.Unlock()
		s.forgetLock(session.ID)
		s.logger.Info(ctx, "expired stale upload session", "session_id", session.ID)
	}
}
