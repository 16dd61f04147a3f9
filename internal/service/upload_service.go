package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/attensys/upload-relay/internal/model"
	"github.com/attensys/upload-relay/internal/queue"
	"github.com/attensys/upload-relay/internal/worker"
)

// Readiness is the bridge's initialization state. Both terminal states
// are sticky: once ready or unsupported, Initialize keeps returning the
// same answer.
type Readiness string

const (
	ReadinessUninitialized Readiness = "uninitialized"
	ReadinessInitializing  Readiness = "initializing"
	ReadinessReady         Readiness = "ready"
	ReadinessUnsupported   Readiness = "unsupported"
)

// ErrBackgroundUnsupported is returned by RequestDrain when no drain
// scheduler is reachable; callers fall back to a foreground upload path.
var ErrBackgroundUnsupported = errors.New("background drain execution unsupported")

// ErrNotReady is returned when the bridge is used before Initialize.
var ErrNotReady = errors.New("upload service not initialized")

// UploadService is the foreground-facing bridge over the queue store and
// the drain scheduler.
type UploadService struct {
	store     queue.Store
	scheduler worker.Scheduler
	log       zerolog.Logger

	mu    sync.Mutex
	state Readiness
}

func NewUploadService(store queue.Store, scheduler worker.Scheduler, log zerolog.Logger) *UploadService {
	return &UploadService{
		store:     store,
		scheduler: scheduler,
		log:       log.With().Str("component", "upload-service").Logger(),
		state:     ReadinessUninitialized,
	}
}

// Initialize probes the drain scheduler and settles the readiness state.
// Calling it again after a terminal state is a no-op returning the same
// result, so callers may initialize defensively.
func (s *UploadService) Initialize(ctx context.Context) (Readiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == ReadinessReady || s.state == ReadinessUnsupported {
		return s.state, nil
	}

	s.state = ReadinessInitializing
	if s.scheduler == nil {
		s.state = ReadinessUnsupported
		s.log.Warn().Msg("no drain scheduler configured, background uploads unsupported")
		return s.state, nil
	}
	if err := s.scheduler.Ping(ctx); err != nil {
		s.state = ReadinessUnsupported
		s.log.Warn().Err(err).Msg("drain scheduler unreachable, background uploads unsupported")
		return s.state, nil
	}

	s.state = ReadinessReady
	s.log.Info().Str("mode", s.scheduler.Mode()).Msg("upload service ready")
	return s.state, nil
}

// Readiness returns the current initialization state.
func (s *UploadService) Readiness() Readiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enqueue stores a new pending upload and returns it. The file content
// is base64-encoded so the record survives any store driver; the
// credential rides along opaquely for the transfer.
func (s *UploadService) Enqueue(ctx context.Context, fileName string, data []byte, credential string, metadata map[string]string) (*model.PendingUpload, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	upload := &model.PendingUpload{
		ID:         uuid.New().String(),
		FileName:   fileName,
		FileData:   base64.StdEncoding.EncodeToString(data),
		Credential: credential,
		Metadata:   metadata,
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.Put(ctx, upload); err != nil {
		return nil, fmt.Errorf("enqueue upload: %w", err)
	}
	s.log.Info().Str("upload_id", upload.ID).Str("file_name", fileName).Msg("upload enqueued")
	return upload, nil
}

// RequestDrain asks the scheduler to run a drain pass. The returned mode
// reports whether the pass runs deferred in the background worker or
// inline in this process.
func (s *UploadService) RequestDrain(ctx context.Context) (string, error) {
	if err := s.requireReady(); err != nil {
		return "", err
	}
	if err := s.scheduler.Schedule(ctx); err != nil {
		return "", fmt.Errorf("schedule drain: %w", err)
	}
	return s.scheduler.Mode(), nil
}

// ListPending returns uploads still in flight: pending, currently
// uploading, and failed-terminal records awaiting an explicit decision.
func (s *UploadService) ListPending(ctx context.Context) ([]*model.PendingUpload, error) {
	var uploads []*model.PendingUpload
	for _, status := range []model.UploadStatus{model.StatusPending, model.StatusUploading, model.StatusFailed} {
		batch, err := s.store.GetByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("list %s uploads: %w", status, err)
		}
		uploads = append(uploads, batch...)
	}
	return uploads, nil
}

// GetUpload returns one queued upload by id.
func (s *UploadService) GetUpload(ctx context.Context, id string) (*model.PendingUpload, error) {
	return s.store.Get(ctx, id)
}

// GetResult returns the stored result for a completed upload, or nil
// when none exists. Results outlive the job record.
func (s *UploadService) GetResult(ctx context.Context, id string) (*model.UploadResult, error) {
	return s.store.GetResult(ctx, id)
}

// Remove deletes a queued upload. Removing an id that is already gone is
// not an error.
func (s *UploadService) Remove(ctx context.Context, id string) error {
	return s.store.Remove(ctx, id)
}

func (s *UploadService) requireReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case ReadinessReady:
		return nil
	case ReadinessUnsupported:
		return ErrBackgroundUnsupported
	default:
		return ErrNotReady
	}
}
