package queue

import (
	"context"
	"errors"

	"github.com/attensys/upload-relay/internal/model"
)

var (
	// ErrDuplicateID is returned by Put when the upload id already exists.
	ErrDuplicateID = errors.New("upload id already exists")
	// ErrNotFound is returned when an operation targets a missing record.
	ErrNotFound = errors.New("upload not found")
)

// Store is the durable persistence layer for queued uploads and their
// results. Every write is persisted before the call returns. Remove must
// tolerate an already-absent id so the drain cleanup path stays simple.
type Store interface {
	Put(ctx context.Context, upload *model.PendingUpload) error
	Get(ctx context.Context, id string) (*model.PendingUpload, error)
	GetByStatus(ctx context.Context, status model.UploadStatus) ([]*model.PendingUpload, error)
	Update(ctx context.Context, upload *model.PendingUpload) error
	Remove(ctx context.Context, id string) error

	PutResult(ctx context.Context, result *model.UploadResult) error
	GetResult(ctx context.Context, id string) (*model.UploadResult, error)

	Close() error
}
