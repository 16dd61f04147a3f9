package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/attensys/upload-relay/internal/client"
	"github.com/attensys/upload-relay/internal/model"
	"github.com/attensys/upload-relay/internal/queue"
)

const (
	drainLockKey = "uploads:drain:lock"
	drainLockTTL = 5 * time.Minute
)

// Notifier receives upload lifecycle events from a drain pass. The
// WebSocket hub implements it for foreground listeners.
type Notifier interface {
	UploadStarted(uploadID string)
	UploadCompleted(uploadID string, result json.RawMessage)
	UploadFailed(uploadID string, errMsg string)
}

// Drainer drives pending uploads to completion. One drain pass operates
// on a snapshot of the pending set and processes it strictly
// sequentially; uploads enqueued mid-pass wait for the next trigger.
type Drainer struct {
	store    queue.Store
	pinner   client.Pinner
	notifier Notifier
	locker   Locker
	log      zerolog.Logger
}

func NewDrainer(store queue.Store, pinner client.Pinner, notifier Notifier, locker Locker, log zerolog.Logger) *Drainer {
	return &Drainer{
		store:    store,
		pinner:   pinner,
		notifier: notifier,
		locker:   locker,
		log:      log.With().Str("component", "drainer").Logger(),
	}
}

// Drain processes all currently pending uploads. A pass that loses the
// advisory lock race is a no-op, not an error. Per-upload failures are
// recorded on the upload and never abort the rest of the batch.
func (d *Drainer) Drain(ctx context.Context) error {
	token, err := d.locker.TryLock(ctx, drainLockKey, drainLockTTL)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			d.log.Debug().Msg("drain skipped, another pass holds the lock")
			return nil
		}
		return fmt.Errorf("acquire drain lock: %w", err)
	}
	defer func() {
		if err := d.locker.Unlock(context.WithoutCancel(ctx), drainLockKey, token); err != nil {
			d.log.Warn().Err(err).Msg("release drain lock")
		}
	}()

	pending, err := d.store.GetByStatus(ctx, model.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending uploads: %w", err)
	}
	if len(pending) == 0 {
		d.log.Debug().Msg("no pending uploads")
		return nil
	}

	d.log.Info().Int("count", len(pending)).Msg("draining pending uploads")

	for _, upload := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.processOne(ctx, upload); err != nil {
			d.failUpload(ctx, upload, err)
		}
	}
	return nil
}

func (d *Drainer) processOne(ctx context.Context, upload *model.PendingUpload) error {
	log := d.log.With().Str("upload_id", upload.ID).Str("file_name", upload.FileName).Logger()

	// Mark uploading before the network call so a crash mid-transfer
	// leaves the record in a visibly in-doubt state.
	upload.Status = model.StatusUploading
	upload.UpdatedAt = time.Now().UTC()
	if err := d.store.Update(ctx, upload); err != nil {
		return fmt.Errorf("mark uploading: %w", err)
	}
	d.notifier.UploadStarted(upload.ID)

	data, err := base64.StdEncoding.DecodeString(upload.FileData)
	if err != nil {
		return fmt.Errorf("decode file data: %w", err)
	}

	result, err := d.pinner.Upload(ctx, upload.FileName, data, upload.Credential)
	if err != nil {
		return err
	}

	if err := d.store.PutResult(ctx, &model.UploadResult{
		ID:          upload.ID,
		Result:      result,
		CompletedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	if err := d.store.Remove(ctx, upload.ID); err != nil {
		return fmt.Errorf("remove completed upload: %w", err)
	}

	d.notifier.UploadCompleted(upload.ID, result)
	log.Info().Msg("upload completed")
	return nil
}

// failUpload records the error on the upload and reports it. The record
// stays in the store as terminal failed state until the caller removes
// or re-enqueues it; there is no automatic retry.
func (d *Drainer) failUpload(ctx context.Context, upload *model.PendingUpload, cause error) {
	msg := cause.Error()
	upload.Status = model.StatusFailed
	upload.Error = &msg
	upload.UpdatedAt = time.Now().UTC()

	if err := d.store.Update(ctx, upload); err != nil {
		d.log.Error().Err(err).Str("upload_id", upload.ID).Msg("record upload failure")
	}
	d.notifier.UploadFailed(upload.ID, msg)
	d.log.Warn().Str("upload_id", upload.ID).Str("file_name", upload.FileName).Str("cause", msg).Msg("upload failed")
}
