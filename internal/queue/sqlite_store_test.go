package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attensys/upload-relay/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "uploads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestUpload(id string) *model.PendingUpload {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.PendingUpload{
		ID:         id,
		FileName:   "lecture.mp4",
		FileData:   "aGVsbG8=",
		Credential: "tok-123",
		Metadata:   map[string]string{"lectureName": "Intro"},
		Status:     model.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestPutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	upload := newTestUpload("u1")
	require.NoError(t, store.Put(ctx, upload))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, upload.ID, got.ID)
	assert.Equal(t, upload.FileName, got.FileName)
	assert.Equal(t, upload.FileData, got.FileData)
	assert.Equal(t, upload.Credential, got.Credential)
	assert.Equal(t, upload.Metadata, got.Metadata)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Nil(t, got.Error)
	assert.WithinDuration(t, upload.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestPutDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestUpload("u1")))
	err := store.Put(ctx, newTestUpload("u1"))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, newTestUpload(id)))
	}

	// Move one to failed.
	failed := newTestUpload("b")
	failed.Status = model.StatusFailed
	msg := "remote rejected"
	failed.Error = &msg
	require.NoError(t, store.Update(ctx, failed))

	pending, err := store.GetByStatus(ctx, model.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	failedList, err := store.GetByStatus(ctx, model.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failedList, 1)
	assert.Equal(t, "b", failedList[0].ID)
	require.NotNil(t, failedList[0].Error)
	assert.Equal(t, "remote rejected", *failedList[0].Error)
}

func TestUpdateMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(context.Background(), newTestUpload("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveToleratesDoubleDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestUpload("u1")))
	require.NoError(t, store.Remove(ctx, "u1"))
	// Second delete of the same id must not error.
	require.NoError(t, store.Remove(ctx, "u1"))

	_, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.GetResult(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first := &model.UploadResult{
		ID:          "u1",
		Result:      json.RawMessage(`{"cid":"abc"}`),
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, store.PutResult(ctx, first))

	// Upsert replaces the previous record.
	second := &model.UploadResult{
		ID:          "u1",
		Result:      json.RawMessage(`{"cid":"def"}`),
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, store.PutResult(ctx, second))

	got, err := store.GetResult(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"cid":"def"}`, string(got.Result))
}

func TestResultOutlivesJobRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestUpload("u1")))
	require.NoError(t, store.PutResult(ctx, &model.UploadResult{
		ID:          "u1",
		Result:      json.RawMessage(`{"cid":"abc"}`),
		CompletedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Remove(ctx, "u1"))

	got, err := store.GetResult(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"cid":"abc"}`, string(got.Result))
}
