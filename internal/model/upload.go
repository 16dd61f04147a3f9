package model

import (
	"encoding/json"
	"time"
)

// PendingUpload represents one deferred file transfer in the queue.
// FileData is the base64-encoded file content so the record survives
// persistence; Credential is the bearer secret for the remote pinning
// endpoint and must never appear in logs or API responses.
type PendingUpload struct {
	ID         string            `json:"id"`
	FileName   string            `json:"fileName"`
	FileData   string            `json:"fileData"`
	Credential string            `json:"credential"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     UploadStatus      `json:"status"`
	Error      *string           `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// UploadResult is the remote endpoint's response for a completed upload.
// It is retained independently of the job record so the result can still
// be fetched after the job has been removed from the pending collection.
type UploadResult struct {
	ID          string          `json:"id"`
	Result      json.RawMessage `json:"result"`
	CompletedAt time.Time       `json:"completedAt"`
}

// EnqueueResponse is returned when a new upload is accepted.
type EnqueueResponse struct {
	UploadID  string       `json:"uploadId"`
	Status    UploadStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// DrainResponse is returned when a drain pass has been scheduled.
type DrainResponse struct {
	Scheduled bool   `json:"scheduled"`
	Mode      string `json:"mode"` // "background" or "inline"
}

// UploadStatusResponse is the externally visible view of a queued upload.
// It deliberately omits the file payload and the pinning credential.
type UploadStatusResponse struct {
	ID        string            `json:"id"`
	FileName  string            `json:"fileName"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Status    UploadStatus      `json:"status"`
	Error     *string           `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ListUploadsResponse wraps the pending upload listing.
type ListUploadsResponse struct {
	Uploads []UploadStatusResponse `json:"uploads"`
}

// StatusView maps a stored upload to its external representation.
func StatusView(u *PendingUpload) UploadStatusResponse {
	return UploadStatusResponse{
		ID:        u.ID,
		FileName:  u.FileName,
		Metadata:  u.Metadata,
		Status:    u.Status,
		Error:     u.Error,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
