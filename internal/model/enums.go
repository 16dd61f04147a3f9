package model

// UploadStatus is the lifecycle state of a queued upload. Status only
// moves forward: pending -> uploading -> completed, or
// pending -> uploading -> failed. A failed upload stays terminal until
// it is removed or explicitly re-enqueued.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusUploading UploadStatus = "uploading"
	StatusCompleted UploadStatus = "completed"
	StatusFailed    UploadStatus = "failed"
)

var ValidStatuses = []UploadStatus{
	StatusPending, StatusUploading, StatusCompleted, StatusFailed,
}

// IsTerminal reports whether no further transition is allowed.
func (s UploadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
