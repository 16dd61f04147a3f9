package model

import "encoding/json"

// WebSocket message types
const (
	WSMessageTypeStarted   = "UPLOAD_STARTED"
	WSMessageTypeCompleted = "UPLOAD_COMPLETED"
	WSMessageTypeFailed    = "UPLOAD_FAILED"
	WSMessageTypePing      = "ping"
	WSMessageTypePong      = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStartedMessage announces that an upload transfer has begun
type WSStartedMessage struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
}

// WSCompletedMessage carries the remote endpoint's result for a finished upload
type WSCompletedMessage struct {
	Type     string          `json:"type"`
	UploadID string          `json:"uploadId"`
	Result   json.RawMessage `json:"result"`
}

// WSFailedMessage carries the recorded error for a failed upload
type WSFailedMessage struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
	Error    string `json:"error"`
}
