package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Pinner defines the interface for the remote pinning endpoint
type Pinner interface {
	Upload(ctx context.Context, fileName string, data []byte, credential string) (json.RawMessage, error)
}

// TransferError is returned when the remote endpoint rejects an upload
// or answers with a non-success status.
type TransferError struct {
	StatusCode int
	Status     string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload failed: %s", e.Status)
}

// PinningClient implements Pinner against an IPFS pinning gateway that
// accepts a multipart POST with a binary file field, a fixed network
// field, and a bearer authorization header.
type PinningClient struct {
	httpClient *http.Client
	baseURL    string
	network    string
}

// NewPinningClient creates a new pinning gateway client
func NewPinningClient(baseURL, network string, timeout time.Duration) *PinningClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if network == "" {
		network = "private"
	}
	return &PinningClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		network:    network,
	}
}

// Upload transfers the file content and returns the gateway's JSON
// response verbatim. The credential is the per-upload bearer secret; it
// is used only for the Authorization header.
func (c *PinningClient) Upload(ctx context.Context, fileName string, data []byte, credential string) (json.RawMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("network", c.network); err != nil {
		return nil, fmt.Errorf("write network field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/files", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransferError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON response from gateway")
	}
	return json.RawMessage(body), nil
}
