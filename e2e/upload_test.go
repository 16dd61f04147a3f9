package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/attensys/upload-relay/internal/model"
)

// newGatewayServer mocks the pinning gateway: 500 for files named
// bad.*, {"cid":"abc"} otherwise.
func newGatewayServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if header.Filename == "bad.txt" {
			http.Error(w, "Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cid":"abc"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// createEnqueueRequest builds a multipart enqueue request.
func createEnqueueRequest(t *testing.T, token, fileName string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	_ = writer.WriteField("credential", "tok-123")
	_ = writer.WriteField("lectureName", "Lecture 1")

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(content)
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, "/api/uploads/", &buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func doJSON(t *testing.T, ta *testApp, req *http.Request, out interface{}) *http.Response {
	t.Helper()
	resp, err := ta.app.Test(req, 10000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func authedReq(t *testing.T, token, method, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestEnqueueRequiresAuth(t *testing.T) {
	gateway := newGatewayServer(t)
	ta := setupApp(t, gateway.URL)

	req := createEnqueueRequest(t, "", "hello.txt", []byte("hi"))
	resp, err := ta.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestEnqueueRequiresCredential(t *testing.T) {
	gateway := newGatewayServer(t)
	ta := setupApp(t, gateway.URL)
	token := ta.token(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", "hello.txt")
	_, _ = part.Write([]byte("hi"))
	writer.Close()

	req, _ := http.NewRequest(http.MethodPost, "/api/uploads/", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ta.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadHappyPath(t *testing.T) {
	gateway := newGatewayServer(t)
	ta := setupApp(t, gateway.URL)
	token := ta.token(t)

	// Enqueue a 10-byte file.
	var enq model.EnqueueResponse
	resp := doJSON(t, ta, createEnqueueRequest(t, token, "hello.txt", []byte("hello, ten")), &enq)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if enq.UploadID == "" || enq.Status != model.StatusPending {
		t.Fatalf("unexpected enqueue response: %+v", enq)
	}

	// Pending list contains exactly the enqueued upload.
	var list model.ListUploadsResponse
	resp = doJSON(t, ta, authedReq(t, token, http.MethodGet, "/api/uploads/"), &list)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(list.Uploads) != 1 || list.Uploads[0].FileName != "hello.txt" {
		t.Fatalf("unexpected pending list: %+v", list.Uploads)
	}

	// Drain inline.
	var drain model.DrainResponse
	resp = doJSON(t, ta, authedReq(t, token, http.MethodPost, "/api/uploads/drain"), &drain)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if !drain.Scheduled || drain.Mode != "inline" {
		t.Fatalf("unexpected drain response: %+v", drain)
	}

	// Pending list is now empty.
	resp = doJSON(t, ta, authedReq(t, token, http.MethodGet, "/api/uploads/"), &list)
	if len(list.Uploads) != 0 {
		t.Fatalf("expected empty pending list, got %+v", list.Uploads)
	}

	// The result carries the gateway's cid.
	var result model.UploadResult
	resp = doJSON(t, ta, authedReq(t, token, http.MethodGet, fmt.Sprintf("/api/uploads/%s/result", enq.UploadID)), &result)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(result.Result, &payload); err != nil {
		t.Fatalf("unmarshal result payload: %v", err)
	}
	if payload.CID != "abc" {
		t.Errorf("unexpected cid: %q", payload.CID)
	}
}

func TestUploadRemoteRejects(t *testing.T) {
	gateway := newGatewayServer(t)
	ta := setupApp(t, gateway.URL)
	token := ta.token(t)

	var enq model.EnqueueResponse
	doJSON(t, ta, createEnqueueRequest(t, token, "bad.txt", []byte("doomed")), &enq)

	doJSON(t, ta, authedReq(t, token, http.MethodPost, "/api/uploads/drain"), nil)

	// The failed upload is still listed, terminal, with the status text.
	var list model.ListUploadsResponse
	doJSON(t, ta, authedReq(t, token, http.MethodGet, "/api/uploads/"), &list)
	if len(list.Uploads) != 1 {
		t.Fatalf("expected failed upload in list, got %+v", list.Uploads)
	}
	got := list.Uploads[0]
	if got.Status != model.StatusFailed {
		t.Errorf("expected failed status, got %q", got.Status)
	}
	if got.Error == nil || !bytes.Contains([]byte(*got.Error), []byte("500")) {
		t.Errorf("expected error mentioning 500, got %v", got.Error)
	}

	// No result was stored.
	resp, err := ta.app.Test(authedReq(t, token, http.MethodGet, fmt.Sprintf("/api/uploads/%s/result", enq.UploadID)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing result, got %d", resp.StatusCode)
	}
}

func TestDrainEmptyQueueIsNoop(t *testing.T) {
	gateway := newGatewayServer(t)
	ta := setupApp(t, gateway.URL)
	token := ta.token(t)

	var drain model.DrainResponse
	resp := doJSON(t, ta, authedReq(t, token, http.MethodPost, "/api/uploads/drain"), &drain)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

func TestRemoveUpload(t *testing.T) {
	gateway := newGatewayServer(t)
	ta := setupApp(t, gateway.URL)
	token := ta.token(t)

	var enq model.EnqueueResponse
	doJSON(t, ta, createEnqueueRequest(t, token, "hello.txt", []byte("hi")), &enq)

	resp, err := ta.app.Test(authedReq(t, token, http.MethodDelete, "/api/uploads/"+enq.UploadID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	var list model.ListUploadsResponse
	doJSON(t, ta, authedReq(t, token, http.MethodGet, "/api/uploads/"), &list)
	if len(list.Uploads) != 0 {
		t.Errorf("expected empty list after removal, got %+v", list.Uploads)
	}
}

func TestListNeverExposesCredential(t *testing.T) {
	gateway := newGatewayServer(t)
	ta := setupApp(t, gateway.URL)
	token := ta.token(t)

	doJSON(t, ta, createEnqueueRequest(t, token, "hello.txt", []byte("hi")), nil)

	resp, err := ta.app.Test(authedReq(t, token, http.MethodGet, "/api/uploads/"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if bytes.Contains(raw.Bytes(), []byte("tok-123")) {
		t.Error("credential leaked in list response")
	}
	if bytes.Contains(raw.Bytes(), []byte("fileData")) {
		t.Error("file payload leaked in list response")
	}
}
