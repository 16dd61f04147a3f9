package handler

import (
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/attensys/upload-relay/internal/model"
	"github.com/attensys/upload-relay/internal/queue"
	"github.com/attensys/upload-relay/internal/service"
	"github.com/attensys/upload-relay/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

type enqueueForm struct {
	Credential  string `validate:"required"`
	Name        string `validate:"omitempty,max=256"`
	Description string `validate:"omitempty,max=2048"`
}

// Enqueue handles POST /api/uploads
func (h *UploadHandler) Enqueue(c *fiber.Ctx) error {
	form := enqueueForm{
		Credential:  c.FormValue("credential"),
		Name:        c.FormValue("lectureName"),
		Description: c.FormValue("lectureDescription"),
	}
	if err := h.validator.Struct(&form); err != nil {
		return response.ValidationError(c, "credential is required", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}
	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}

	var metadata map[string]string
	if form.Name != "" || form.Description != "" {
		metadata = map[string]string{}
		if form.Name != "" {
			metadata["lectureName"] = form.Name
		}
		if form.Description != "" {
			metadata["lectureDescription"] = form.Description
		}
	}

	upload, err := h.service.Enqueue(c.Context(), file.Filename, data, form.Credential, metadata)
	if err != nil {
		return h.mapServiceError(c, err)
	}

	return response.Created(c, model.EnqueueResponse{
		UploadID:  upload.ID,
		Status:    upload.Status,
		CreatedAt: upload.CreatedAt,
	})
}

// Drain handles POST /api/uploads/drain
func (h *UploadHandler) Drain(c *fiber.Ctx) error {
	mode, err := h.service.RequestDrain(c.Context())
	if err != nil {
		return h.mapServiceError(c, err)
	}
	return response.Accepted(c, model.DrainResponse{Scheduled: true, Mode: mode})
}

// List handles GET /api/uploads
func (h *UploadHandler) List(c *fiber.Ctx) error {
	uploads, err := h.service.ListPending(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	views := make([]model.UploadStatusResponse, 0, len(uploads))
	for _, u := range uploads {
		views = append(views, model.StatusView(u))
	}
	return response.OK(c, model.ListUploadsResponse{Uploads: views})
}

// Get handles GET /api/uploads/:id
func (h *UploadHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Upload ID is required", nil)
	}

	upload, err := h.service.GetUpload(c.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return response.NotFound(c, "Upload not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, model.StatusView(upload))
}

// Result handles GET /api/uploads/:id/result
func (h *UploadHandler) Result(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Upload ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), id)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	if result == nil {
		return response.NotFound(c, "No result for upload")
	}
	return response.OK(c, result)
}

// Remove handles DELETE /api/uploads/:id
func (h *UploadHandler) Remove(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Upload ID is required", nil)
	}

	if err := h.service.Remove(c.Context(), id); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}

func (h *UploadHandler) mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, queue.ErrDuplicateID):
		return response.DuplicateUpload(c, "Upload id already exists")
	case errors.Is(err, service.ErrBackgroundUnsupported):
		return response.BackgroundUnsupported(c, "Background uploads unavailable, use a direct upload")
	case errors.Is(err, service.ErrNotReady):
		return response.ServiceError(c, "Upload service not initialized")
	default:
		return response.ServiceError(c, err.Error())
	}
}
