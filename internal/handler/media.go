package handler

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"net/http"

	"circleshare/internal/httputil"
	"circleshare/internal/model"
	"circleshare/internal/service"
	"circleshare/internal/transport/http/middleware"
)

type MediaHandler struct {
	mediaService *service.MediaService
}

func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// UploadPostImage handles POST /media/posts
// Accepts a multipart upload, normalizes the image and stores it in R2.
func (h *MediaHandler) UploadPostImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "image", h.mediaService.UploadPostImage)
}

// UploadAvatar handles POST /media/avatar
func (h *MediaHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "avatar", h.mediaService.UploadAvatar)
}

func (h *MediaHandler) upload(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	store func(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*model.UploadResult, error),
) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	maxFormSize := int64(model.MaxImageSizeBytes) + 1024*1024 // allow form overhead
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			httputil.WriteBadRequest(w, "Content-Type must be multipart/form-data")
			return
		}
		httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Image exceeds 10MB limit")
		return
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		httputil.WriteBadRequest(w, "Missing "+field+" file")
		return
	}
	defer file.Close()

	result, err := store(r.Context(), file, header)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrFileTooLarge):
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Image exceeds 10MB limit")
		case errors.Is(err, model.ErrInvalidImageType):
			httputil.WriteBadRequestWithCode(w, model.CodeInvalidImageType, "Unsupported image type. Allowed: jpeg, png, gif, webp")
		default:
			log.Printf("[ERROR] Media upload handler: user=%d err=%v", userID, err)
			httputil.WriteInternalError(w, "Failed to upload image")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}
