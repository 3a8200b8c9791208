package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/blob"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/metrics"
)

// UploadRequest represents the attachment upload request body.
type UploadRequest struct {
	File     string `json:"file"` // base64-encoded bytes
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

// UploadResponse represents the attachment upload response.
type UploadResponse struct {
	URL string `json:"url"`
}

// Upload stores attachment bytes write-once under a fresh object key and
// returns the URL the object is retrievable at. The URL is opaque to the
// rest of the system: message appends store it unchanged.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		h.Error(w, http.StatusNotFound, "file storage is not configured")
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.File == "" {
		h.Error(w, http.StatusBadRequest, "file is required")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.File)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file must be base64-encoded")
		return
	}

	key := blob.NewObjectKey(req.FileName)
	url, err := h.blobs.Put(r.Context(), key, req.FileType, bytes.NewReader(data))
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("upload failed")
		h.Error(w, http.StatusInternalServerError, "upload failed")
		return
	}

	metrics.FilesUploaded.Inc()

	h.JSON(w, http.StatusOK, UploadResponse{URL: url})
}
