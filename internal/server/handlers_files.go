package server

import (
	"errors"
	"log"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/jonathan/contract-processor/internal/storage"
)

// handleFile serves a blob named by a signed URL token. An expired but
// authentic token gets 410 with a freshly signed URL.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		s.errorResponse(w, http.StatusNotFound, "File storage not configured")
		return
	}

	token := r.PathValue("token")
	key, err := s.blobs.Resolve(token)
	if err != nil {
		if errors.Is(err, storage.ErrURLExpired) {
			s.expiredFileResponse(w, token)
			return
		}
		s.writeError(w, err)
		return
	}

	data, obj, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": path.Base(key),
	}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write file %s: %v", key, err)
	}
}

func (s *Server) expiredFileResponse(w http.ResponseWriter, token string) {
	fresh, err := s.blobs.RefreshURL(token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusGone, map[string]any{
		"error":      storage.ErrURLExpired.Error(),
		"url":        fresh.URL,
		"expires_at": fresh.ExpiresAt,
	})
}
