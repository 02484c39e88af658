package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/types"
)

// handleListLogs lists generation logs, newest first.
// Query: run_id, status, limit, page_token.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter types.GenerationLogFilter

	if v := q.Get("run_id"); v != "" {
		runID, err := uuid.Parse(v)
		if err != nil {
			s.writeError(w, &ErrValidation{Field: "run_id", Message: "must be a UUID"})
			return
		}
		filter.RunID = runID
	}

	if v := q.Get("status"); v != "" {
		switch v {
		case types.GenerationStatusSuccess, types.GenerationStatusSkipped, types.GenerationStatusError:
			filter.Status = v
		default:
			s.writeError(w, &ErrValidation{Field: "status", Message: "must be one of success, skipped, error"})
			return
		}
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			s.writeError(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		filter.Limit = limit
	}
	filter.PageToken = q.Get("page_token")

	page, err := s.logs.ListGenerationLogs(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if page.Logs == nil {
		page.Logs = []types.GenerationLog{}
	}
	s.jsonResponse(w, http.StatusOK, page)
}

// handleDeleteLog removes a single generation log.
func (s *Server) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	logID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid log ID")
		return
	}

	deleted, err := s.logs.DeleteGenerationLog(r.Context(), logID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, &ErrNotFound{Resource: "generation log", ID: logID.String()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
