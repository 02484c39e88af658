package server

import (
	"log"
	"net/http"
)

// handleClearBlockCache drops cached dynamic block definitions. With ?id=
// only that block is dropped.
func (s *Server) handleClearBlockCache(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		s.cache.Invalidate(id)
		log.Printf("Dynamic block cache entry %s invalidated", id)
		s.jsonResponse(w, http.StatusOK, map[string]any{"invalidated": id})
		return
	}

	cleared := s.cache.Len()
	s.cache.Clear()
	log.Printf("Dynamic block cache cleared (%d entries)", cleared)
	s.jsonResponse(w, http.StatusOK, map[string]any{"cleared": cleared})
}
