package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/db"
	"github.com/jonathan/contract-processor/internal/generation"
	"github.com/jonathan/contract-processor/internal/types"
)

// ---------------------------------------------------------------------
// Generation Handlers
// ---------------------------------------------------------------------

// GenerationResponse is returned when a run is accepted.
type GenerationResponse struct {
	RunID              uuid.UUID `json:"run_id"`
	Status             string    `json:"status"`
	Total              int       `json:"total"`
	UnknownProviderIDs []string  `json:"unknown_provider_ids,omitempty"`
}

// plannedRun is a validated generation request ready to execute.
type plannedRun struct {
	providers []types.Provider
	unknown   []string
	resolver  generation.TemplateResolver
	opts      generation.Options
}

// planRun validates the request body and loads everything a run needs.
func (s *Server) planRun(r *http.Request) (*plannedRun, error) {
	var req types.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, &ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	ctx := r.Context()
	providers, err := s.records.ListProviders(ctx, req.ProviderIDs)
	if err != nil {
		return nil, err
	}
	unknown := missingIDs(req.ProviderIDs, providers)
	if len(providers) == 0 {
		return nil, &ErrNotFound{Resource: "providers", ID: strings.Join(unknown, ", ")}
	}

	resolver, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}

	opts := generation.Options{
		BatchSize:        firstPositive(req.BatchSize, s.cfg.BatchSize),
		StatusRetries:    s.cfg.StatusRetries,
		StatusRetryDelay: s.cfg.StatusRetryDelay,
	}
	if req.RunDate != "" {
		// Validate already checked the layout
		opts.RunDate, _ = time.Parse("2006-01-02", req.RunDate)
	}

	return &plannedRun{providers: providers, unknown: unknown, resolver: resolver, opts: opts}, nil
}

// resolver builds a template resolver from the current assignments.
func (s *Server) resolver(ctx context.Context) (*generation.AssignmentResolver, error) {
	assignments, err := s.records.ListTemplateAssignments(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := s.records.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	return generation.NewAssignmentResolver(s.records, assignments, generation.TagIndex(templates), s.cfg.DefaultTemplate), nil
}

// startRun registers a run and records it in the run store.
func (s *Server) startRun(ctx context.Context, plan *plannedRun) *runState {
	state := s.runs.start(len(plan.providers))
	plan.opts.RunID = state.id
	plan.opts.Cancel = state.cancel

	if s.runStore != nil {
		if err := s.runStore.CreateRun(ctx, state.id, len(plan.providers)); err != nil {
			log.Printf("Failed to record run %s: %v", state.id, err)
		}
	}
	return state
}

// execute runs the plan to completion and records the outcome.
func (s *Server) execute(ctx context.Context, state *runState, plan *plannedRun) (*generation.BatchResult, error) {
	result, err := s.orchestrator.Run(ctx, plan.providers, plan.resolver, plan.opts)
	state.finish(result, err)
	if err != nil {
		log.Printf("Generation run %s failed: %v", state.id, err)
	}

	if s.runStore != nil {
		summary := state.summary()
		if err := s.runStore.CompleteRun(context.WithoutCancel(ctx), state.id, db.RunSummary{
			Status:     summary.Status,
			Succeeded:  summary.Succeeded,
			Skipped:    summary.Skipped,
			Failed:     summary.Failed,
			ArchiveKey: summary.ArchiveKey,
		}); err != nil {
			log.Printf("Failed to complete run %s: %v", state.id, err)
		}
	}
	return result, err
}

// handleCreateGeneration starts a run in the background and returns its id.
func (s *Server) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	plan, err := s.planRun(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	state := s.startRun(r.Context(), plan)
	plan.opts.Progress = state.setProgress

	log.Printf("Starting generation run %s for %d providers", state.id, len(plan.providers))
	go s.execute(context.Background(), state, plan) //nolint:errcheck

	s.jsonResponse(w, http.StatusAccepted, GenerationResponse{
		RunID:              state.id,
		Status:             db.RunStatusRunning,
		Total:              len(plan.providers),
		UnknownProviderIDs: plan.unknown,
	})
}

// handleStreamGeneration runs synchronously, streaming progress as SSE.
// Disconnecting the client cancels the run at the next batch boundary.
func (s *Server) handleStreamGeneration(w http.ResponseWriter, r *http.Request) {
	plan, err := s.planRun(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	state := s.startRun(r.Context(), plan)
	plan.opts.Progress = func(p generation.Progress) {
		state.setProgress(p)
		if err := sse.WriteEvent(eventProgress, p); err != nil {
			log.Printf("Failed to stream progress for run %s: %v", state.id, err)
		}
	}

	result, err := s.execute(r.Context(), state, plan)
	if err != nil {
		sse.WriteError(err.Error())
		sse.WriteComplete(state.id.String(), db.RunStatusFailed)
		return
	}

	sse.WriteEvent(eventResult, result) //nolint:errcheck
	sse.WriteComplete(state.id.String(), state.view().Status)
}

// handleGetGeneration returns a run, preferring live state over the run store.
func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	if state, ok := s.runs.get(runID); ok {
		s.jsonResponse(w, http.StatusOK, state.view())
		return
	}

	if s.runStore != nil {
		run, err := s.runStore.GetRun(r.Context(), runID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if run != nil {
			s.jsonResponse(w, http.StatusOK, summaryFromRecord(*run))
			return
		}
	}

	s.writeError(w, &ErrNotFound{Resource: "run", ID: runID.String()})
}

// handleListGenerations lists recent runs.
func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	var runs []RunSummaryView

	if s.runStore != nil {
		records, err := s.runStore.ListRuns(r.Context(), 50)
		if err != nil {
			s.writeError(w, err)
			return
		}
		for _, run := range records {
			// Live state is fresher than the stored row
			if state, ok := s.runs.get(run.ID); ok {
				runs = append(runs, state.summary())
				continue
			}
			runs = append(runs, summaryFromRecord(run))
		}
	} else {
		for _, state := range s.runs.list() {
			runs = append(runs, state.summary())
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleCancelGeneration requests cancellation of a running run.
func (s *Server) handleCancelGeneration(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	state, ok := s.runs.get(runID)
	if !ok {
		s.writeError(w, &ErrNotFound{Resource: "run", ID: runID.String()})
		return
	}
	if state.finished() {
		s.writeError(w, &ErrConflict{Message: "run already finished"})
		return
	}

	state.cancel.Cancel()
	log.Printf("Cancellation requested for run %s", runID)
	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": "cancelling",
	})
}

// handleGenerationArchive redirects to a signed URL for the run's archive.
// With ?redirect=false the signed URL is returned as JSON instead.
func (s *Server) handleGenerationArchive(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	key, err := s.archiveKey(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.blobs == nil || key == "" {
		s.writeError(w, &ErrNotFound{Resource: "archive", ID: runID.String()})
		return
	}

	signed, err := s.blobs.URL(key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("redirect") == "false" {
		s.jsonResponse(w, http.StatusOK, signed)
		return
	}
	http.Redirect(w, r, signed.URL, http.StatusFound)
}

func (s *Server) archiveKey(ctx context.Context, runID uuid.UUID) (string, error) {
	if state, ok := s.runs.get(runID); ok {
		if !state.finished() {
			return "", &ErrConflict{Message: "run still in progress"}
		}
		return state.archiveKey(), nil
	}
	if s.runStore != nil {
		run, err := s.runStore.GetRun(ctx, runID)
		if err != nil {
			return "", err
		}
		if run != nil {
			return run.ArchiveKey, nil
		}
	}
	return "", &ErrNotFound{Resource: "run", ID: runID.String()}
}

// missingIDs returns the requested ids with no matching provider.
func missingIDs(requested []string, found []types.Provider) []string {
	have := make(map[string]bool, len(found))
	for _, p := range found {
		have[p.ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
