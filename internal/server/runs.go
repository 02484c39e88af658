package server

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/db"
	"github.com/jonathan/contract-processor/internal/generation"
)

// maxFinishedRuns bounds how many completed runs stay in memory.
const maxFinishedRuns = 100

// runState tracks one generation run started by this process.
type runState struct {
	id        uuid.UUID
	cancel    *generation.CancelFlag
	done      chan struct{}
	createdAt time.Time

	mu          sync.Mutex
	status      string
	progress    generation.Progress
	result      *generation.BatchResult
	err         error
	completedAt *time.Time
}

// RunView is the API representation of a run.
type RunView struct {
	RunID       uuid.UUID               `json:"run_id"`
	Status      string                  `json:"status"`
	Progress    generation.Progress     `json:"progress"`
	Result      *generation.BatchResult `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// RunSummaryView is the list representation of a run, shared by in-memory
// and persisted runs.
type RunSummaryView struct {
	RunID       uuid.UUID  `json:"run_id"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	ArchiveKey  string     `json:"archive_key,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r *runState) setProgress(p generation.Progress) {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
}

func (r *runState) finish(result *generation.BatchResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.completedAt = &now
	r.result = result
	r.err = err
	switch {
	case err != nil:
		r.status = db.RunStatusFailed
	case result != nil && result.Cancelled:
		r.status = db.RunStatusCancelled
	default:
		r.status = db.RunStatusCompleted
	}
	if result != nil {
		r.progress = result.Progress
	}
	close(r.done)
}

func (r *runState) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *runState) view() RunView {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := RunView{
		RunID:       r.id,
		Status:      r.status,
		Progress:    r.progress,
		Result:      r.result,
		CreatedAt:   r.createdAt,
		CompletedAt: r.completedAt,
	}
	if r.err != nil {
		v.Error = r.err.Error()
	}
	return v
}

func (r *runState) summary() RunSummaryView {
	v := r.view()
	s := RunSummaryView{
		RunID:       v.RunID,
		Status:      v.Status,
		Total:       v.Progress.Total,
		Succeeded:   v.Progress.Succeeded,
		Skipped:     v.Progress.Skipped,
		Failed:      v.Progress.Failed,
		CreatedAt:   v.CreatedAt,
		CompletedAt: v.CompletedAt,
	}
	if v.Result != nil && v.Result.Archive != nil {
		s.ArchiveKey = v.Result.Archive.BlobKey
	}
	return s
}

// archiveKey returns the stored archive key of a finished run, if any.
func (r *runState) archiveKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil || r.result.Archive == nil {
		return ""
	}
	return r.result.Archive.BlobKey
}

func summaryFromRecord(run db.Run) RunSummaryView {
	return RunSummaryView{
		RunID:       run.ID,
		Status:      run.Status,
		Total:       run.Total,
		Succeeded:   run.Succeeded,
		Skipped:     run.Skipped,
		Failed:      run.Failed,
		ArchiveKey:  run.ArchiveKey,
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}
}

// runRegistry holds the runs started by this process.
type runRegistry struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*runState
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[uuid.UUID]*runState)}
}

func (g *runRegistry) start(total int) *runState {
	state := &runState{
		id:        uuid.New(),
		cancel:    &generation.CancelFlag{},
		done:      make(chan struct{}),
		createdAt: time.Now(),
		status:    db.RunStatusRunning,
		progress:  generation.Progress{Total: total, CurrentOperation: "Queued"},
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs[state.id] = state
	g.pruneLocked()
	return state
}

func (g *runRegistry) get(id uuid.UUID) (*runState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.runs[id]
	return state, ok
}

// list returns runs newest first.
func (g *runRegistry) list() []*runState {
	g.mu.Lock()
	out := make([]*runState, 0, len(g.runs))
	for _, state := range g.runs {
		out = append(out, state)
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].createdAt.After(out[j].createdAt)
	})
	return out
}

// pruneLocked drops the oldest finished runs beyond maxFinishedRuns. Running
// runs are never dropped.
func (g *runRegistry) pruneLocked() {
	var finished []*runState
	for _, state := range g.runs {
		if state.finished() {
			finished = append(finished, state)
		}
	}
	if len(finished) <= maxFinishedRuns {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].createdAt.Before(finished[j].createdAt)
	})
	for _, state := range finished[:len(finished)-maxFinishedRuns] {
		delete(g.runs, state.id)
	}
}
