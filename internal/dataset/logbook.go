package dataset

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/types"
)

// LogBook keeps generation logs in memory for runs that have no database.
type LogBook struct {
	mu   sync.RWMutex
	logs []types.GenerationLog
	now  func() time.Time
}

// NewLogBook creates an empty log book.
func NewLogBook() *LogBook {
	return &LogBook{now: time.Now}
}

// CreateGenerationLog appends an entry, assigning an ID and timestamps.
func (b *LogBook) CreateGenerationLog(_ context.Context, l *types.GenerationLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	now := b.now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	b.logs = append(b.logs, *l)
	return nil
}

// GetGenerationLog returns an entry by ID, or nil when unknown.
func (b *LogBook) GetGenerationLog(_ context.Context, id uuid.UUID) (*types.GenerationLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := range b.logs {
		if b.logs[i].ID == id {
			cp := b.logs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// DeleteGenerationLog removes an entry. It reports whether one existed.
func (b *LogBook) DeleteGenerationLog(_ context.Context, id uuid.UUID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.logs {
		if b.logs[i].ID == id {
			b.logs = append(b.logs[:i], b.logs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// CountGenerationLogs returns entry counts per status for a run.
func (b *LogBook) CountGenerationLogs(_ context.Context, runID uuid.UUID) (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[string]int)
	for _, l := range b.logs {
		if l.RunID == runID {
			counts[l.Status]++
		}
	}
	return counts, nil
}

// ListGenerationLogs returns one page of matching entries, newest first.
// Page tokens encode an offset into the filtered listing.
func (b *LogBook) ListGenerationLogs(_ context.Context, filter types.GenerationLogFilter) (*types.GenerationLogPage, error) {
	offset := 0
	if filter.PageToken != "" {
		raw, err := base64.RawURLEncoding.DecodeString(filter.PageToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidPageToken, err)
		}
		offset, err = strconv.Atoi(string(raw))
		if err != nil || offset < 0 {
			return nil, types.ErrInvalidPageToken
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	b.mu.RLock()
	matched := make([]types.GenerationLog, 0, len(b.logs))
	for _, l := range b.logs {
		if filter.RunID != uuid.Nil && l.RunID != filter.RunID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		matched = append(matched, l)
	}
	b.mu.RUnlock()

	// Insertion order breaks timestamp ties, newest entry first
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &types.GenerationLogPage{Logs: []types.GenerationLog{}}
	if offset >= len(matched) {
		return page, nil
	}
	end := offset + limit
	if end < len(matched) {
		page.NextPageToken = base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(end)))
	} else {
		end = len(matched)
	}
	page.Logs = append(page.Logs, matched[offset:end]...)
	return page, nil
}
