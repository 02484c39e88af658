package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Generation log status values
const (
	GenerationStatusSuccess = "success"
	GenerationStatusSkipped = "skipped"
	GenerationStatusError   = "error"
)

// ErrInvalidPageToken is returned for page tokens that were not issued by the store.
var ErrInvalidPageToken = errors.New("invalid page token")

// GenerationLog records the outcome of generating one provider's document.
type GenerationLog struct {
	ID           uuid.UUID `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	ProviderID   string    `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	TemplateID   string    `json:"template_id,omitempty"`
	Status       string    `json:"status"`
	FileName     string    `json:"file_name,omitempty"`
	BlobKey      string    `json:"blob_key,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GenerationLogFilter narrows a log listing. PageToken is opaque to callers.
type GenerationLogFilter struct {
	RunID     uuid.UUID
	Status    string
	Limit     int
	PageToken string
}

// GenerationLogPage is one page of generation logs.
type GenerationLogPage struct {
	Logs          []GenerationLog `json:"logs"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

// GenerateRequest is the API request to start a bulk generation run.
type GenerateRequest struct {
	ProviderIDs []string `json:"provider_ids" validate:"required,min=1,dive,required"`
	BatchSize   int      `json:"batch_size,omitempty" validate:"omitempty,min=1,max=500"`
	RunDate     string   `json:"run_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// PreviewRequest is the API request to merge a single provider without rendering.
type PreviewRequest struct {
	ProviderID string `json:"provider_id" validate:"required"`
	TemplateID string `json:"template_id,omitempty"`
	Legacy     bool   `json:"legacy,omitempty"`
}
