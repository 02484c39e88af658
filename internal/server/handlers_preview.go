package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/jonathan/contract-processor/internal/generation"
	"github.com/jonathan/contract-processor/internal/merge"
	"github.com/jonathan/contract-processor/internal/rendering"
	"github.com/jonathan/contract-processor/internal/types"
)

// PreviewResponse is the merge of one provider without rendering.
type PreviewResponse struct {
	ProviderID string   `json:"provider_id"`
	TemplateID string   `json:"template_id"`
	Strategy   string   `json:"strategy"`
	Content    string   `json:"content"`
	Text       string   `json:"text"`
	Warnings   []string `json:"warnings"`

	// Placeholders lists the template's tokens; Unmapped those a field
	// mapping list does not cover. Unmapped is always empty for legacy merges.
	Placeholders []string `json:"placeholders"`
	Unmapped     []string `json:"unmapped_placeholders"`
}

// handlePreview merges a single provider with its assigned template, or the
// template named in the request.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req types.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, validationError(err))
		return
	}

	ctx := r.Context()
	provider, err := s.records.GetProvider(ctx, req.ProviderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if provider == nil {
		s.writeError(w, &ErrNotFound{Resource: "provider", ID: req.ProviderID})
		return
	}

	tmpl, err := s.previewTemplate(r, req, provider)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// A nil mapping list selects the legacy strategy
	var mapping []types.FieldMapping
	if !req.Legacy {
		mapping, err = s.records.ListFieldMappings(ctx, tmpl.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	result, err := s.merger.Merge(ctx, tmpl, provider, "", mapping)
	if err != nil {
		s.writeError(w, err)
		return
	}

	text, err := rendering.PlainText(result.Content)
	if err != nil {
		log.Printf("Failed to extract preview text for %s: %v", provider.ID, err)
	}

	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	placeholders := merge.Placeholders(tmpl.Content)
	if placeholders == nil {
		placeholders = []string{}
	}
	s.jsonResponse(w, http.StatusOK, PreviewResponse{
		ProviderID:   provider.ID,
		TemplateID:   tmpl.ID,
		Strategy:     s.merger.StrategyFor(mapping).Name(),
		Content:      result.Content,
		Text:         text,
		Warnings:     warnings,
		Placeholders: placeholders,
		Unmapped:     unmappedPlaceholders(placeholders, mapping),
	})
}

// unmappedPlaceholders returns the placeholders no mapping names. A nil
// mapping list means the legacy table applies, so nothing is reported.
func unmappedPlaceholders(placeholders []string, mapping []types.FieldMapping) []string {
	unmapped := []string{}
	if mapping == nil {
		return unmapped
	}
	mapped := make(map[string]bool, len(mapping))
	for _, m := range mapping {
		mapped[merge.NormalizePlaceholder(m.Placeholder)] = true
	}
	for _, name := range placeholders {
		if !mapped[name] {
			unmapped = append(unmapped, name)
		}
	}
	return unmapped
}

func (s *Server) previewTemplate(r *http.Request, req types.PreviewRequest, provider *types.Provider) (*types.Template, error) {
	ctx := r.Context()
	if req.TemplateID != "" {
		tmpl, err := s.records.GetTemplate(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, &ErrNotFound{Resource: "template", ID: req.TemplateID}
		}
		return tmpl, nil
	}

	resolver, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}
	tmpl, err := resolver.ResolveTemplate(ctx, provider)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, &ErrUnprocessable{Message: generation.ReasonNoTemplate}
	}
	return tmpl, nil
}
