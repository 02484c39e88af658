package generation

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/jonathan/contract-processor/internal/types"
	"golang.org/x/sync/singleflight"
)

// TemplateResolver picks the template for a provider. A nil template with a
// nil error means the provider has no assignment.
type TemplateResolver interface {
	ResolveTemplate(ctx context.Context, p *types.Provider) (*types.Template, error)
}

// TemplateResolverFunc adapts a function to the TemplateResolver interface.
type TemplateResolverFunc func(ctx context.Context, p *types.Provider) (*types.Template, error)

// ResolveTemplate calls f(ctx, p).
func (f TemplateResolverFunc) ResolveTemplate(ctx context.Context, p *types.Provider) (*types.Template, error) {
	return f(ctx, p)
}

// AssignmentResolver resolves templates in order of precedence: a manual
// provider override, then the template registered for the provider's tag,
// then the default template. Loaded templates are kept for the resolver's
// lifetime, so one resolver should serve one run.
type AssignmentResolver struct {
	store        TemplateStore
	overrides    map[string]string
	tagTemplates map[string]string
	defaultID    string

	mu        sync.RWMutex
	templates map[string]*types.Template
	group     singleflight.Group
}

// NewAssignmentResolver creates a resolver. overrides maps provider id to
// template id and tagTemplates maps template tag to template id; either may be nil.
func NewAssignmentResolver(store TemplateStore, overrides, tagTemplates map[string]string, defaultID string) *AssignmentResolver {
	return &AssignmentResolver{
		store:        store,
		overrides:    overrides,
		tagTemplates: tagTemplates,
		defaultID:    defaultID,
		templates:    make(map[string]*types.Template),
	}
}

// TemplateID returns the id of the template assigned to p, or "" when none applies.
func (r *AssignmentResolver) TemplateID(p *types.Provider) string {
	if id := r.overrides[p.ID]; id != "" {
		return id
	}
	if p.TemplateTag != "" {
		if id := r.tagTemplates[p.TemplateTag]; id != "" {
			return id
		}
	}
	return r.defaultID
}

// ResolveTemplate loads the assigned template. An assignment naming a
// template that no longer exists resolves to no template.
func (r *AssignmentResolver) ResolveTemplate(ctx context.Context, p *types.Provider) (*types.Template, error) {
	id := r.TemplateID(p)
	if id == "" {
		return nil, nil
	}

	r.mu.RLock()
	tmpl, ok := r.templates[id]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.templates[id]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}
		tmpl, err := r.store.GetTemplate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", id, err)
		}
		if tmpl == nil {
			log.Printf("[GENERATION] Template %s assigned to provider %s not found", id, p.ID)
			return (*types.Template)(nil), nil
		}
		r.mu.Lock()
		r.templates[id] = tmpl
		r.mu.Unlock()
		return tmpl, nil
	})
	if err != nil {
		return nil, err
	}
	tmpl, _ = v.(*types.Template)
	return tmpl, nil
}

// TagIndex maps each tag to the first template carrying it.
func TagIndex(templates []types.Template) map[string]string {
	index := make(map[string]string)
	for _, t := range templates {
		for _, tag := range t.Tags {
			if _, ok := index[tag]; !ok {
				index[tag] = t.ID
			}
		}
	}
	return index
}

// mappingCache loads each template's field mappings once per run. A nil
// mapping list is cached as-is so legacy templates stay legacy.
type mappingCache struct {
	store TemplateStore

	mu      sync.RWMutex
	entries map[string][]types.FieldMapping
	group   singleflight.Group
}

func newMappingCache(store TemplateStore) *mappingCache {
	return &mappingCache{store: store, entries: make(map[string][]types.FieldMapping)}
}

func (c *mappingCache) load(ctx context.Context, templateID string) ([]types.FieldMapping, error) {
	c.mu.RLock()
	mapping, ok := c.entries[templateID]
	c.mu.RUnlock()
	if ok {
		return mapping, nil
	}
	if c.store == nil {
		return nil, nil
	}

	v, err, _ := c.group.Do(templateID, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.entries[templateID]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		mapping, err := c.store.ListFieldMappings(ctx, templateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load field mappings for template %s: %w", templateID, err)
		}
		c.mu.Lock()
		c.entries[templateID] = mapping
		c.mu.Unlock()
		return mapping, nil
	})
	if err != nil {
		return nil, err
	}
	mapping, _ = v.([]types.FieldMapping)
	return mapping, nil
}
