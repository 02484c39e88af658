package types

import "time"

// Template represents contract template content stored in the record store.
type Template struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	ContractYear string    `json:"contractYear,omitempty"`
	Version      string    `json:"version,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// Mapping types
const (
	MappingTypeField   = "field"
	MappingTypeDynamic = "dynamic"
)

// FieldMapping links a placeholder to either a provider field or a dynamic block.
type FieldMapping struct {
	Placeholder        string `json:"placeholder" validate:"required"`
	MappingType        string `json:"mappingType" validate:"required,oneof=field dynamic"`
	MappedColumn       string `json:"mappedColumn,omitempty" validate:"required_if=MappingType field"`
	MappedDynamicBlock string `json:"mappedDynamicBlock,omitempty" validate:"required_if=MappingType dynamic"`
}

// MergeResult is the output of merging a template with provider data.
// Content never contains unresolved placeholder syntax.
type MergeResult struct {
	Content  string   `json:"content"`
	Warnings []string `json:"warnings"`
}
