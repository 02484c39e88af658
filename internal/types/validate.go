package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate validates the FieldMapping using the validator.
func (m *FieldMapping) Validate() error {
	return validate.Struct(m)
}

// Validate validates the GenerateRequest using the validator.
func (r *GenerateRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the PreviewRequest using the validator.
func (r *PreviewRequest) Validate() error {
	return validate.Struct(r)
}

// ValidateMappings validates every entry and reports the first failing index.
func ValidateMappings(mappings []FieldMapping) error {
	for i := range mappings {
		if err := mappings[i].Validate(); err != nil {
			return fmt.Errorf("mapping %d (%s): %w", i, mappings[i].Placeholder, err)
		}
	}
	return nil
}
