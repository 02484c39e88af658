// Package rendering turns merged contract HTML into output documents and
// packages generated documents into archives.
package rendering

import (
	"errors"
	"fmt"
)

// ErrConverterUnavailable is returned when no document converter is configured.
var ErrConverterUnavailable = errors.New("document converter unavailable")

// RenderError represents a failure converting HTML into a document
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("render error: %s", e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// ArchiveError represents a failure assembling the results archive
type ArchiveError struct {
	Message string
	Cause   error
}

func (e *ArchiveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("archive error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("archive error: %s", e.Message)
}

func (e *ArchiveError) Unwrap() error {
	return e.Cause
}
