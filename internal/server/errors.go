// Package server provides the HTTP API for bulk contract generation.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/contract-processor/internal/storage"
	"github.com/jonathan/contract-processor/internal/types"
)

// ErrNotFound indicates a requested resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrConflict indicates the request does not apply to the resource's current state
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrUnprocessable indicates a well-formed request that cannot be carried out
type ErrUnprocessable struct {
	Message string
}

func (e *ErrUnprocessable) Error() string {
	return e.Message
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// validationError converts validator output into an ErrValidation naming
// the first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		return &ErrValidation{Field: fe.Namespace(), Message: msg}
	}
	return &ErrValidation{Field: "body", Message: err.Error()}
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound      *ErrNotFound
		conflict      *ErrConflict
		unprocessable *ErrUnprocessable
		validation    *ErrValidation
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidURL):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrURLExpired):
		return http.StatusGone
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &unprocessable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &validation), errors.Is(err, types.ErrInvalidPageToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
