package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/jonathan/contract-processor/internal/storage"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &ErrNotFound{Resource: "run", ID: "abc"}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", &ErrNotFound{Resource: "log", ID: "1"}), http.StatusNotFound},
		{"blob not found", storage.ErrNotFound, http.StatusNotFound},
		{"invalid file URL", fmt.Errorf("%w: bad signature", storage.ErrInvalidURL), http.StatusNotFound},
		{"expired file URL", storage.ErrURLExpired, http.StatusGone},
		{"conflict", &ErrConflict{Message: "run already finished"}, http.StatusConflict},
		{"unprocessable", &ErrUnprocessable{Message: "No template assigned"}, http.StatusUnprocessableEntity},
		{"validation", &ErrValidation{Field: "provider_ids", Message: "required"}, http.StatusBadRequest},
		{"bad page token", fmt.Errorf("%w: illegal base64", types.ErrInvalidPageToken), http.StatusBadRequest},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "run not found: abc", (&ErrNotFound{Resource: "run", ID: "abc"}).Error())
	assert.Equal(t, "validation error: email - invalid format", (&ErrValidation{Field: "email", Message: "invalid format"}).Error())
}

func TestValidationError(t *testing.T) {
	err := (&types.GenerateRequest{}).Validate()
	require.Error(t, err)

	converted := validationError(err)
	var verr *ErrValidation
	require.ErrorAs(t, converted, &verr)
	assert.Equal(t, "GenerateRequest.ProviderIDs", verr.Field)
	assert.Equal(t, "failed on required", verr.Message)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(converted))
}
