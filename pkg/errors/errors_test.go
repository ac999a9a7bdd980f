package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("document 3: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"invalid", fmt.Errorf("bad keyword: %w", ErrInvalidInput), http.StatusBadRequest},
		{"halted", fmt.Errorf("%w: %w", ErrIngestionHalted, ErrStorageIO), http.StatusServiceUnavailable},
		{"flush failed", fmt.Errorf("%w: document 1", ErrFlushFailed), http.StatusServiceUnavailable},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"closed", ErrClosed, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"catalog", fmt.Errorf("wrap: %w", ErrCatalogInconsistency), http.StatusInternalServerError},
		{"storage", ErrStorageIO, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error wins", fmt.Errorf("outer: %w", New(ErrInvalidInput, http.StatusConflict, "dup")), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	err := Newf(ErrDocumentNotFound, http.StatusNotFound, "document %d", 7)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Equal(t, "document not found: document 7", err.Error())
}
