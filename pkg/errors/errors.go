// Package errors defines the sentinel errors shared by the index engine, its
// storage tiers and the HTTP surface, plus a helper mapping them to status
// codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrSegmentNotFound      = errors.New("segment not found")
	ErrRecordNotFound       = errors.New("record not found")
	ErrStorageIO            = errors.New("storage i/o failure")
	ErrCatalogInconsistency = errors.New("catalog inconsistency")
	ErrIngestionHalted      = errors.New("ingestion halted until storage recovers")
	ErrFlushFailed          = errors.New("document indexed in memory but flush failed")
	ErrClosed               = errors.New("index is closed")
	ErrUnavailable          = errors.New("dependency unavailable")
	ErrTimeout              = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error chain onto the status code the HTTP layer
// should answer with. Storage and catalog failures are server errors; a halted
// or closed engine is reported as temporarily unavailable.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIngestionHalted), errors.Is(err, ErrFlushFailed), errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrClosed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
