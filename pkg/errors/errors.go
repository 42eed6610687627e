// Package errors defines the sentinel and typed errors shared by the pipeline
// stages and the dashboard API. Every typed error unwraps to a sentinel so
// callers can branch with errors.Is and inspect details with errors.As.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUpstream     = errors.New("upstream catalog error")
	ErrTimeout      = errors.New("operation timed out")
	ErrMissingInput = errors.New("missing stage input")
	ErrStorage      = errors.New("storage error")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// UpstreamError reports a failed catalog API call. StatusCode is zero when
// the request never produced a response (network failure or timeout).
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("catalog %s: timed out: %v", e.Endpoint, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("catalog %s: unexpected status %d", e.Endpoint, e.StatusCode)
	default:
		return fmt.Sprintf("catalog %s: %v", e.Endpoint, e.Err)
	}
}

func (e *UpstreamError) Unwrap() []error {
	errs := []error{ErrUpstream}
	if e.Timeout {
		errs = append(errs, ErrTimeout)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// MissingInputError reports that a stage ran without the output of the stage
// it depends on.
type MissingInputError struct {
	Input string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: %s is nil", ErrMissingInput, e.Input)
}

func (e *MissingInputError) Unwrap() error {
	return ErrMissingInput
}

// StorageKind classifies storage failures.
type StorageKind string

const (
	StorageUnreachable StorageKind = "unreachable"
	StorageConstraint  StorageKind = "constraint"
	// StorageDecode is a stored row that cannot be read back into its Go type.
	StorageDecode StorageKind = "decode"
)

// StorageError reports a failed storage operation. Applied counts the records
// upserted before the failure; Total is the size of the attempted snapshot.
type StorageError struct {
	Kind    StorageKind
	Op      string
	Applied int
	Total   int
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (%s) after %d/%d records: %v", e.Op, e.Kind, e.Applied, e.Total, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// IsTimeout reports whether err is, or wraps, a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// HTTPStatusCode maps an error to the status code the dashboard API responds
// with.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStorage), errors.Is(err, ErrUpstream):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
