package service

import (
	"errors"
	"fmt"

	"bitwise74/fileshare-api/internal/policy"
)

var (
	ErrForbidden    = errors.New("not the owner of this file")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotUploaded  = errors.New("object has not been uploaded yet")
)

// DeniedError is returned when the access policy refuses a request. The
// message only names the decision.
type DeniedError struct {
	Decision policy.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Decision)
}

// invalid wraps err so it matches ErrInvalidInput and keeps its own message
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// BulkResult is the outcome of one id of a bulk operation
type BulkResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func bulkResult(id string, err error) BulkResult {
	if err != nil {
		return BulkResult{ID: id, Error: err.Error()}
	}

	return BulkResult{ID: id, Success: true}
}
