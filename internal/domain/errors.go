package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFeedUnavailable means the feed fetch did not return a success status.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrFeedMalformed means the feed document is not a syndication feed.
	ErrFeedMalformed = errors.New("feed malformed")
	// ErrIntegrityViolation means more than one row matches a single reference.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrDeadlockRetryExhausted is wrapped in a PersistenceError after the last deadlock retry.
	ErrDeadlockRetryExhausted = errors.New("deadlock retry exhausted")
)

// PersistenceError is a relational store failure that aborts one article.
type PersistenceError struct {
	Reference string
	Attempts  int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist article %s (attempts %d): %v", e.Reference, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// DatabaseOperationError is a non-success response from the vector store.
type DatabaseOperationError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *DatabaseOperationError) Error() string {
	return fmt.Sprintf("vector store %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// ExternalServiceError wraps a failure of the AI enrichment boundary.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
