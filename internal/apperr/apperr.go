// Package apperr defines the error taxonomy shared across the search pipeline.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad caller input. Never retried.
	ErrValidation = errors.New("invalid input")

	// ErrNoResults marks the valid terminal state where no candidate survived
	// retrieval, filtering, or compression. Not a backend failure.
	ErrNoResults = errors.New("no results")

	// ErrUpstream marks a backend failure in a stage that cannot be absorbed
	// (rerank, compression, synthesis).
	ErrUpstream = errors.New("upstream unavailable")

	// ErrConfiguration marks malformed settings or cache key templates.
	// Raised at construction time, never during a request.
	ErrConfiguration = errors.New("invalid configuration")
)

// Validation wraps a message as a validation failure.
func Validation(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}

// Upstream wraps a stage failure so callers can match on ErrUpstream while
// keeping the stage name and cause in the message.
func Upstream(stage string, err error) error {
	return fmt.Errorf("%s: %v: %w", stage, err, ErrUpstream)
}

// Configuration wraps a construction-time failure.
func Configuration(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConfiguration)
}
