package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTemporary    = errors.New("temporary failure")

	// ErrNoEvidence means retrieval produced zero usable candidates. It is a
	// distinct failure from the generation stack being unreachable.
	ErrNoEvidence = errors.New("no evidence found")

	// ErrGenerationUnavailable means both the primary and the secondary
	// provider failed for a model call.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
