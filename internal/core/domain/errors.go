package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrEntryNotFound    = errors.New("case memory entry not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrTemporary        = errors.New("temporary failure")

	// ErrCollaboratorUnavailable marks embedding or structure-reasoning
	// backend failures. Recovered locally via the fallback path, never
	// surfaced as a query failure.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrIndexCorruption marks a malformed persisted index. Fatal at load
	// time; surfaced to the operator.
	ErrIndexCorruption = errors.New("index corruption")
)

var errEffectiveRange = errors.New("effective_from is after effective_to")

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
