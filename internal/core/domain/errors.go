package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrCorruptBundle    = errors.New("corrupt bundle")
	ErrIngestFailed     = errors.New("ingest failed")
	ErrTemporary        = errors.New("temporary failure")

	// ErrObjectNotFound is returned by object storage adapters for missing keys.
	ErrObjectNotFound = errors.New("object not found")
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

// Invalid builds a validation error without an underlying cause.
func Invalid(operation, format string, args ...any) error {
	return WrapError(ErrInvalidInput, operation, fmt.Errorf(format, args...))
}
