package cli

import (
	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInvalid     = 2
	ExitNotFound    = 3
	ExitCorrupt     = 4
	ExitIngest      = 5
	ExitUnavailable = 6
)

// ExitCode maps the error taxonomy onto process exit codes.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case domain.IsKind(err, domain.ErrInvalidInput):
		return ExitInvalid
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return ExitNotFound
	case domain.IsKind(err, domain.ErrCorruptBundle):
		return ExitCorrupt
	case domain.IsKind(err, domain.ErrIngestFailed):
		return ExitIngest
	case domain.IsKind(err, domain.ErrTemporary):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}
