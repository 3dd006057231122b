package indexer

import (
	"fmt"

	"github.com/corvusreach/crawlkit/internal/metadata"
	"github.com/corvusreach/crawlkit/pkg/failure"
)

type IndexErrorCause string

const (
	ErrCauseOpenFailure   IndexErrorCause = "failed to open index"
	ErrCauseIndexFailure  IndexErrorCause = "failed to index document"
	ErrCauseDeleteFailure IndexErrorCause = "failed to delete document"
	ErrCauseSearchFailure IndexErrorCause = "failed to execute search"
	ErrCauseUnavailable   IndexErrorCause = "index unavailable"
)

type IndexError struct {
	Message   string
	Retryable bool
	Cause     IndexErrorCause
	ContentHash string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("indexer error: %s: %s", e.Cause, e.Message)
}

func (e *IndexError) Severity() failure.Severity {
	// An indexing failure never halts crawling - the store already has
	// the document. The index is always recoverable, never fatal.
	return failure.SeverityRecoverable
}

func mapIndexErrorToMetadataCause(err *IndexError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseOpenFailure, ErrCauseUnavailable:
		return metadata.CauseIndexFailure
	case ErrCauseIndexFailure, ErrCauseDeleteFailure, ErrCauseSearchFailure:
		return metadata.CauseIndexFailure
	default:
		return metadata.CauseUnknown
	}
}
