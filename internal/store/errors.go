package store

import (
	"fmt"

	"github.com/corvusreach/crawlkit/internal/metadata"
	"github.com/corvusreach/crawlkit/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCauseOpenFailure   StoreErrorCause = "failed to open database"
	ErrCauseSchemaFailure StoreErrorCause = "failed to initialize schema"
	ErrCauseWriteFailure  StoreErrorCause = "failed to write record"
	ErrCauseQueryFailure  StoreErrorCause = "failed to query records"
	ErrCauseScanFailure   StoreErrorCause = "failed to scan row"
)

type StoreError struct {
	Message   string
	Retryable bool
	Cause     StoreErrorCause
	URL       string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %s", e.Cause, e.Message)
}

func (e *StoreError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapStoreErrorToMetadataCause maps store-local error semantics to the
// canonical metadata.ErrorCause table. Observational only.
func mapStoreErrorToMetadataCause(err *StoreError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseOpenFailure, ErrCauseSchemaFailure:
		return metadata.CauseStorageFailure
	case ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	case ErrCauseQueryFailure, ErrCauseScanFailure:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
