package assets

import (
	"fmt"

	"github.com/corvusreach/crawlkit/internal/metadata"
	"github.com/corvusreach/crawlkit/pkg/failure"
)

type AssetsErrorCause string

const (
	ErrCauseImageDownloadFailure  AssetsErrorCause = "failed to download image"
	ErrCauseNetworkFailure        AssetsErrorCause = "network failure"
	ErrCausePathError             AssetsErrorCause = "path error"
	ErrCauseHashError             AssetsErrorCause = "hash computation failure"
	ErrCauseWriteFailure          AssetsErrorCause = "write failure"
	ErrCauseDiskFull              AssetsErrorCause = "disk full"
	ErrCauseAssetTooLarge         AssetsErrorCause = "asset too large"
	ErrCauseRequest5xx            AssetsErrorCause = "server error"
	ErrCauseRequestTooMany        AssetsErrorCause = "rate limited"
	ErrCauseRequestPageForbidden  AssetsErrorCause = "forbidden"
	ErrCauseRedirectLimitExceeded AssetsErrorCause = "redirect error"
	ErrCauseReadResponseBodyError AssetsErrorCause = "read response body failure"
)

type AssetsError struct {
	Message   string
	Retryable bool
	Cause     AssetsErrorCause
}

func (e *AssetsError) Error() string {
	return fmt.Sprintf("assets error: %s: %s", e.Cause, e.Message)
}

func (e *AssetsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapAssetsErrorToMetadataCause maps assets-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapAssetsErrorToMetadataCause(err AssetsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseImageDownloadFailure, ErrCauseNetworkFailure, ErrCauseRequest5xx,
		ErrCauseRequestTooMany, ErrCauseRedirectLimitExceeded, ErrCauseReadResponseBodyError:
		return metadata.CauseNetworkFailure
	case ErrCauseRequestPageForbidden:
		return metadata.CausePolicyDisallow
	case ErrCauseWriteFailure, ErrCauseDiskFull, ErrCausePathError:
		return metadata.CauseStorageFailure
	case ErrCauseHashError, ErrCauseAssetTooLarge:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
