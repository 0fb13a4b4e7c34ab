package domain

import (
	"context"
	"errors"
)

// Sentinel errors for the domain layer.
//
// These errors represent well-known failure conditions that services and
// adapters classify against with errors.Is. Adapters wrap them with context
// using fmt.Errorf and %w so that classification survives the wrapping.
var (
	// ErrInvalidConfiguration indicates a settings value that can never
	// work, such as a zero rate limit window or a negative worker count.
	// It is raised at construction time, not at first use.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidRequest indicates the upstream API rejected the request as
	// malformed or unauthorised. Retrying the same request cannot succeed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateExceeded indicates the upstream API throttled the request and
	// the retry budget for throttled attempts is exhausted.
	ErrRateExceeded = errors.New("rate limit exceeded")

	// ErrUpstreamUnavailable indicates the upstream API failed with a
	// server error or a transport failure after all retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrStorage indicates a local persistence failure, such as an
	// unwritable data directory or a failed rename.
	ErrStorage = errors.New("storage failure")

	// ErrIndexInconsistency indicates an index references a record file
	// that no longer exists, or an index file could not be decoded.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrNotFound indicates the requested record or resource does not
	// exist in the local store.
	ErrNotFound = errors.New("not found")

	// ErrFetchInProgress indicates a fetch run is already active and a
	// concurrent run was refused.
	ErrFetchInProgress = errors.New("fetch already in progress")

	// ErrSourceUnknown indicates a source identifier that no connector is
	// registered for.
	ErrSourceUnknown = errors.New("unknown source")

	// ErrConnectorClosed indicates an operation on a closed connector.
	ErrConnectorClosed = errors.New("connector is closed")
)

// ErrorKind is a coarse classification of a failure, used in reports,
// metrics labels, and persisted run history. Kinds are stable strings so
// they can be stored and compared across versions.
type ErrorKind string

const (
	// KindNone marks the absence of an error.
	KindNone ErrorKind = ""
	// KindInvalidConfiguration marks settings rejected at construction.
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	// KindInvalidRequest marks upstream 4xx rejections that must not be
	// retried.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindRateExceeded marks throttling that outlasted the retry budget.
	KindRateExceeded ErrorKind = "rate_exceeded"
	// KindUpstreamUnavailable marks exhausted retries against server or
	// transport failures.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	// KindStorage marks local persistence failures.
	KindStorage ErrorKind = "storage"
	// KindIndexInconsistency marks index entries that disagree with the
	// record files on disk.
	KindIndexInconsistency ErrorKind = "index_inconsistency"
	// KindCancelled marks work stopped by context cancellation.
	KindCancelled ErrorKind = "cancelled"
	// KindUnknown marks errors that match no sentinel.
	KindUnknown ErrorKind = "unknown"
)

// KindOf classifies err against the domain sentinels. A nil error returns
// KindNone. Context cancellation takes precedence so that a run aborted
// mid-retry reports as cancelled rather than as an upstream failure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrInvalidConfiguration):
		return KindInvalidConfiguration
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrRateExceeded):
		return KindRateExceeded
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrIndexInconsistency):
		return KindIndexInconsistency
	default:
		return KindUnknown
	}
}

// IsTerminal reports whether err is one of the terminal fetch outcomes that
// ends a partition. Terminal errors are already fully classified; callers
// must not retry them.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrRateExceeded) ||
		errors.Is(err, ErrUpstreamUnavailable)
}
