package market

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies adapter failures for retry and fallback decisions.
type FailureKind int

const (
	// KindTransport covers timeouts and connection errors; retried in place.
	KindTransport FailureKind = iota
	// KindRateLimited is an HTTP 429 equivalent; no further retries on
	// that adapter, fall through to the next one.
	KindRateLimited
	// KindNotFound is a structural "no data" answer (unknown or
	// delisted symbol); falls through without retrying.
	KindNotFound
	// KindBadPayload is a parse or schema failure; falls through
	// without retrying.
	KindBadPayload
)

func (k FailureKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate-limited"
	case KindNotFound:
		return "not-found"
	case KindBadPayload:
		return "bad-payload"
	}
	return "unknown"
}

// FetchError is an adapter-level failure tagged with its kind and origin.
type FetchError struct {
	Source string
	Kind   FailureKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err as a classified adapter failure.
func NewFetchError(source string, kind FailureKind, err error) *FetchError {
	return &FetchError{Source: source, Kind: kind, Err: err}
}

// FailureKindOf extracts the failure kind, defaulting to transport for
// unclassified errors so they stay retryable.
func FailureKindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}

// DataUnavailableError is the terminal failure after every adapter in a
// chain has been exhausted. Trail records one reason per adapter tried.
type DataUnavailableError struct {
	Request Request
	Trail   []string
}

func (e *DataUnavailableError) Error() string {
	if len(e.Trail) == 0 {
		return fmt.Sprintf("no source available for %s %s", e.Request.Symbol, e.Request.Metric)
	}
	return fmt.Sprintf("data unavailable for %s %s: %s",
		e.Request.Symbol, e.Request.Metric, strings.Join(e.Trail, "; "))
}

// IsDataUnavailable reports whether err is a terminal fetch exhaustion.
func IsDataUnavailable(err error) bool {
	var due *DataUnavailableError
	return errors.As(err, &due)
}
