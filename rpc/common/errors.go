package common

import (
	"fmt"

	"github.com/ValentinKolb/dTX/lib/abi"
	"github.com/cockroachdb/errors"
)

// Protocol error classes. Callers match them with errors.Is.
var (
	// ErrNegotiationFailure means the peers share no production revision. It
	// is fatal for that peer connection only.
	ErrNegotiationFailure = errors.New("negotiation failure")
	// ErrUnsupportedDowngrade means a message cannot be expressed at the
	// requested revision without changing its meaning.
	ErrUnsupportedDowngrade = errors.New("unsupported downgrade")
	// ErrSequenceViolation means a request reused a sequence number outside
	// of the retry window.
	ErrSequenceViolation = errors.New("sequence violation")
	// ErrStaleResponse marks a response for an unknown or resolved request.
	// It is recovered locally and never returned to callers.
	ErrStaleResponse = errors.New("stale response")
	// ErrTimeout means the retry budget of a request is exhausted.
	ErrTimeout = errors.New("request timed out")
	// ErrRequestFailed means the backend answered with a failure.
	ErrRequestFailed = errors.New("request failed")
)

// DowngradeError names the variant and field that blocked a downgrade.
type DowngradeError struct {
	Kind  Kind
	Field string // empty when the variant itself is newer than To
	From  abi.Revision
	To    abi.Revision
}

func (e *DowngradeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unsupported downgrade: %s does not exist at %s (introduced in %s)", e.Kind, e.To, e.Kind.Since())
	}
	return fmt.Sprintf("unsupported downgrade: %s.%s cannot be expressed at %s (from %s)", e.Kind, e.Field, e.To, e.From)
}

func (e *DowngradeError) Unwrap() error { return ErrUnsupportedDowngrade }

// RequestError is returned to callers when the backend answered a request
// with a failure.
type RequestError struct {
	Kind  Kind // kind of the failed request
	Cause Cause
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Cause)
}

// Unwrap returns the protocol error class of the cause.
func (e *RequestError) Unwrap() error {
	switch e.Cause.Code {
	case CauseNegotiation:
		return ErrNegotiationFailure
	case CauseSequenceViolation:
		return ErrSequenceViolation
	default:
		return ErrRequestFailed
	}
}

// HasCause reports whether err is a *RequestError with the given code.
func HasCause(err error, code CauseCode) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Cause.Code == code
}
