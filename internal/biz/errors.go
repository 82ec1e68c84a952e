package biz

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
)

// Stable error reasons for the coordination layer. Transport-layer errors
// are translated into these at the component that made the outbound call and
// never leaked raw to the inbound caller.
const (
	ReasonDuplicateInFlight   = "DUPLICATE_IN_FLIGHT"
	ReasonLockTimeout         = "LOCK_TIMEOUT"
	ReasonCircuitOpen         = "CIRCUIT_OPEN"
	ReasonStoreUnavailable    = "STORE_UNAVAILABLE"
	ReasonRateLimited         = "RATE_LIMITED"
	ReasonUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ReasonValidation          = "VALIDATION_ERROR"
	ReasonProcessingFailed    = "EVENT_PROCESSING_FAILED"
)

// ErrDuplicateInFlight signals that the original admission is still being
// processed; the caller must not process and must surface "in progress".
func ErrDuplicateInFlight(eventID string) *errors.Error {
	return errors.New(409, ReasonDuplicateInFlight,
		fmt.Sprintf("event %s is already being processed", eventID))
}

// ErrLockTimeout signals that the credential refresh lease wait budget was
// exhausted while another actor still held the lease.
func ErrLockTimeout(waited time.Duration) *errors.Error {
	return errors.New(503, ReasonLockTimeout,
		fmt.Sprintf("credential refresh lease not released within %s", waited))
}

// ErrCircuitOpen signals a fast-failed call to a known-bad dependency.
func ErrCircuitOpen(dependency string) *errors.Error {
	return errors.New(503, ReasonCircuitOpen,
		fmt.Sprintf("circuit open for dependency %s, temporarily unavailable", dependency))
}

// ErrStoreUnavailable signals that the atomic store could not serve a
// coordination decision for a component that fails closed.
func ErrStoreUnavailable(err error) *errors.Error {
	return errors.New(503, ReasonStoreUnavailable,
		fmt.Sprintf("coordination store unavailable: %v", err))
}

// ErrRateLimited signals a rejected admission with retry guidance.
func ErrRateLimited(retryAfter time.Duration) *errors.Error {
	e := errors.New(429, ReasonRateLimited, "rate limit exceeded")
	return e.WithMetadata(map[string]string{
		"retry_after_seconds": fmt.Sprintf("%d", int64(retryAfter.Seconds())),
	})
}

// ErrUpstreamTimeout signals an outbound call abandoned on its own timeout.
func ErrUpstreamTimeout(dependency string) *errors.Error {
	return errors.New(504, ReasonUpstreamTimeout,
		fmt.Sprintf("call to %s timed out", dependency))
}

// ErrUpstreamUnavailable signals an outbound transport failure after retries.
func ErrUpstreamUnavailable(dependency string, err error) *errors.Error {
	return errors.New(502, ReasonUpstreamUnavailable,
		fmt.Sprintf("%s unavailable: %v", dependency, err))
}

// ErrValidation signals a malformed inbound request.
func ErrValidation(msg string) *errors.Error {
	return errors.New(400, ReasonValidation, msg)
}

// ErrProcessingFailed signals a business-logic failure while processing an
// admitted event. The record has been marked failed; retry is caller-driven
// via redelivery of the same event identifier.
func ErrProcessingFailed(eventID string, err error) *errors.Error {
	return errors.New(500, ReasonProcessingFailed,
		fmt.Sprintf("processing of event %s failed: %v", eventID, err))
}
