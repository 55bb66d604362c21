package access

import (
	"context"
	"errors"
)

var (
	// ErrInvalidAddress is returned when an address literal contains non-hex
	// characters or overflows 64 bits.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrSizeOutOfRange is returned for zero, oversized or overflowing
	// transfer sizes.
	ErrSizeOutOfRange = errors.New("size out of range")

	// ErrMalformedPayload is returned for odd-length or non-hex payloads.
	ErrMalformedPayload = errors.New("malformed payload")

	ErrNoSuchProcess = errors.New("no such process")
	ErrAccessDenied  = errors.New("access denied")

	// ErrPartialRead and ErrPartialWrite report short transfers. A short
	// transfer is never coerced into success.
	ErrPartialRead  = errors.New("partial read")
	ErrPartialWrite = errors.New("partial write")

	// ErrWriteNotConfirmed is returned when a write arrives without the
	// caller-supplied confirmation flag, independent of permission state.
	ErrWriteNotConfirmed = errors.New("write not confirmed")

	ErrTimeout = errors.New("operation timed out")

	// ErrBackendUnavailable signals that no backend in a usable permission
	// state could serve the request.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Kind is the machine-readable error classification carried on the wire.
type Kind string

const (
	KindInvalidAddress     Kind = "InvalidAddress"
	KindSizeOutOfRange     Kind = "SizeOutOfRange"
	KindMalformedPayload   Kind = "MalformedPayload"
	KindNoSuchProcess      Kind = "NoSuchProcess"
	KindAccessDenied       Kind = "AccessDenied"
	KindPartialRead        Kind = "PartialRead"
	KindPartialWrite       Kind = "PartialWrite"
	KindWriteNotConfirmed  Kind = "WriteNotConfirmed"
	KindTimeout            Kind = "Timeout"
	KindBackendUnavailable Kind = "BackendUnavailable"
)

// KindOf folds any error into the shared taxonomy. Errors that no sentinel
// claims classify as BackendUnavailable so the negotiator's fallback chain,
// not the caller, decides what happens next.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		return KindInvalidAddress
	case errors.Is(err, ErrSizeOutOfRange):
		return KindSizeOutOfRange
	case errors.Is(err, ErrMalformedPayload):
		return KindMalformedPayload
	case errors.Is(err, ErrNoSuchProcess):
		return KindNoSuchProcess
	case errors.Is(err, ErrPartialRead):
		return KindPartialRead
	case errors.Is(err, ErrPartialWrite):
		return KindPartialWrite
	case errors.Is(err, ErrWriteNotConfirmed):
		return KindWriteNotConfirmed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrBackendUnavailable):
		return KindBackendUnavailable
	}
	return KindBackendUnavailable
}

// Retryable reports whether an error should drive the fallback chain to the
// next backend instead of failing the call.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindAccessDenied || k == KindBackendUnavailable
}
