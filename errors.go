package mediakit

import "errors"

// Common errors returned across the package.
var (
	// ErrAgain signals that the operation should be retried after feeding
	// or draining the other side of a codec context (send/receive model).
	ErrAgain = errors.New("resource temporarily unavailable, try again")

	// ErrClosed is returned when operating on a closed context or device.
	ErrClosed = errors.New("already closed")

	// ErrNotFound is returned when a codec, device, format or track lookup fails.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported is returned for format/codec combinations with no
	// registered implementation.
	ErrUnsupported = errors.New("not supported")

	// ErrInvalidParameter is returned for malformed arguments: mismatched
	// dimensions, wrong plane counts, bad descriptors.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotImplemented marks operations a backend deliberately does not provide.
	ErrNotImplemented = errors.New("not implemented")

	// ErrNotRunning is returned when stopping or reading from a device
	// that was never started.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidState is returned when an operation does not fit the
	// current lifecycle state, e.g. starting a running device.
	ErrInvalidState = errors.New("invalid state")

	// ErrBufferTooSmall is returned when a caller-provided buffer cannot
	// hold the result.
	ErrBufferTooSmall = errors.New("buffer too small")
)
