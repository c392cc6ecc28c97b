package ipc

import "errors"

// Error taxonomy surfaced to the syscall-dispatch layer.
//
// Capacity errors (queue full, message too large, semaphore at max) and
// identity errors (unknown handle) are recoverable and never retried at this
// layer. ErrFault covers address-space misuse by the caller or a
// collaborator. ErrOutOfMemory covers resource exhaustion. No operation
// panics on malformed input; every fallible path returns one of these,
// usually wrapped with context.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOutOfMemory     = errors.New("out of memory")
	ErrWouldBlock      = errors.New("would block")
	ErrMessageTooLarge = errors.New("message too large")
	ErrNotFound        = errors.New("not found")
	ErrFault           = errors.New("fault")
)

// Code returns the wire identifier for an error, for the syscall layer to
// translate into its own error space.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrOutOfMemory):
		return "OutOfMemory"
	case errors.Is(err, ErrWouldBlock):
		return "WouldBlock"
	case errors.Is(err, ErrMessageTooLarge):
		return "MessageTooLarge"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrFault):
		return "Fault"
	default:
		return "Internal"
	}
}
