// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package vspi

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Error is a failure kind reported by the bus.
//
// Each kind corresponds to the errno a spidev node would return, so errors.Is
// matches both the sentinel and its errno.
type Error struct {
	msg   string
	errno unix.Errno
}

func (e *Error) Error() string {
	return e.msg
}

// Errno returns the conventional errno for the failure.
func (e *Error) Errno() unix.Errno {
	return e.errno
}

// Is allows the error to match its errno as well as itself.
func (e *Error) Is(target error) bool {
	if errno, ok := target.(unix.Errno); ok {
		return errno == e.errno
	}
	return false
}

var (
	// ErrResourceExhausted indicates a buffer or table could not be allocated.
	ErrResourceExhausted = &Error{"resource exhausted", unix.ENOMEM}

	// ErrTooManyUsers indicates the endpoint is already open.
	ErrTooManyUsers = &Error{"endpoint already open", unix.EUSERS}

	// ErrInterrupted indicates a wait was interrupted.
	//
	// The operation may be retried.
	ErrInterrupted = &Error{"interrupted", unix.EINTR}

	// ErrMessageTooLarge indicates a request exceeds the maximum bytes per
	// request.
	ErrMessageTooLarge = &Error{"message too large", unix.EMSGSIZE}

	// ErrInvalidArgument indicates a malformed request or parameter.
	ErrInvalidArgument = &Error{"invalid argument", unix.EINVAL}

	// ErrNotSupported indicates the control operation is not recognised.
	ErrNotSupported = &Error{"unsupported control operation", unix.ENOTTY}

	// ErrFaultyAddress indicates a user buffer could not be accessed.
	ErrFaultyAddress = &Error{"bad address", unix.EFAULT}

	// ErrNoPartner indicates no bus partner is open to transfer with.
	ErrNoPartner = &Error{"no bus partner", unix.ENODEV}

	// ErrNotFound indicates an endpoint id is out of range.
	ErrNotFound = &Error{"no such endpoint", unix.ENXIO}

	// ErrClosed indicates the handle or registry has already been closed.
	ErrClosed = &Error{"already closed", unix.EBADF}
)

// ErrnoOf returns the errno corresponding to err.
//
// Returns 0 for nil and EIO for errors that are not from this package.
func ErrnoOf(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.errno
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// interruptedError wraps the context error that caused an interruption.
type interruptedError struct {
	cause error
}

func (e interruptedError) Error() string {
	return "interrupted: " + e.cause.Error()
}

func (e interruptedError) Unwrap() []error {
	return []error{ErrInterrupted, e.cause}
}

func interrupted(cause error) error {
	return interruptedError{cause}
}
