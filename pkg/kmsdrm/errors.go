package kmsdrm

import (
	"errors"
	"fmt"
)

// ErrUnarmed is returned by FlipHWSurface when no pipe is active.
var ErrUnarmed = errors.New("kmsdrm: flip called with no active pipe")

// ErrNoPipes is returned when the pipe registry contains no candidates at all.
var ErrNoPipes = errors.New("kmsdrm: no usable plane/crtc/encoder/connector pipe found")

// UnsupportedError reports that no DRM device or no pipe satisfied the
// backend's requirements.
type UnsupportedError struct{ msg string }

func NewUnsupportedError(format string, a ...interface{}) error {
	return &UnsupportedError{msg: fmt.Sprintf(format, a...)}
}

func (e *UnsupportedError) Error() string { return e.msg }

// BadPixelFormatError reports a depth/flag combination absent from the
// color catalog.
type BadPixelFormatError struct{ msg string }

func NewBadPixelFormatError(format string, a ...interface{}) error {
	return &BadPixelFormatError{msg: fmt.Sprintf(format, a...)}
}

func (e *BadPixelFormatError) Error() string { return e.msg }

// KernelError wraps an ioctl or libdrm-equivalent failure. The underlying
// errno is preserved with %w so errors.Is(err, unix.EBUSY) works.
type KernelError struct {
	msg string
	err error
}

func NewKernelError(err error, format string, a ...interface{}) error {
	return &KernelError{msg: fmt.Sprintf(format, a...), err: err}
}

func (e *KernelError) Error() string { return fmt.Sprintf("%s: %v", e.msg, e.err) }
func (e *KernelError) Unwrap() error { return e.err }

// OutOfMemoryError reports an allocation or blob-creation failure.
type OutOfMemoryError struct{ msg string }

func NewOutOfMemoryError(format string, a ...interface{}) error {
	return &OutOfMemoryError{msg: fmt.Sprintf(format, a...)}
}

func (e *OutOfMemoryError) Error() string { return e.msg }

// TransientBusyError reports a commit that failed with EBUSY somewhere the
// caller tolerates it (UpdateRects). Kept as a distinct type so callers can
// errors.As it instead of comparing against unix.EBUSY directly.
type TransientBusyError struct{ msg string }

func NewTransientBusyError(format string, a ...interface{}) error {
	return &TransientBusyError{msg: fmt.Sprintf(format, a...)}
}

func (e *TransientBusyError) Error() string { return e.msg }
