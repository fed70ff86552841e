package core

import (
	"github.com/cockroachdb/errors"
)

// ErrorKind separates errors that must end the current operation tree from
// data errors a caller may catch and react to.
type ErrorKind int

const (
	ErrorKindFatal ErrorKind = iota
	ErrorKindRecoverable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindRecoverable:
		return "recoverable"
	default:
		return "fatal"
	}
}

var (
	ErrFatal       = errors.New("fatal")
	ErrRecoverable = errors.New("recoverable")

	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrSurfaceOutOfDate = errors.New("surface out of date")
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrFrameState       = errors.New("operation not allowed in current frame state")
	ErrUnknown          = errors.New("unknown")
)

func Fatalf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrFatal)
}

func Recoverablef(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrRecoverable)
}

// WrapFatal wraps err and marks the result fatal. A nil err stays nil.
func WrapFatal(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WrapWithDepthf(1, err, format, args...), ErrFatal)
}

// WrapRecoverable wraps err and marks the result recoverable. A nil err stays nil.
func WrapRecoverable(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.WrapWithDepthf(1, err, format, args...), ErrRecoverable)
}

// KindOf classifies err. Errors that carry no mark are treated as fatal.
func KindOf(err error) ErrorKind {
	if errors.Is(err, ErrRecoverable) && !errors.Is(err, ErrFatal) {
		return ErrorKindRecoverable
	}
	return ErrorKindFatal
}

func IsFatal(err error) bool {
	return err != nil && KindOf(err) == ErrorKindFatal
}

func IsRecoverable(err error) bool {
	return err != nil && KindOf(err) == ErrorKindRecoverable
}
