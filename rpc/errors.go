package rpc

import (
	"errors"
	"fmt"
)

// Error causes. Handlers wrap one of these so callers can tell a stale id from
// bad input or a failing engine; the wire only carries the message.
var (
	ErrValidation = errors.New("invalid parameters")
	ErrResolution = errors.New("unable to resolve")
	ErrEngine     = errors.New("engine failure")
	ErrNotFound   = errors.New("not found")
)

// Validationf reports missing or malformed parameters.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Resolutionf reports a symbol, module or target that did not resolve.
func Resolutionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrResolution, fmt.Sprintf(format, args...))
}

// NotFoundf reports a registry id or handle that does not exist.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Enginef wraps a failure of the underlying engine, keeping its text.
func Enginef(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrEngine, fmt.Sprintf(format, args...), err)
}
