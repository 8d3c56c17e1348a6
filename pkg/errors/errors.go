package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCorrupt       = errors.New("corrupt index data")
	ErrVersionTooOld = errors.New("index format too old")
	ErrVersionTooNew = errors.New("index format too new")
	ErrLockTimeout   = errors.New("lock not obtained")
	ErrShardUnknown  = errors.New("unknown shard")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Corruptf wraps ErrCorrupt with a formatted detail. Callers match it with
// errors.Is(err, ErrCorrupt).
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// IsVersion reports whether err is a format-version mismatch rather than
// structural damage.
func IsVersion(err error) bool {
	return errors.Is(err, ErrVersionTooOld) || errors.Is(err, ErrVersionTooNew)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrShardUnknown):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrLockTimeout):
		return http.StatusConflict
	case errors.Is(err, ErrVersionTooOld), errors.Is(err, ErrVersionTooNew):
		return http.StatusUpgradeRequired
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
