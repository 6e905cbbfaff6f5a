package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is used when a key does not exist.
	RedisNotFoundMessage = "record not found"
	// ConfigErrorMessage marks missing required external configuration.
	ConfigErrorMessage = "required dependency is not configured"
	// SessionNotFoundMessage is used when a session id is unknown.
	SessionNotFoundMessage = "session not found"
	// SessionConflictMessage is used when a session changed under a concurrent write.
	SessionConflictMessage = "session was modified concurrently"
	// StageViolationMessage is used when a classifier routes to a handler the stage does not allow.
	StageViolationMessage = "handler not allowed in current stage"
	// NLUErrorMessage describes a failed language model call.
	NLUErrorMessage = "intent model call failed"
	// BureauErrorMessage describes a failed credit bureau lookup.
	BureauErrorMessage = "credit bureau lookup failed"
)

// Kind classifies an AppError so callers can pick a recovery strategy
// without inspecting messages.
type Kind string

const (
	KindInternal           Kind = "internal"
	KindTransientExternal  Kind = "transient_external"
	KindValidation         Kind = "validation"
	KindStageViolation     Kind = "stage_violation"
	KindFatalConfiguration Kind = "fatal_configuration"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
)

// AppError wraps an underlying error with an HTTP status, a kind and a safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information. The kind is
// derived from the status code; use NewKind to set it explicitly.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
		Kind:    kindForStatus(status),
	}
}

// NewKind creates an AppError of the given kind.
func NewKind(kind Kind, err error, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  statusForKind(kind),
		Message: message,
		Kind:    kind,
	}
}

// Transient marks err as a recoverable failure of an external collaborator.
func Transient(err error, message string) *AppError {
	return NewKind(KindTransientExternal, err, message)
}

// Validation marks err as a rejected user-supplied value.
func Validation(err error, message string) *AppError {
	return NewKind(KindValidation, err, message)
}

// StageViolation marks a transition the current stage does not allow.
func StageViolation(err error, message string) *AppError {
	return NewKind(KindStageViolation, err, message)
}

// Fatal marks err as a configuration problem with no fallback.
func Fatal(err error, message string) *AppError {
	return NewKind(KindFatalConfiguration, err, message)
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) && ae.Kind != "" {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err is a fatal configuration error.
func IsFatal(err error) bool {
	return IsKind(err, KindFatalConfiguration)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return KindTransientExternal
	case http.StatusServiceUnavailable:
		return KindFatalConfiguration
	default:
		return KindInternal
	}
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindStageViolation:
		return http.StatusBadRequest
	case KindTransientExternal:
		return http.StatusBadGateway
	case KindFatalConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
