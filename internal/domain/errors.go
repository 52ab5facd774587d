package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnreachable   = errors.New("service unreachable")
	ErrTimeout       = errors.New("request timed out")
	ErrCancelled     = errors.New("request cancelled")
	ErrUnparseable   = errors.New("no structured payload in model output")
	ErrNotConfigured = errors.New("required settings are missing")
)

// ServerError reports a non-2xx answer from a remote service.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Body)
}

type TemplateNotFoundError struct {
	ID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("prompt template not found: %s", e.ID)
}

type ErrorKind string

const (
	KindUnreachable ErrorKind = "unreachable"
	KindTimeout     ErrorKind = "timeout"
	KindCancelled   ErrorKind = "cancelled"
	KindServerError ErrorKind = "server_error"
)

// InferenceError is the failure half of an InferenceResult.
type InferenceError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *InferenceError) Error() string {
	switch e.Kind {
	case KindServerError:
		return fmt.Sprintf("inference %s (status %d): %v", e.Kind, e.Status, e.Err)
	default:
		if e.Err == nil {
			return "inference " + string(e.Kind)
		}
		return fmt.Sprintf("inference %s: %v", e.Kind, e.Err)
	}
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Is lets callers match on the taxonomy sentinels regardless of the wrapped cause.
func (e *InferenceError) Is(target error) bool {
	switch e.Kind {
	case KindUnreachable:
		return target == ErrUnreachable
	case KindTimeout:
		return target == ErrTimeout
	case KindCancelled:
		return target == ErrCancelled
	}
	return false
}

// KindOf reports the inference kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return "", false
}
