package cnwdevice

import (
	"errors"
	"fmt"
)

// Sentinel errors for device admission.
var (
	ErrDeviceLimitReached = errors.New("device limit reached")
	ErrAdmissionFailed    = errors.New("device access could not be verified")
	ErrSessionTerminated  = errors.New("device session terminated")
	ErrSessionNotActive   = errors.New("no active device session")
)

// Sentinel errors mapped from registry error payloads.
var (
	ErrDeviceNotFound  = errors.New("device not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionInvalid  = errors.New("session is not valid")
	ErrInvalidResponse = errors.New("invalid registry response")
)

// ErrUnexpectedResponse is returned when the registry answers with something
// other than JSON, typically an HTML error page from a proxy or PHP.
var ErrUnexpectedResponse = errors.New("server returned an unexpected response")

// ServerError represents an application-level error reported by the device
// registry. The registry signals failure with a top-level "error" field, either
// a plain string or {"code": "...", "message": "..."}, even on HTTP 200.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server error %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// mapServerError converts a ServerError to a well-known sentinel error if possible.
// The returned error wraps both the sentinel error and the original ServerError
// so callers can use errors.Is() for sentinel checks and errors.As() for details.
func mapServerError(se *ServerError) error {
	var sentinel error
	switch se.Code {
	case "DEVICE_LIMIT", "ACTIVATION_LIMIT":
		sentinel = ErrDeviceLimitReached
	case "DEVICE_NOT_FOUND":
		sentinel = ErrDeviceNotFound
	case "USER_NOT_FOUND":
		sentinel = ErrUserNotFound
	case "NOT_FOUND":
		if se.Message == "user not found" {
			sentinel = ErrUserNotFound
		} else {
			sentinel = ErrDeviceNotFound
		}
	case "SESSION_INVALID", "UNAUTHORIZED":
		sentinel = ErrSessionInvalid
	default:
		return se
	}
	return &mappedError{sentinel: sentinel, server: se}
}

// mappedError wraps a sentinel error with the original ServerError details.
type mappedError struct {
	sentinel error
	server   *ServerError
}

func (e *mappedError) Error() string {
	return e.sentinel.Error() + ": " + e.server.Message
}

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) As(target interface{}) bool {
	if t, ok := target.(**ServerError); ok {
		*t = e.server
		return true
	}
	return false
}

func (e *mappedError) Unwrap() error {
	return e.sentinel
}
