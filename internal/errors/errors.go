package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Muse error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS" // 402
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrSessionBusy         ErrorCode = "SESSION_BUSY"         // 409
	ErrMissingPreference   ErrorCode = "MISSING_PREFERENCE"   // 412
	ErrMalformedRecord     ErrorCode = "MALFORMED_RECORD"     // 422
	ErrCancelled           ErrorCode = "CANCELLED"            // 499
	ErrInternal            ErrorCode = "INTERNAL"             // 500
	ErrRequestFailed       ErrorCode = "REQUEST_FAILED"       // 502
)

// ActionOpenSettings is the corrective action attached to missing preference errors.
const ActionOpenSettings = "open_settings"

// MuseError represents a structured error with code, status, and details.
type MuseError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *MuseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *MuseError {
	return &MuseError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInsufficientCredits creates a 402 error when the balance cannot cover an operation.
func NewInsufficientCredits(required, balance int) *MuseError {
	return &MuseError{
		Code:    ErrInsufficientCredits,
		Status:  402,
		Message: fmt.Sprintf("not enough credits: need %d, have %d", required, balance),
		Details: map[string]any{"required": required, "balance": balance},
	}
}

// NewNotFound creates a 404 error for when a generation cannot be found.
func NewNotFound(identifier string) *MuseError {
	return &MuseError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("generation not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSessionBusy creates a 409 error when a tool already has a session in flight.
func NewSessionBusy(mode string) *MuseError {
	return &MuseError{
		Code:    ErrSessionBusy,
		Status:  409,
		Message: fmt.Sprintf("a %s session is already running", mode),
		Details: map[string]any{"mode": mode},
	}
}

// NewMissingPreference creates a 412 error listing the preferences that are not set.
func NewMissingPreference(missing []string) *MuseError {
	return &MuseError{
		Code:    ErrMissingPreference,
		Status:  412,
		Message: fmt.Sprintf("missing preferences: %v; set niche, platforms, and tone first", missing),
		Details: map[string]any{"missing": missing, "action": ActionOpenSettings},
	}
}

// NewMalformedRecord creates a 422 error for a frame that could not be decoded.
// The raw frame is kept in Details for diagnostic logging.
func NewMalformedRecord(kind, frame string, cause error) *MuseError {
	msg := fmt.Sprintf("malformed %s record", kind)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &MuseError{
		Code:    ErrMalformedRecord,
		Status:  422,
		Message: msg,
		Details: map[string]any{"kind": kind, "frame": frame},
	}
}

// NewCancelled creates a 499 error for an operation stopped by its caller.
func NewCancelled(operation string) *MuseError {
	return &MuseError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewRequestFailed creates a 502 error for a failed call to the generation service.
// status is the HTTP status received, or 0 for transport errors.
func NewRequestFailed(status int, cause error) *MuseError {
	msg := "generation request failed"
	switch {
	case cause != nil:
		msg = fmt.Sprintf("%s: %v", msg, cause)
	case status != 0:
		msg = fmt.Sprintf("%s: HTTP status %d", msg, status)
	}
	e := &MuseError{
		Code:    ErrRequestFailed,
		Status:  502,
		Message: msg,
	}
	if status != 0 {
		e.Details = map[string]any{"http_status": status}
	}
	return e
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *MuseError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MuseError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is (or wraps) a MuseError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MuseError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// As returns the MuseError in err's chain, or wraps err as INTERNAL.
func As(err error) *MuseError {
	var mErr *MuseError
	if stderrors.As(err, &mErr) {
		return mErr
	}
	return NewInternal(err)
}
