package common

import (
	"errors"
	"net/http"
)

// Kind classifies failures so callers can tell retryable from terminal errors
// without inspecting messages.
type Kind string

const (
	KindUnknown           Kind = ""
	KindInvalidLineItem   Kind = "INVALID_LINE_ITEM"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindInvalidFeeConfig  Kind = "INVALID_FEE_CONFIG"
	KindNetwork           Kind = "NETWORK_ERROR"
	KindServerRejected    Kind = "SERVER_REJECTED"
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
)

// HTTPStatus maps a kind to the status returned by this service's handlers.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidLineItem, KindInvalidInput, KindInvalidFeeConfig:
		return http.StatusBadRequest
	case KindNetwork:
		return http.StatusGatewayTimeout
	case KindServerRejected, KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Kind       Kind
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// KindError constructs an AppError whose code and status derive from kind.
func KindError(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: string(kind), Message: message, HTTPStatus: kind.HTTPStatus(), Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// KindOf returns the kind attached to the first AppError in the chain.
func KindOf(err error) Kind {
	var target *AppError
	if errors.As(err, &target) && target != nil {
		return target.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is transient. Only network failures qualify;
// write paths must still refuse to retry them.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// WriteError renders err using the canonical error shape.
func WriteError(w http.ResponseWriter, err error) {
	if err == nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = appErr.Kind.HTTPStatus()
		}
		code := appErr.Code
		if code == "" {
			code = string(appErr.Kind)
		}
		if code == "" {
			code = "INTERNAL"
		}
		JSONError(w, status, code, appErr.Error(), appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}
