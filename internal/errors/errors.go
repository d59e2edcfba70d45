// Package errors provides the service error taxonomy shared by the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in responses and logs.
type ErrorCode string

const (
	CodeConfiguration        ErrorCode = "CONFIGURATION_ERROR"
	CodeInvalidUsername      ErrorCode = "INVALID_USERNAME"
	CodeInvalidCredentials   ErrorCode = "INVALID_CREDENTIALS"
	CodeSessionExpired       ErrorCode = "SESSION_EXPIRED"
	CodeUnauthorized         ErrorCode = "UNAUTHORIZED"
	CodeFetch                ErrorCode = "FETCH_ERROR"
	CodeWrite                ErrorCode = "WRITE_ERROR"
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
)

// Messages shown to users for the login failures. Username and password
// failures share one message so the response does not reveal which check failed.
const (
	MessageNotConfigured      = "Login is not configured."
	MessageInvalidCredentials = "Invalid credentials."
	MessageSessionExpired     = "Session expired. Please sign in again."
)

// ServiceError is an error with an HTTP status and a stable code.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError with the same code, so copies made by
// WithDetails still match their sentinel.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e with key set in its details.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Configuration reports operator-fixable misconfiguration.
func Configuration(err error) *ServiceError {
	return newError(CodeConfiguration, http.StatusInternalServerError, MessageNotConfigured, err)
}

// InvalidUsername reports a username that does not match the configured account.
func InvalidUsername() *ServiceError {
	return newError(CodeInvalidUsername, http.StatusUnauthorized, MessageInvalidCredentials, nil)
}

// InvalidCredentials reports a rejected sign-in at the identity service.
func InvalidCredentials(err error) *ServiceError {
	return newError(CodeInvalidCredentials, http.StatusUnauthorized, MessageInvalidCredentials, err)
}

// SessionExpired reports a missing, expired or revoked session.
func SessionExpired(err error) *ServiceError {
	return newError(CodeSessionExpired, http.StatusUnauthorized, MessageSessionExpired, err)
}

// Unauthorized reports a malformed or missing credential.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Fetch reports a failed read from the backing store. The message is passed
// through to the user-visible status line.
func Fetch(err error) *ServiceError {
	return newError(CodeFetch, http.StatusBadGateway, messageOf(err, "Failed to load materials."), err)
}

// Write reports a failed write to the backing store.
func Write(err error) *ServiceError {
	return newError(CodeWrite, http.StatusBadGateway, messageOf(err, "Failed to save changes."), err)
}

// Validation reports bad user input.
func Validation(message string) *ServiceError {
	return newError(CodeValidation, http.StatusBadRequest, message, nil)
}

// ConfirmationRequired reports a destructive action issued without confirmation.
func ConfirmationRequired(message string) *ServiceError {
	return newError(CodeConfirmationRequired, http.StatusConflict, message, nil)
}

// NotFound reports a missing resource.
func NotFound(resource string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil)
}

// RateLimitExceeded reports a throttled client.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "Too many requests", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a ServiceError from err's chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries a ServiceError with the given code.
func Is(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

func messageOf(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	type messager interface{ UserMessage() string }
	var m messager
	if stderrors.As(err, &m) {
		if msg := m.UserMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}
