package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Common errors exposed to the rest of the application. Authentication
// failures deliberately stay a generic boolean at the driver boundary; only
// the policy gates below are distinguishable, because the caller needs to
// show a specific remedial message.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHENTICATED",
		Message:    "You need to sign in or sign up before continuing",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid username or password",
		StatusCode: http.StatusUnauthorized,
	}

	ErrUnconfirmed = &AppError{
		Code:       "ACCOUNT_UNCONFIRMED",
		Message:    "You have to confirm your account before continuing",
		StatusCode: http.StatusUnauthorized,
	}

	ErrAlreadyConfirmed = &AppError{
		Code:       "ACCOUNT_ALREADY_CONFIRMED",
		Message:    "Account was already confirmed, please try signing in",
		StatusCode: http.StatusBadRequest,
	}

	ErrLocked = &AppError{
		Code:       "ACCOUNT_LOCKED",
		Message:    "Your account is locked",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidToken = &AppError{
		Code:       "INVALID_TOKEN",
		Message:    "Invalid authentication token",
		StatusCode: http.StatusUnauthorized,
	}

	ErrPasswordRequired = &AppError{
		Code:       "PASSWORD_REQUIRED",
		Message:    "Password is required",
		StatusCode: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// ExpiredTokenError reports a lifecycle token used outside its validity
// window. Kind names the token class: "confirmation", "reset_password",
// "unlock".
type ExpiredTokenError struct {
	Kind string
}

func (e *ExpiredTokenError) Error() string {
	return fmt.Sprintf("%s token has expired, please request a new one", e.Kind)
}

// NewExpiredToken builds an ExpiredTokenError for the given token class.
func NewExpiredToken(kind string) *ExpiredTokenError {
	return &ExpiredTokenError{Kind: kind}
}

// IsExpiredToken reports whether err is an ExpiredTokenError, returning it.
func IsExpiredToken(err error) (*ExpiredTokenError, bool) {
	var expired *ExpiredTokenError
	if errors.As(err, &expired) {
		return expired, true
	}
	return nil, false
}

// AccessDeniedError is raised when a user isn't allowed to perform an action
// on a resource. It carries both so callers can render a specific message.
type AccessDeniedError struct {
	Action   string
	Resource string
}

func (e *AccessDeniedError) Error() string {
	if e.Action == "" && e.Resource == "" {
		return "You are not authorized to access this page"
	}
	return fmt.Sprintf("You are not authorized to %s %s", e.Action, e.Resource)
}

// NewAccessDenied builds an AccessDeniedError for the attempted action/resource.
func NewAccessDenied(action, resource string) *AccessDeniedError {
	return &AccessDeniedError{Action: action, Resource: resource}
}

// ValidationError reports bad input data surfaced to the caller for form
// redisplay, e.g. uniqueness violations or password format failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for the named field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if expired, ok := IsExpiredToken(err); ok {
		return &AppError{
			Code:       "TOKEN_EXPIRED",
			Message:    expired.Error(),
			StatusCode: http.StatusUnauthorized,
			Internal:   err,
		}
	}

	var denied *AccessDeniedError
	if errors.As(err, &denied) {
		return &AppError{
			Code:       "ACCESS_DENIED",
			Message:    denied.Error(),
			StatusCode: http.StatusForbidden,
			Internal:   err,
		}
	}

	var invalid *ValidationError
	if errors.As(err, &invalid) {
		return &AppError{
			Code:       "VALIDATION_FAILED",
			Message:    invalid.Error(),
			StatusCode: http.StatusBadRequest,
			Internal:   err,
		}
	}

	return ErrInternalServer.WithInternal(err)
}
