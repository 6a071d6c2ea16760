package errors

import (
	"errors"
	"net/http"
)

// Kinds of failure. Every error produced by a service wraps exactly one of them.
var (
	// ErrValidation is returned for bad or missing user input.
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized is returned for missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned when an id or CID resolves to nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique value is already taken.
	ErrConflict = errors.New("conflict")
	// ErrUpstream is returned when the content store fails.
	ErrUpstream = errors.New("upstream error")
)

// Error carries a user-facing message next to its kind and an optional internal cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the internal cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with a user-facing message.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that keeps cause for logging.
func Wrap(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Validation is a shorthand for New(ErrValidation, message).
func Validation(message string) *Error {
	return New(ErrValidation, message)
}

// Upstream wraps a content store failure.
func Upstream(cause error) *Error {
	return Wrap(ErrUpstream, "content store unavailable", cause)
}

var (
	// ErrUserExists is returned when registering a taken username.
	ErrUserExists = New(ErrConflict, "username already exists")
	// ErrInvalidCredentials does not say whether the username or the password was wrong.
	ErrInvalidCredentials = New(ErrUnauthorized, "invalid username or password")
	// ErrInvalidToken is returned for any token that fails validation.
	ErrInvalidToken = New(ErrUnauthorized, "invalid or expired token")
	// ErrUserNotFound is returned when a token's user no longer exists.
	ErrUserNotFound = New(ErrNotFound, "user not found")
	// ErrNoteNotFound is returned for unknown note ids and CIDs.
	ErrNoteNotFound = New(ErrNotFound, "note not found")
	// ErrInvalidRating is returned for ratings outside [0,5].
	ErrInvalidRating = New(ErrValidation, "rating must be between 0 and 5")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Only the user-facing
// message of an *Error is exposed; causes stay in the logs.
func MapErrorToHTTP(err error) *HTTPError {
	message := "internal server error"
	var appErr *Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch {
	case errors.Is(err, ErrValidation):
		return NewHTTPError(http.StatusBadRequest, message, "VALIDATION_ERROR")
	case errors.Is(err, ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, message, "UNAUTHORIZED")
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, message, "NOT_FOUND")
	case errors.Is(err, ErrConflict):
		return NewHTTPError(http.StatusConflict, message, "CONFLICT")
	case errors.Is(err, ErrUpstream):
		return NewHTTPError(http.StatusBadGateway, message, "UPSTREAM_ERROR")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
