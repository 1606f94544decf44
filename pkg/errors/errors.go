package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned by repositories and token stores.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternal      = errors.New("internal error")
)

// Kind classifies an application failure. Every kind has a stable wire code
// and an HTTP status, so callers on both sides of the API can switch on it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindDuplicateIdentity
	KindInvalidCredentials
	KindMissingToken
	KindInvalidRefreshToken
	KindExpired
	KindUnauthorized
	KindUserNotFound
	KindNotFound
)

var kindCodes = map[Kind]string{
	KindInternal:            "INTERNAL_ERROR",
	KindInvalidInput:        "INVALID_INPUT",
	KindDuplicateIdentity:   "DUPLICATE_IDENTITY",
	KindInvalidCredentials:  "INVALID_CREDENTIALS",
	KindMissingToken:        "MISSING_TOKEN",
	KindInvalidRefreshToken: "INVALID_REFRESH_TOKEN",
	KindExpired:             "TOKEN_EXPIRED",
	KindUnauthorized:        "UNAUTHORIZED",
	KindUserNotFound:        "USER_NOT_FOUND",
	KindNotFound:            "NOT_FOUND",
}

// Code returns the wire code for the kind.
func (k Kind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[KindInternal]
}

func (k Kind) String() string {
	return k.Code()
}

// Status returns the HTTP status code the kind is reported with.
func (k Kind) Status() int {
	switch k {
	case KindInvalidInput, KindDuplicateIdentity, KindInvalidCredentials, KindMissingToken:
		return http.StatusBadRequest
	case KindInvalidRefreshToken, KindExpired, KindUnauthorized:
		return http.StatusUnauthorized
	case KindUserNotFound, KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ParseKind maps a wire code back to its kind. Unknown codes map to KindInternal.
func ParseKind(code string) Kind {
	for k, c := range kindCodes {
		if c == code {
			return k
		}
	}
	if code == "VALIDATION_ERROR" {
		return KindInvalidInput
	}
	return KindInternal
}

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError of the given kind.
func New(kind Kind, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    kind.Code(),
		Message: message,
		Status:  kind.Status(),
		Err:     err,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return New(KindInvalidInput, message, ErrInvalidInput)
}

// DuplicateIdentity creates a 400 error for an identity that is already registered.
func DuplicateIdentity(message string) *AppError {
	return New(KindDuplicateIdentity, message, ErrAlreadyExists)
}

// InvalidCredentials creates a 400 error. The message must not reveal which
// credential was wrong.
func InvalidCredentials() *AppError {
	return New(KindInvalidCredentials, "invalid email or password", ErrUnauthorized)
}

// MissingToken creates a 400 error for a request that carries no token.
func MissingToken() *AppError {
	return New(KindMissingToken, "refresh token is required", ErrInvalidInput)
}

// InvalidRefreshToken creates a 401 error. Bad signature, expiry, and absence
// from the token store all collapse into this one error.
func InvalidRefreshToken() *AppError {
	return New(KindInvalidRefreshToken, "invalid refresh token", ErrUnauthorized)
}

// Expired creates a 401 error for an expired access token.
func Expired() *AppError {
	return New(KindExpired, "token has expired", ErrUnauthorized)
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return New(KindUnauthorized, message, ErrUnauthorized)
}

// UserNotFound creates a 404 error.
func UserNotFound(id string) *AppError {
	return New(KindUserNotFound, fmt.Sprintf("user with id %s not found", id), ErrNotFound)
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s with id %s not found", resource, id), ErrNotFound)
}

// Internal creates a 500 error. The wrapped error is never shown to callers.
func Internal(err error) *AppError {
	return New(KindInternal, "an internal error occurred", err)
}

// KindOf returns the kind carried by err, falling back to sentinel matching.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindDuplicateIdentity
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return KindOf(err).Status()
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
