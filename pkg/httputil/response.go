package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
	"github.com/riteshshukladev/wrapper/pkg/logger"
	"github.com/riteshshukladev/wrapper/pkg/validator"
)

// ErrorBody is the envelope every failed response is written in.
type ErrorBody struct {
	Error *ErrorResponse `json:"error"`
}

// ErrorResponse describes a failure. Code is the error kind's wire code.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// MessageResponse is the body of operations that only report success.
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its kind and writes the error envelope. Internal
// errors are logged and reported with a generic message only.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	resp := &ErrorResponse{RequestID: logger.CorrelationIDFromContext(r.Context())}
	kind := apperrors.KindOf(err)

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr) && appErr.Kind != apperrors.KindInternal:
		resp.Code = appErr.Code
		resp.Message = appErr.Message
	case kind == apperrors.KindInternal:
		resp.Code = kind.Code()
		resp.Message = "an internal error occurred"
	default:
		// Bare sentinel from a lower layer.
		resp.Code = kind.Code()
		resp.Message = http.StatusText(kind.Status())
	}

	if kind == apperrors.KindInternal {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, kind.Status(), ErrorBody{Error: resp})
}

// WriteValidationError writes a 400 with field-level messages when err comes
// from the validator package, or the decode failure otherwise.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	resp := &ErrorResponse{
		Code:      apperrors.KindInvalidInput.Code(),
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		resp.Code = "VALIDATION_ERROR"
		resp.Message = "request validation failed"
		resp.Fields = valErr.Fields()
	} else {
		resp.Message = err.Error()
	}

	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: resp})
}
