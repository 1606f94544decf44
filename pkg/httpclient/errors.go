package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/riteshshukladev/wrapper/pkg/errors"
)

// errorEnvelope mirrors httputil.ErrorBody.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// returns an AppError of the kind named by the server's error code. Bodies
// that are not the standard envelope map to a kind derived from the status.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Internal(fmt.Errorf("read error response (status %d): %w", resp.StatusCode, err))
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Code != "" {
		kind := apperrors.ParseKind(env.Error.Code)
		return apperrors.New(kind, env.Error.Message, fmt.Errorf("server returned %d", resp.StatusCode))
	}

	kind := kindForStatus(resp.StatusCode)
	return apperrors.New(kind, http.StatusText(resp.StatusCode), fmt.Errorf("server returned %d", resp.StatusCode))
}

func kindForStatus(status int) apperrors.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return apperrors.KindUnauthorized
	case status == http.StatusNotFound:
		return apperrors.KindNotFound
	case status >= 400 && status < 500:
		return apperrors.KindInvalidInput
	default:
		return apperrors.KindInternal
	}
}
