package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"bookforge-gateway/internal/errs"
)

const (
	// maxErrorBodyBytes bounds how much of a failed response is read.
	maxErrorBodyBytes = 64 * 1024
	// excerptLimit bounds the raw body quoted in opaque errors.
	excerptLimit = 200
)

// ReadErrorBody drains at most maxErrorBodyBytes of a failed response.
func ReadErrorBody(resp *http.Response) []byte {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil && len(body) == 0 {
		return nil
	}
	return body
}

// APIError is the structured error body most backends return:
// {"error": {"message": ..., "type": ..., "status": ...}}.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

// ParseAPIError extracts the structured error of a failed response body.
func ParseAPIError(body []byte) (APIError, bool) {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return APIError{}, false
	}

	var apiErr APIError
	if err := json.Unmarshal(envelope.Error, &apiErr); err == nil && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr, true
	}

	var flat string
	if err := json.Unmarshal(envelope.Error, &flat); err == nil && strings.TrimSpace(flat) != "" {
		return APIError{Message: flat}, true
	}
	return APIError{}, false
}

// ClassifyHTTPError turns a non-2xx response into a classified error:
// rejected credentials become upstream_auth, parseable bodies
// upstream_protocol, anything else upstream_opaque with a bounded excerpt.
func ClassifyHTTPError(name string, status int, body []byte) *errs.Error {
	apiErr, ok := ParseAPIError(body)
	if !ok {
		e := errs.Newf(errs.KindUpstreamOpaque, "%s returned status %d: %s", name, status, Excerpt(body))
		e.Status = status
		return e
	}

	kind := errs.KindUpstreamProtocol
	if isAuthFailure(status, apiErr) {
		kind = errs.KindUpstreamAuth
	}
	e := errs.New(kind, apiErr.Message)
	e.Status = status
	return e
}

func isAuthFailure(status int, apiErr APIError) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	switch strings.ToUpper(apiErr.Status) {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return true
	}
	return apiErr.Type == "authentication_error" || apiErr.Type == "permission_error"
}

// Excerpt returns the first excerptLimit characters of body, whitespace
// collapsed, without splitting a UTF-8 sequence.
func Excerpt(body []byte) string {
	text := strings.Join(strings.Fields(string(bytes.TrimSpace(body))), " ")
	if text == "" {
		return "<empty body>"
	}
	if utf8.RuneCountInString(text) <= excerptLimit {
		return text
	}
	runes := []rune(text)
	return fmt.Sprintf("%s... (truncated)", string(runes[:excerptLimit]))
}
