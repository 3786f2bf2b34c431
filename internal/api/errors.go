package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/u4s/turnover-cli/internal/core"
)

// ErrRequestFailed is returned when every date field candidate was tried
// without a recorded error.
var ErrRequestFailed = errors.New("не удалось выполнить запрос")

// HTTPError is returned when the metrics API answers with a non-2xx status.
type HTTPError struct {
	Status  int
	Detail  any
	Message string
	URL     string
}

func (e *HTTPError) Error() string {
	status := fmt.Sprintf("HTTP %d", e.Status)
	if e.Message == "" || e.Message == status {
		return status
	}
	return fmt.Sprintf("%s (%s)", e.Message, status)
}

// NetworkError wraps a failure below HTTP: DNS, refused connection, reset.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// newHTTPError parses body according to the API error payload convention.
func newHTTPError(status int, url string, body []byte) *HTTPError {
	detail, message := readErrorBody(status, body)
	return &HTTPError{Status: status, Detail: detail, Message: message, URL: url}
}

func readErrorBody(status int, body []byte) (any, string) {
	fallback := fmt.Sprintf("HTTP %d", status)
	text := string(body)
	if strings.TrimSpace(text) == "" {
		return nil, fallback
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return text, text
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fallback
	}
	detail := obj["detail"]

	switch d := detail.(type) {
	case string:
		if s := strings.TrimSpace(d); s != "" {
			return d, d
		}
	case []any:
		var messages []string
		for _, item := range d {
			m, _ := item.(map[string]any)
			if msg := trimmedString(m["msg"]); msg != "" {
				messages = append(messages, msg)
				continue
			}
			if det := trimmedString(m["detail"]); det != "" {
				messages = append(messages, det)
			}
		}
		if len(messages) > 0 {
			return detail, strings.Join(messages, "; ")
		}
	case map[string]any:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var values []string
		for _, k := range keys {
			if v := trimmedString(d[k]); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			return detail, strings.Join(values, "; ")
		}
	}
	return detail, fallback
}

func trimmedString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsAuthError reports whether err is a 401 or 403 response.
func IsAuthError(err error) bool {
	status := StatusOf(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// IsDateFieldValidation reports whether err is a 422 whose detail refers to
// the date_field query parameter.
func IsDateFieldValidation(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnprocessableEntity {
		return false
	}
	mentions := func(s string) bool {
		return strings.Contains(strings.ToLower(s), core.DateFieldParam)
	}

	switch d := httpErr.Detail.(type) {
	case string:
		return mentions(d)
	case []any:
		for _, item := range d {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if loc, ok := m["loc"].([]any); ok {
				for _, part := range loc {
					if s, ok := part.(string); ok && s == core.DateFieldParam {
						return true
					}
				}
			}
			if msg, ok := m["msg"].(string); ok && mentions(msg) {
				return true
			}
		}
	case map[string]any:
		if _, ok := d[core.DateFieldParam]; ok {
			return true
		}
		for _, v := range d {
			if s, ok := v.(string); ok && mentions(s) {
				return true
			}
		}
	}
	return false
}

// IsNetworkError reports whether err failed below HTTP.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsCanceled reports whether err comes from a canceled or superseded request.
func IsCanceled(err error) bool {
	if err == nil || IsNetworkError(err) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
