package api

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
)

// HandlerFunc answers one request of a MockTransport.
type HandlerFunc func(ctx context.Context, req Request) ([]byte, error)

// MockTransport is an in-memory fake suitable for deterministic unit tests.
// Every request is recorded before the handler runs.
type MockTransport struct {
	Handler HandlerFunc

	mu         sync.Mutex
	requestLog []Request
}

// NewMockTransport creates a mock transport answering with handler.
func NewMockTransport(handler HandlerFunc) *MockTransport {
	return &MockTransport{Handler: handler}
}

// Do records req and delegates to the handler.
func (t *MockTransport) Do(ctx context.Context, req Request) ([]byte, error) {
	t.mu.Lock()
	req.Query = cloneValues(req.Query)
	t.requestLog = append(t.requestLog, req)
	handler := t.Handler
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handler == nil {
		return []byte("{}"), nil
	}
	return handler(ctx, req)
}

// Requests returns a copy of the recorded requests.
func (t *MockTransport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Request, len(t.requestLog))
	copy(out, t.requestLog)
	return out
}

// RequestsMade returns the number of requests made to this transport.
func (t *MockTransport) RequestsMade() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requestLog)
}

// CountPath returns how many requests hit path.
func (t *MockTransport) CountPath(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.requestLog {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Reset clears recorded requests.
func (t *MockTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestLog = nil
}

// JSONBody marshals v for use as a mock response.
func JSONBody(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// StatusError builds the error a real client returns for status and body.
func StatusError(status int, body string) error {
	return newHTTPError(status, "", []byte(body))
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, values := range v {
		out[k] = append([]string(nil), values...)
	}
	return out
}
