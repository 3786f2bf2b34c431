package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/u4s/turnover-cli/internal/core"
)

// acceptOnly answers 200 for the given date_field spelling and a 422
// referencing date_field for every other one.
func acceptOnly(spelling string) HandlerFunc {
	return func(_ context.Context, req Request) ([]byte, error) {
		if req.Query.Get(core.DateFieldParam) != spelling {
			return nil, StatusError(422, `{"detail":[{"msg":"invalid","loc":["query","date_field"]}]}`)
		}
		return []byte(`{"revenue":1}`), nil
	}
}

func attempted(mock *MockTransport) []string {
	var out []string
	for _, r := range mock.Requests() {
		out = append(out, r.Query.Get(core.DateFieldParam))
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRequestFallsBackAndRemembers(t *testing.T) {
	mock := NewMockTransport(acceptOnly("created_at"))
	r := NewDateFieldRequester(mock, core.DateFieldCreated, nil, nil)
	ctx := context.Background()

	if _, err := r.Request(ctx, core.PathMetrics, nil, true, nil); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if got := attempted(mock); !equal(got, []string{"created", "created_at"}) {
		t.Fatalf("first attempts = %v", got)
	}
	if o, ok := r.Override(core.DateFieldCreated); !ok || o != "created_at" {
		t.Fatalf("override = %q, %v", o, ok)
	}

	for i := 0; i < 2; i++ {
		mock.Reset()
		if _, err := r.Request(ctx, core.PathMetrics, nil, true, nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if got := attempted(mock); !equal(got, []string{"created_at"}) {
			t.Errorf("request %d attempts = %v, want only created_at", i, got)
		}
	}
}

func TestRequestAuthErrorStopsFallback(t *testing.T) {
	mock := NewMockTransport(func(context.Context, Request) ([]byte, error) {
		return nil, StatusError(401, `{"detail":"expired"}`)
	})
	r := NewDateFieldRequester(mock, core.DateFieldCreated, nil, nil)

	_, err := r.Request(context.Background(), core.PathMetrics, nil, true, nil)
	if !IsAuthError(err) {
		t.Fatalf("err = %v, want auth error", err)
	}
	if mock.RequestsMade() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestsMade())
	}
}

func TestRequestNetworkErrorStopsFallback(t *testing.T) {
	mock := NewMockTransport(func(context.Context, Request) ([]byte, error) {
		return nil, &NetworkError{URL: "x", Err: errors.New("connection refused")}
	})
	r := NewDateFieldRequester(mock, core.DateFieldCheckin, nil, nil)

	_, err := r.Request(context.Background(), core.PathMetrics, nil, true, nil)
	if !IsNetworkError(err) {
		t.Fatalf("err = %v, want network error", err)
	}
	if mock.RequestsMade() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestsMade())
	}
}

func TestRequestExhaustedReturnsLastError(t *testing.T) {
	mock := NewMockTransport(acceptOnly("nothing"))
	r := NewDateFieldRequester(mock, core.DateFieldCreated, nil, nil)

	_, err := r.Request(context.Background(), core.PathMetrics, nil, true, nil)
	if !IsDateFieldValidation(err) {
		t.Fatalf("err = %v, want date field validation", err)
	}
	if mock.RequestsMade() != 2 {
		t.Errorf("requests = %d, want 2", mock.RequestsMade())
	}
}

func TestRequestOtherErrorIsNotRetried(t *testing.T) {
	mock := NewMockTransport(func(context.Context, Request) ([]byte, error) {
		return nil, StatusError(500, "boom")
	})
	r := NewDateFieldRequester(mock, core.DateFieldCreated, nil, nil)

	_, err := r.Request(context.Background(), core.PathMetrics, nil, true, nil)
	if StatusOf(err) != 500 {
		t.Fatalf("err = %v, want HTTP 500", err)
	}
	if mock.RequestsMade() != 1 {
		t.Errorf("requests = %d, want 1", mock.RequestsMade())
	}
}

func TestRememberLogicalNameClearsOverride(t *testing.T) {
	accept := "created_at"
	mock := NewMockTransport(func(ctx context.Context, req Request) ([]byte, error) {
		return acceptOnly(accept)(ctx, req)
	})
	r := NewDateFieldRequester(mock, core.DateFieldCreated, nil, nil)
	ctx := context.Background()

	if _, err := r.Request(ctx, core.PathMetrics, nil, true, nil); err != nil {
		t.Fatal(err)
	}
	accept = "created"
	if _, err := r.Request(ctx, core.PathMetrics, nil, true, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Override(core.DateFieldCreated); ok {
		t.Error("override should be cleared once the logical name works")
	}
}

func TestRequestWithoutDateField(t *testing.T) {
	mock := NewMockTransport(func(_ context.Context, req Request) ([]byte, error) {
		if req.Query.Has(core.DateFieldParam) {
			t.Errorf("unexpected date_field in %v", req.Query)
		}
		return []byte(`{}`), nil
	})
	r := NewDateFieldRequester(mock, core.DateFieldCreated, nil, nil)
	params := url.Values{"date_from": {"2024-03-01"}, "date_to": {""}}
	header := http.Header{"Authorization": {"Bearer t"}}

	if _, err := r.Request(context.Background(), core.PathServices, params, false, header); err != nil {
		t.Fatal(err)
	}
	req := mock.Requests()[0]
	if req.Query.Has("date_to") {
		t.Error("empty params should be dropped")
	}
	if req.Header.Get("Authorization") != "Bearer t" {
		t.Errorf("header = %v", req.Header)
	}
}

func TestCandidatesDeduplicated(t *testing.T) {
	aliases := map[string][]string{"created": {" created ", "created_at", "created_at", ""}}
	r := NewDateFieldRequester(nil, "created", aliases, nil)
	if got := r.Candidates("created"); !equal(got, []string{"created", "created_at"}) {
		t.Errorf("Candidates() = %v", got)
	}
	if got := r.Candidates("unknown"); !equal(got, []string{"unknown"}) {
		t.Errorf("Candidates(unknown) = %v", got)
	}
}
