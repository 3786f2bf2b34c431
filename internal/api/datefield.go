package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/u4s/turnover-cli/internal/core"
)

// DateFieldRequester issues GET requests that carry a date_field parameter.
// When the server rejects a spelling with a 422 it tries the next alias and
// remembers the one that worked for the rest of the process.
type DateFieldRequester struct {
	transport Transport
	aliases   map[string][]string
	logger    *slog.Logger

	mu        sync.Mutex
	field     string
	overrides map[string]string
}

// NewDateFieldRequester creates a requester filtering on field.
// A nil aliases map uses core.DateFieldAliases.
func NewDateFieldRequester(transport Transport, field string, aliases map[string][]string, logger *slog.Logger) *DateFieldRequester {
	if aliases == nil {
		aliases = core.DateFieldAliases
	}
	if logger == nil {
		logger = core.DiscardLogger()
	}
	return &DateFieldRequester{
		transport: transport,
		aliases:   aliases,
		logger:    logger.With("component", "api"),
		field:     strings.TrimSpace(field),
		overrides: make(map[string]string),
	}
}

// Field returns the logical date field requests filter on.
func (r *DateFieldRequester) Field() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.field
}

// SetField switches the logical date field. Remembered overrides are kept
// per field.
func (r *DateFieldRequester) SetField(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.field = strings.TrimSpace(field)
}

// Override returns the remembered alias for field, if any.
func (r *DateFieldRequester) Override(field string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.overrides[field]
	return v, ok
}

// Request performs a GET on path. With includeDateField the date_field
// parameter is added and the alias fallback applies.
func (r *DateFieldRequester) Request(ctx context.Context, path string, params url.Values, includeDateField bool, header http.Header) ([]byte, error) {
	if !includeDateField {
		return r.transport.Do(ctx, Request{
			Method: http.MethodGet,
			Path:   path,
			Query:  cleanParams(params),
			Header: header,
		})
	}

	field := r.Field()
	candidates := r.orderedCandidates(field)
	var lastErr error

	for i, candidate := range candidates {
		query := cleanParams(params)
		query.Set(core.DateFieldParam, candidate)

		body, err := r.transport.Do(ctx, Request{
			Method: http.MethodGet,
			Path:   path,
			Query:  query,
			Header: header,
		})
		if err == nil {
			r.remember(field, candidate)
			return body, nil
		}
		if IsNetworkError(err) || IsCanceled(err) || IsAuthError(err) {
			return nil, err
		}
		if i < len(candidates)-1 && IsDateFieldValidation(err) {
			lastErr = err
			r.logger.Warn("server rejected date_field, trying alternative",
				"path", path,
				"date_field", candidate,
				"error", err,
			)
			continue
		}
		return nil, err
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrRequestFailed
}

// Candidates returns the date_field spellings tried for field, in order.
func (r *DateFieldRequester) Candidates(field string) []string {
	return r.orderedCandidates(field)
}

func (r *DateFieldRequester) orderedCandidates(field string) []string {
	candidates := r.defaultCandidates(field)
	override, ok := r.Override(field)
	if !ok || !slices.Contains(candidates, override) {
		return candidates
	}
	ordered := []string{override}
	for _, c := range candidates {
		if c != override {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

func (r *DateFieldRequester) defaultCandidates(field string) []string {
	values := append([]string{field}, r.aliases[field]...)
	var unique []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(unique, v) {
			continue
		}
		unique = append(unique, v)
	}
	if len(unique) == 0 && field != "" {
		unique = []string{field}
	}
	return unique
}

func (r *DateFieldRequester) remember(field, candidate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if candidate == "" || candidate == field {
		delete(r.overrides, field)
		return
	}
	r.overrides[field] = candidate
}

// cleanParams copies params, dropping empty values.
func cleanParams(params url.Values) url.Values {
	out := url.Values{}
	for k, values := range params {
		for _, v := range values {
			if v != "" {
				out.Add(k, v)
			}
		}
	}
	return out
}
