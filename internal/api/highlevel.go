package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/u4s/turnover-cli/internal/core"
)

// TurnoverAPI provides a typed convenience layer over the turnover REST API.
// Fetch methods return raw bodies so callers can cache them as is.
type TurnoverAPI struct {
	transport Transport
	requester *DateFieldRequester
	logger    *slog.Logger
}

// NewTurnoverAPI creates a high-level client filtering on dateField.
func NewTurnoverAPI(transport Transport, dateField string, logger *slog.Logger) *TurnoverAPI {
	if logger == nil {
		logger = core.DiscardLogger()
	}
	return &TurnoverAPI{
		transport: transport,
		requester: NewDateFieldRequester(transport, dateField, nil, logger),
		logger:    logger,
	}
}

// Requester returns the date field fallback requester.
func (a *TurnoverAPI) Requester() *DateFieldRequester {
	return a.requester
}

// DateField returns the logical date field in use.
func (a *TurnoverAPI) DateField() string {
	return a.requester.Field()
}

// FetchMetrics returns the raw /api/metrics body for [from, to].
func (a *TurnoverAPI) FetchMetrics(ctx context.Context, from, to string, header http.Header) ([]byte, error) {
	return a.requester.Request(ctx, core.PathMetrics, rangeParams(from, to), true, header)
}

// FetchServices returns the raw /api/services body for [from, to].
// The services endpoint does not take a date field.
func (a *TurnoverAPI) FetchServices(ctx context.Context, from, to string, header http.Header) ([]byte, error) {
	return a.requester.Request(ctx, core.PathServices, rangeParams(from, to), false, header)
}

// FetchMonthlyMetric returns the raw monthly series of metric over rng.
func (a *TurnoverAPI) FetchMonthlyMetric(ctx context.Context, metric, rng string, header http.Header) ([]byte, error) {
	params := url.Values{}
	params.Set("metric", metric)
	params.Set("range", rng)
	return a.requester.Request(ctx, core.PathMetricsMonthly, params, true, header)
}

// FetchMonthlyService returns the raw monthly series of serviceType over rng.
func (a *TurnoverAPI) FetchMonthlyService(ctx context.Context, serviceType, rng string, header http.Header) ([]byte, error) {
	params := url.Values{}
	params.Set("service_type", serviceType)
	params.Set("range", rng)
	return a.requester.Request(ctx, core.PathServiceMonthly, params, false, header)
}

// Login exchanges password for an access token.
func (a *TurnoverAPI) Login(ctx context.Context, password string) (LoginResponse, error) {
	raw, err := a.transport.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   core.PathLogin,
		Body:   LoginRequest{Password: password},
	})
	if err != nil {
		return LoginResponse{}, err
	}
	resp, err := decode[LoginResponse](raw, "login response")
	if err != nil {
		return LoginResponse{}, err
	}
	resp.AccessToken = strings.TrimSpace(resp.AccessToken)
	a.logger.Debug("login succeeded", "component", "auth", "expires_in", resp.ExpiresIn.Float())
	return resp, nil
}

func rangeParams(from, to string) url.Values {
	params := url.Values{}
	params.Set("date_from", from)
	params.Set("date_to", to)
	return params
}
