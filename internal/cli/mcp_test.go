package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/auth"
	"github.com/u4s/turnover-cli/internal/config"
	"github.com/u4s/turnover-cli/internal/core"
)

const storedToken = `{"version":2,"type":"token","token":"tok","expiresAt":0}`

func testHandler(_ context.Context, req api.Request) ([]byte, error) {
	switch req.Path {
	case core.PathMetrics:
		return []byte(`{"revenue":1000,"avg_check":500,"bookings_count":2}`), nil
	case core.PathServices:
		return []byte(`{"total_amount":500,"items":[{"service_type":"Баня","total_amount":500,"share":1}]}`), nil
	case core.PathMetricsMonthly, core.PathServiceMonthly:
		return api.JSONBody(map[string]any{
			"range":     req.Query.Get("range"),
			"points":    []map[string]any{{"month": "2024-01-01", "value": 100}},
			"aggregate": 100,
		}), nil
	}
	return nil, api.StatusError(404, "")
}

func newTestEnv(t *testing.T, handler api.HandlerFunc, loggedIn bool) (*env, *api.MockTransport) {
	t.Helper()
	if handler == nil {
		handler = testHandler
	}
	mock := api.NewMockTransport(handler)
	store := auth.NewMemoryStore()
	if loggedIn {
		require.NoError(t, store.Save([]byte(storedToken)))
	}
	e := newEnv(config.DefaultConfig(), mock, store, nil, core.DiscardLogger(), nil)
	t.Cleanup(e.Close)
	return e, mock
}

// runMCP feeds lines to a server and returns the decoded responses.
func runMCP(t *testing.T, e *env, lines ...string) []MCPResponse {
	t.Helper()
	var out bytes.Buffer
	srv := newMCPServer(e, &out)
	require.NoError(t, srv.serve(context.Background(), strings.NewReader(strings.Join(lines, "\n"))))

	var resps []MCPResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp MCPResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp), scanner.Text())
		resps = append(resps, resp)
	}
	return resps
}

// toolText returns the text content of a tool result and its error flag.
func toolText(t *testing.T, resp MCPResponse) (string, bool) {
	t.Helper()
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok, "result is %T", resp.Result)
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	text := content[0].(map[string]any)["text"].(string)
	isErr, _ := result["isError"].(bool)
	return text, isErr
}

func call(id int, tool string, args map[string]any) string {
	data, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	return string(data)
}

func TestMCPInitializeAndList(t *testing.T) {
	e, _ := newTestEnv(t, nil, false)
	resps := runMCP(t, e,
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"unknown/notification"}`,
	)
	require.Len(t, resps, 3, "notifications and parse errors get no response")

	initResult := resps[0].Result.(map[string]any)
	assert.Equal(t, "2024-11-05", initResult["protocolVersion"])
	assert.Equal(t, "turnover-cli", initResult["serverInfo"].(map[string]any)["name"])

	tools := resps[1].Result.(map[string]any)["tools"].([]any)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"get_metrics", "get_services", "get_monthly"}, names)

	require.NotNil(t, resps[2].Error)
	assert.Equal(t, -32601, resps[2].Error.Code)
	assert.EqualValues(t, 3, resps[2].ID)
}

func TestMCPGetMetrics(t *testing.T) {
	e, mock := newTestEnv(t, nil, true)
	resps := runMCP(t, e,
		call(1, "get_metrics", map[string]any{"date_from": "2024-01-01", "date_to": "2024-01-31", "date_field": "checkin"}),
		call(2, "get_metrics", map[string]any{"date_from": "2024-01-01", "date_to": "2024-01-31", "date_field": "checkin"}),
	)
	require.Len(t, resps, 2)

	text, isErr := toolText(t, resps[0])
	require.False(t, isErr, text)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, "2024-01-01", result["date_from"])
	assert.Equal(t, "checkin", result["date_field"])
	assert.Equal(t, false, result["cached"])
	assert.EqualValues(t, 1000, result["metrics"].(map[string]any)["revenue"])

	text, _ = toolText(t, resps[1])
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, true, result["cached"])

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer tok", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "checkin", reqs[0].Query.Get(core.DateFieldParam))
}

func TestMCPGetServicesPreset(t *testing.T) {
	e, mock := newTestEnv(t, nil, true)
	resps := runMCP(t, e, call(1, "get_services", map[string]any{"preset": "previous_month"}))
	require.Len(t, resps, 1)

	text, isErr := toolText(t, resps[0])
	require.False(t, isErr, text)
	assert.Contains(t, text, "Баня")
	assert.Equal(t, 1, mock.CountPath(core.PathServices))
	assert.Zero(t, mock.CountPath(core.PathMetrics))
}

func TestMCPToolErrors(t *testing.T) {
	e, mock := newTestEnv(t, nil, true)
	resps := runMCP(t, e,
		call(1, "get_metrics", map[string]any{"date_from": "2024-02-10", "date_to": "2024-02-01"}),
		call(2, "get_monthly", map[string]any{}),
		call(3, "get_monthly", map[string]any{"metric": "revenue", "service_type": "Баня"}),
		call(4, "get_monthly", map[string]any{"metric": "nope"}),
		call(5, "no_such_tool", nil),
	)
	require.Len(t, resps, 5)
	for _, resp := range resps[:4] {
		text, isErr := toolText(t, resp)
		assert.True(t, isErr, text)
	}
	text, _ := toolText(t, resps[0])
	assert.Equal(t, "Дата 'От' не может быть позже даты 'До'", text)

	require.NotNil(t, resps[4].Error)
	assert.Equal(t, "Unknown tool", resps[4].Error.Message)
	assert.Zero(t, mock.RequestsMade())
}

func TestMCPGetMonthly(t *testing.T) {
	e, mock := newTestEnv(t, nil, true)
	resps := runMCP(t, e,
		call(1, "get_monthly", map[string]any{"service_type": "Баня", "range": core.MonthlyRangeLast12}),
		call(2, "get_monthly", map[string]any{"metric": "revenue"}),
	)
	require.Len(t, resps, 2)

	text, isErr := toolText(t, resps[0])
	require.False(t, isErr, text)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, "Баня", result["service_type"])
	assert.Equal(t, core.MonthlyRangeLast12, result["range"])

	text, isErr = toolText(t, resps[1])
	require.False(t, isErr, text)
	assert.Contains(t, text, "Выручка всего")

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, core.PathServiceMonthly, reqs[0].Path)
	assert.Equal(t, "Баня", reqs[0].Query.Get("service_type"))
	assert.Equal(t, core.PathMetricsMonthly, reqs[1].Path)
}

func TestMCPRequiresSession(t *testing.T) {
	e, mock := newTestEnv(t, nil, false)
	resps := runMCP(t, e, call(1, "get_metrics", nil))
	require.Len(t, resps, 1)

	text, isErr := toolText(t, resps[0])
	assert.True(t, isErr)
	assert.Equal(t, ErrNotLoggedIn.Error(), text)
	assert.Zero(t, mock.RequestsMade())
}

func TestMCPAuthFailure(t *testing.T) {
	e, _ := newTestEnv(t, func(context.Context, api.Request) ([]byte, error) {
		return nil, api.StatusError(401, `{"detail":"expired"}`)
	}, true)
	resps := runMCP(t, e, call(1, "get_services", nil))
	require.Len(t, resps, 1)

	text, isErr := toolText(t, resps[0])
	assert.True(t, isErr)
	assert.Equal(t, "Неверный пароль или сессия истекла.", text)
	assert.False(t, e.auth.HasValidSession())
}
