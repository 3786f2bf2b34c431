package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/u4s/turnover-cli/internal/core"
	"github.com/u4s/turnover-cli/internal/dashboard"
)

// MCP Protocol types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPInitializeResult struct {
	ProtocolVersion string        `json:"protocolVersion"`
	ServerInfo      MCPServerInfo `json:"serverInfo"`
	Capabilities    any           `json:"capabilities"`
}

// RangeParams are the parameters of get_metrics and get_services.
type RangeParams struct {
	DateFrom  string `json:"date_from"`
	DateTo    string `json:"date_to"`
	Preset    string `json:"preset"`
	DateField string `json:"date_field"`
}

// MonthlyParams are the parameters of get_monthly.
type MonthlyParams struct {
	Metric      string `json:"metric"`
	ServiceType string `json:"service_type"`
	Range       string `json:"range"`
	DateField   string `json:"date_field"`
}

// mcpServer answers JSON-RPC requests over line-delimited stdio. Tool calls
// run one at a time against a single dashboard.
type mcpServer struct {
	env    *env
	logger *slog.Logger

	mu  sync.Mutex
	out io.Writer
}

func newMCPServer(e *env, out io.Writer) *mcpServer {
	return &mcpServer{
		env:    e,
		logger: e.logger.With("component", "mcp"),
		out:    out,
	}
}

// serve reads requests from r until EOF or ctx is done.
func (s *mcpServer) serve(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	scanner.Buffer(make([]byte, 0, 64*1024), maxCapacity)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			// Without an ID there is nothing to answer.
			s.logger.Warn("parse error", "error", err)
			continue
		}
		s.handle(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *mcpServer) handle(ctx context.Context, req *MCPRequest) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		return
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		// Notifications (no ID) never get a response.
		if req.ID != nil {
			s.sendError(req.ID, -32601, "Method not found", req.Method)
		}
	}
}

func (s *mcpServer) handleInitialize(req *MCPRequest) {
	s.sendResponse(req.ID, MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo: MCPServerInfo{
			Name:    "turnover-cli",
			Version: core.Version,
		},
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
	})
}

func rangeSchema() map[string]any {
	return map[string]any{
		"date_from": map[string]any{
			"type":        "string",
			"description": "Start date, YYYY-MM-DD",
		},
		"date_to": map[string]any{
			"type":        "string",
			"description": "End date, YYYY-MM-DD",
		},
		"preset": map[string]any{
			"type":        "string",
			"description": "Preset range instead of explicit dates",
			"enum":        []string{string(dashboard.PresetCurrentMonth), string(dashboard.PresetPreviousMonth)},
		},
		"date_field": dateFieldSchema(),
	}
}

func dateFieldSchema() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Date the range filters on",
		"enum":        []string{core.DateFieldCreated, core.DateFieldCheckin},
	}
}

func metricKeys() []string {
	keys := make([]string, 0, len(core.Metrics))
	for _, m := range core.Metrics {
		keys = append(keys, m.Key)
	}
	return keys
}

func (s *mcpServer) handleToolsList(req *MCPRequest) {
	tools := []MCPToolInfo{
		{
			Name:        "get_metrics",
			Description: "Summary metrics (revenue, bookings, average check, shares) for a date range. Without dates the current month is used.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": rangeSchema(),
			},
		},
		{
			Name:        "get_services",
			Description: "Revenue by service type with shares and the total for a date range. Without dates the current month is used.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": rangeSchema(),
			},
		},
		{
			Name:        "get_monthly",
			Description: "Month-by-month series of one summary metric or one service type. Pass exactly one of metric or service_type.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric": map[string]any{
						"type": "string",
						"enum": metricKeys(),
					},
					"service_type": map[string]any{
						"type":        "string",
						"description": "Service type as listed by get_services",
					},
					"range": map[string]any{
						"type":    "string",
						"enum":    []string{core.MonthlyRangeThisYear, core.MonthlyRangeLast12},
						"default": core.DefaultMonthlyRange,
					},
					"date_field": dateFieldSchema(),
				},
			},
		},
	}
	s.sendResponse(req.ID, map[string]any{"tools": tools})
}

func (s *mcpServer) handleToolsCall(ctx context.Context, req *MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	switch params.Name {
	case "get_metrics", "get_services":
		var args RangeParams
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.sendToolError(req.ID, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}
		s.handleRangeTool(ctx, req.ID, params.Name, args)
	case "get_monthly":
		var args MonthlyParams
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.sendToolError(req.ID, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}
		s.handleMonthly(ctx, req.ID, args)
	default:
		s.sendError(req.ID, -32602, "Unknown tool", params.Name)
	}
}

// useDateField switches to field, or back to the configured one when empty.
func (s *mcpServer) useDateField(field string) {
	if field == "" {
		field = s.env.cfg.Dashboard.DateField
	}
	s.env.app.SetDateField(field)
}

func (s *mcpServer) handleRangeTool(ctx context.Context, id any, tool string, args RangeParams) {
	app := s.env.app
	if err := requireSession(s.env); err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	s.useDateField(args.DateField)
	spec := rangeSpec{From: args.DateFrom, To: args.DateTo, Preset: dashboard.Preset(args.Preset)}
	if err := useRange(app, spec); err != nil {
		s.sendToolError(id, err.Error())
		return
	}

	var status dashboard.Status
	var err error
	if tool == "get_metrics" {
		status, err = app.FetchRevenue(ctx)
	} else {
		status, err = app.FetchServices(ctx)
	}
	if err := loadError(status, err); err != nil {
		s.sendToolError(id, err.Error())
		return
	}

	snap := app.Snapshot()
	result := map[string]any{
		"date_from":  snap.Range.From,
		"date_to":    snap.Range.To,
		"date_field": app.DateField(),
		"cached":     status == dashboard.StatusCached,
	}
	if tool == "get_metrics" {
		result["metrics"] = snap.Metrics
		result["formatted"] = s.env.render.Metrics(*snap.Metrics, "")
	} else {
		result["services"] = snap.Services
		result["formatted"] = s.env.render.Services(*snap.Services, "")
	}
	s.sendToolResult(id, result)
}

func (s *mcpServer) handleMonthly(ctx context.Context, id any, args MonthlyParams) {
	focus, err := monthlyFocus(args)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	if err := requireSession(s.env); err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	s.useDateField(args.DateField)

	status, err := s.env.app.OpenMonthly(ctx, focus)
	if err := loadError(status, err); err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	series := s.env.app.Snapshot().Monthly
	s.sendToolResult(id, map[string]any{
		"metric":       args.Metric,
		"service_type": focus.Key,
		"range":        focus.Range,
		"cached":       status == dashboard.StatusCached,
		"series":       series,
		"formatted":    s.env.render.Monthly(*series, args.Metric),
	})
}

func monthlyFocus(args MonthlyParams) (dashboard.MonthlyFocus, error) {
	metric := strings.TrimSpace(args.Metric)
	service := strings.TrimSpace(args.ServiceType)
	rng := args.Range
	if rng == "" {
		rng = core.DefaultMonthlyRange
	}
	switch {
	case metric != "" && service != "":
		return dashboard.MonthlyFocus{}, errors.New("pass either metric or service_type, not both")
	case metric != "":
		return dashboard.MonthlyFocus{Context: dashboard.ContextMetric, Key: metric, Range: rng}, nil
	case service != "":
		return dashboard.MonthlyFocus{Context: dashboard.ContextService, Key: service, Range: rng}, nil
	}
	return dashboard.MonthlyFocus{}, errors.New("metric or service_type is required")
}

func (s *mcpServer) write(resp MCPResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, string(data))
}

func (s *mcpServer) sendResponse(id any, result any) {
	s.write(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

func (s *mcpServer) sendError(id any, code int, message, data string) {
	s.write(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

func (s *mcpServer) sendToolResult(id any, result any) {
	s.sendResponse(id, map[string]any{
		"content": []map[string]any{
			{
				"type": "text",
				"text": mustMarshal(result),
			},
		},
	})
}

func (s *mcpServer) sendToolError(id any, message string) {
	s.sendResponse(id, map[string]any{
		"content": []map[string]any{
			{
				"type": "text",
				"text": message,
			},
		},
		"isError": true,
	})
}

func mustMarshal(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
