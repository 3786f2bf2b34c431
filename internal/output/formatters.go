// Package output renders turnover data for the one-shot CLI commands.
package output

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/core"
	"github.com/u4s/turnover-cli/internal/format"
)

// EmptyPeriod is shown when a range has no data.
const EmptyPeriod = "Данных за выбранный период нет"

const totalLabel = "Итого"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b6d8a"))
	valueStyle  = lipgloss.NewStyle().Bold(true)
	totalStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffe3b3"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#86bada"))
)

// Renderer turns API payloads into aligned text blocks.
type Renderer struct {
	f *format.Formatter
}

// NewRenderer creates a renderer using f for values.
func NewRenderer(f *format.Formatter) *Renderer {
	if f == nil {
		f = format.New("ru")
	}
	return &Renderer{f: f}
}

// Formatter returns the value formatter.
func (r *Renderer) Formatter() *format.Formatter {
	return r.f
}

// Metrics renders the summary cards as label/value lines in catalog order.
// The metric named active, if any, is marked.
func (r *Renderer) Metrics(m api.Metrics, active string) string {
	labelWidth := 0
	for _, spec := range core.Metrics {
		labelWidth = max(labelWidth, lipgloss.Width(spec.Label))
	}

	var b strings.Builder
	if m.DateFrom != "" || m.DateTo != "" {
		b.WriteString(titleStyle.Render(fmt.Sprintf("%s – %s", orDash(m.DateFrom), orDash(m.DateTo))))
		b.WriteByte('\n')
	}
	for _, spec := range core.Metrics {
		marker := "  "
		if spec.Key == active {
			marker = activeStyle.Render("▶ ")
		}
		label := labelStyle.Width(labelWidth + 2).Render(spec.Label)
		value := valueStyle.Render(r.f.MetricValue(spec.Key, m.Value(spec.Key)))
		b.WriteString(marker + label + value + "\n")
	}
	return b.String()
}

// Services renders the services table with name, amount and share columns
// followed by the total. The row of active, if any, is marked.
func (r *Renderer) Services(s api.Services, active string) string {
	var b strings.Builder
	if len(s.Items) == 0 {
		b.WriteString(EmptyPeriod + "\n")
	} else {
		nameWidth, amountWidth := 0, 0
		amounts := make([]string, len(s.Items))
		for i, item := range s.Items {
			nameWidth = max(nameWidth, lipgloss.Width(item.Name()))
			amounts[i] = r.f.Rub(item.TotalAmount.Float())
			amountWidth = max(amountWidth, lipgloss.Width(amounts[i]))
		}
		for i, item := range s.Items {
			marker := "  "
			if item.Name() == active {
				marker = activeStyle.Render("▶ ")
			}
			name := lipgloss.NewStyle().Width(nameWidth + 2).Render(item.Name())
			amount := lipgloss.NewStyle().Width(amountWidth).Align(lipgloss.Right).Render(amounts[i])
			share := labelStyle.Render(r.f.Percent(item.Share.Float(), 0))
			b.WriteString(marker + name + amount + "  " + share + "\n")
		}
	}
	b.WriteString(totalStyle.Render(r.ServicesTotal(s)))
	b.WriteByte('\n')
	return b.String()
}

// ServicesTotal returns the total line, with a placeholder when the total
// is not positive.
func (r *Renderer) ServicesTotal(s api.Services) string {
	if total := s.TotalAmount.Float(); total > 0 {
		return totalLabel + ": " + r.f.Rub(total)
	}
	return totalLabel + ": " + format.Placeholder
}

// Monthly renders a drill-down series newest month first, with the
// aggregate row when the payload carries one. Metric series use the
// catalog format of metric; an empty metric renders rubles.
func (r *Renderer) Monthly(series api.MonthlySeries, metric string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(MonthlyTitle(series, metric)))
	b.WriteByte('\n')

	if len(series.Points) == 0 {
		b.WriteString(EmptyPeriod + "\n")
		return b.String()
	}

	valueOf := func(v float64) string {
		if metric == "" {
			return r.f.Rub(v)
		}
		return r.f.MetricValue(metric, v)
	}

	points := slices.Clone(series.Points)
	slices.SortStableFunc(points, func(a, b api.MonthlyPoint) int {
		return cmp.Compare(b.Month, a.Month)
	})

	type row struct{ label, value string }
	rows := make([]row, 0, len(points)+1)
	for _, p := range points {
		rows = append(rows, row{r.f.MonthLabel(p.Month), valueOf(p.Value.Float())})
	}
	if series.Aggregate != nil {
		rows = append(rows, row{totalLabel, valueOf(series.Aggregate.Float())})
	}

	labelWidth, valueWidth := 0, 0
	for _, rw := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(rw.label))
		valueWidth = max(valueWidth, lipgloss.Width(rw.value))
	}
	for i, rw := range rows {
		line := lipgloss.NewStyle().Width(labelWidth+2).Render(rw.label) +
			lipgloss.NewStyle().Width(valueWidth).Align(lipgloss.Right).Render(rw.value)
		if series.Aggregate != nil && i == len(rows)-1 {
			line = totalStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// MonthlyTitle names the series: the metric label, or the service type.
func MonthlyTitle(series api.MonthlySeries, metric string) string {
	name := series.ServiceType
	if spec, ok := core.LookupMetric(metric); ok {
		name = spec.Label
	} else if name == "" {
		name = metric
	}
	return fmt.Sprintf("%s · %s", name, rangeLabel(series.Range))
}

func rangeLabel(rng string) string {
	switch rng {
	case core.MonthlyRangeThisYear:
		return "текущий год"
	case core.MonthlyRangeLast12:
		return "последние 12 месяцев"
	}
	return orDash(rng)
}

func orDash(s string) string {
	if s == "" {
		return format.Placeholder
	}
	return s
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
