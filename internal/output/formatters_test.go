package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/format"
)

func decodeSeries(t *testing.T, raw string) api.MonthlySeries {
	t.Helper()
	s, err := api.DecodeMonthly([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestMonthlyNewestFirstWithTotal(t *testing.T) {
	r := NewRenderer(format.New("en"))
	series := decodeSeries(t, `{"range":"this_year","points":[
		{"month":"2024-01-01","value":100},
		{"month":"2024-03-01","value":300},
		{"month":"2024-02-01","value":"200"}
	],"aggregate":600}`)

	out := r.Monthly(series, "")
	march := strings.Index(out, "March 2024")
	feb := strings.Index(out, "February 2024")
	jan := strings.Index(out, "January 2024")
	total := strings.Index(out, "Итого")

	require.True(t, march >= 0 && feb >= 0 && jan >= 0 && total >= 0, out)
	assert.Less(t, march, feb)
	assert.Less(t, feb, jan)
	assert.Less(t, jan, total)
	assert.Contains(t, out, "RUB 600")
	assert.Contains(t, out, "текущий год")
}

func TestMonthlyWithoutAggregate(t *testing.T) {
	r := NewRenderer(format.New("en"))

	out := r.Monthly(decodeSeries(t, `{"range":"last_12_months","points":[{"month":"2024-01-01","value":0.5}],"aggregate":null}`), "level2plus_share")
	assert.NotContains(t, out, "Итого")
	assert.Contains(t, out, "50")
	assert.Contains(t, out, "Повт. клиенты")

	out = r.Monthly(decodeSeries(t, `{"range":"this_year","points":[]}`), "revenue")
	assert.Contains(t, out, EmptyPeriod)
}

func TestServices(t *testing.T) {
	r := NewRenderer(format.New("en"))
	s, err := api.DecodeServices([]byte(`{"total_amount":1500,"items":[
		{"service_type":"Баня","total_amount":1000,"share":0.66},
		{"service_type":"","total_amount":500,"share":0.34}
	]}`))
	require.NoError(t, err)

	out := r.Services(s, "Баня")
	assert.Contains(t, out, "Баня")
	assert.Contains(t, out, "Без категории")
	assert.Contains(t, out, "RUB 1,000")
	assert.Contains(t, out, "▶")
	assert.Contains(t, out, "Итого: RUB 1,500")
}

func TestServicesEmpty(t *testing.T) {
	r := NewRenderer(format.New("en"))
	out := r.Services(api.Services{}, "")
	assert.Contains(t, out, EmptyPeriod)
	assert.Contains(t, out, "Итого: "+format.Placeholder)
}

func TestMetrics(t *testing.T) {
	r := NewRenderer(format.New("en"))
	m, err := api.DecodeMetrics([]byte(`{"revenue":"12345","bookings_count":7,"level2plus_share":0.2,"avg_stay_days":2.5,"date_from":"2024-03-01","date_to":"2024-03-31"}`))
	require.NoError(t, err)

	out := r.Metrics(m, "")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 10)
	assert.Contains(t, lines[0], "2024-03-01")
	assert.Contains(t, lines[1], "Выручка всего")
	assert.Contains(t, lines[1], "RUB 12,345")
	assert.Contains(t, out, "2.5 дн.")
	assert.NotContains(t, out, "▶")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"a": 1}))

	var back map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, 1, back["a"])
}
