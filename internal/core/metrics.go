package core

// FormatKind selects how a metric value is rendered.
type FormatKind string

const (
	FormatCurrency FormatKind = "currency"
	FormatPercent  FormatKind = "percent"
	FormatNumber   FormatKind = "number"
)

// MetricSpec describes one summary metric returned by /api/metrics.
type MetricSpec struct {
	Key    string
	Label  string
	Kind   FormatKind
	Digits int
	Suffix string
}

// Metrics is the summary card catalog, in display order.
var Metrics = []MetricSpec{
	{Key: "revenue", Label: "Выручка всего", Kind: FormatCurrency},
	{Key: "bookings_count", Label: "Кол-во номеров", Kind: FormatNumber},
	{Key: "level2plus_share", Label: "Повт. клиенты", Kind: FormatPercent},
	{Key: "avg_check", Label: "Средний чек", Kind: FormatCurrency},
	{Key: "min_booking", Label: "Мин. чек", Kind: FormatCurrency},
	{Key: "max_booking", Label: "Макс. чек", Kind: FormatCurrency},
	{Key: "avg_stay_days", Label: "Ср. срок прожив.", Kind: FormatNumber, Digits: 1, Suffix: " дн."},
	{Key: "bonus_payment_share", Label: "Оплата бонусами", Kind: FormatPercent, Digits: 1},
	{Key: "services_share", Label: "Доля услуг", Kind: FormatPercent},
}

// LookupMetric returns the catalog entry for key.
func LookupMetric(key string) (MetricSpec, bool) {
	for _, m := range Metrics {
		if m.Key == key {
			return m, true
		}
	}
	return MetricSpec{}, false
}

// IsMonthlyRange reports whether r is a range accepted by the monthly endpoints.
func IsMonthlyRange(r string) bool {
	return r == MonthlyRangeThisYear || r == MonthlyRangeLast12
}
