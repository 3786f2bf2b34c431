// Package format renders dashboard values for a locale.
package format

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/u4s/turnover-cli/internal/core"
)

// Placeholder is rendered for missing or unparsable values.
const Placeholder = "—"

// Formatter renders numbers, money and months for one locale.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
	unit    currency.Unit
}

// New returns a Formatter for locale ("ru" or "en"); unknown locales fall back to Russian.
func New(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil || (tag != language.English && tag != language.Russian) {
		tag = language.Russian
	}
	return &Formatter{
		tag:     tag,
		printer: message.NewPrinter(tag),
		unit:    currency.RUB,
	}
}

// ToNumber converts a JSON-ish value into a finite float; everything else is 0.
func ToNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	case float32:
		return ToNumber(float64(n))
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return ToNumber(f)
	}
	return 0
}

// Number renders v with exactly digits fraction digits.
func (f *Formatter) Number(v float64, digits int) string {
	return f.printer.Sprint(number.Decimal(v,
		number.MinFractionDigits(digits),
		number.MaxFractionDigits(digits),
	))
}

// Rub renders v as whole rubles.
func (f *Formatter) Rub(v float64) string {
	amount := f.Number(math.Round(v), 0)
	if f.tag == language.English {
		return f.unit.String() + " " + amount
	}
	return amount + " ₽"
}

// Percent renders a fraction (0.25) as a percentage with digits fraction digits.
func (f *Formatter) Percent(v float64, digits int) string {
	return f.Number(v*100, digits) + " %"
}

// MonthLabel renders an ISO date as "Март 2024" (or "March 2024").
func (f *Formatter) MonthLabel(iso string) string {
	iso = strings.TrimSpace(iso)
	if len(iso) < 7 {
		return Placeholder
	}
	t, err := time.Parse(core.APIDateFmt, iso)
	if err != nil {
		t, err = time.Parse("2006-01", iso[:7])
		if err != nil {
			return Placeholder
		}
	}
	if f.tag == language.English {
		return t.Month().String() + " " + strconv.Itoa(t.Year())
	}
	return ruMonths[t.Month()-1] + " " + strconv.Itoa(t.Year())
}

// MetricValue renders v with the catalog format of metric.
func (f *Formatter) MetricValue(metric string, v float64) string {
	spec, ok := core.LookupMetric(metric)
	if !ok {
		return f.Number(v, 0)
	}
	var out string
	switch spec.Kind {
	case core.FormatCurrency:
		out = f.Rub(v)
	case core.FormatPercent:
		out = f.Percent(v, spec.Digits)
	default:
		out = f.Number(v, spec.Digits)
	}
	return out + spec.Suffix
}

var ruMonths = [12]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}
