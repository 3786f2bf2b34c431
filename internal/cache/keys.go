package cache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/u4s/turnover-cli/internal/core"
)

// SectionKey identifies a revenue or services response for one range.
func SectionKey(section, from, to, dateField string) string {
	return fmt.Sprintf("%s-%s-%s-%s", section, from, to, dateField)
}

// MonthlyMetricKey identifies a monthly metric series.
func MonthlyMetricKey(metric, rng, dateField string) string {
	return fmt.Sprintf("%s-%s-%s-%s", core.SectionMonthly, metric, rng, dateField)
}

// MonthlyServiceKey identifies a monthly service series. The service type is
// case-folded and escaped so arbitrary names stay one key segment.
func MonthlyServiceKey(serviceType, rng, dateField string) string {
	normalized := url.PathEscape(strings.ToLower(serviceType))
	return fmt.Sprintf("%s-service-%s-%s-%s", core.SectionMonthly, normalized, rng, dateField)
}
