// Package api provides the HTTP client and types for the turnover metrics API.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/u4s/turnover-cli/internal/core"
)

// Number is a JSON number that also accepts numeric strings and null.
// Anything unparsable decodes to 0.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	var f float64
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*n = 0
			return nil
		}
		f = parsed
	} else if err := json.Unmarshal(b, &f); err != nil {
		*n = 0
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	*n = Number(f)
	return nil
}

// Float returns n as a float64.
func (n Number) Float() float64 { return float64(n) }

// Metrics is the /api/metrics summary for one date range.
type Metrics struct {
	UsedField         string `json:"used_field,omitempty"`
	DateFrom          string `json:"date_from,omitempty"`
	DateTo            string `json:"date_to,omitempty"`
	Revenue           Number `json:"revenue"`
	AvgCheck          Number `json:"avg_check"`
	BookingsCount     Number `json:"bookings_count"`
	Level2PlusShare   Number `json:"level2plus_share"`
	MinBooking        Number `json:"min_booking"`
	MaxBooking        Number `json:"max_booking"`
	AvgStayDays       Number `json:"avg_stay_days"`
	BonusPaymentShare Number `json:"bonus_payment_share"`
	ServicesShare     Number `json:"services_share"`
}

// Value returns the metric named key; unknown keys are 0.
func (m Metrics) Value(key string) float64 {
	switch key {
	case "revenue":
		return m.Revenue.Float()
	case "avg_check":
		return m.AvgCheck.Float()
	case "bookings_count":
		return m.BookingsCount.Float()
	case "level2plus_share":
		return m.Level2PlusShare.Float()
	case "min_booking":
		return m.MinBooking.Float()
	case "max_booking":
		return m.MaxBooking.Float()
	case "avg_stay_days":
		return m.AvgStayDays.Float()
	case "bonus_payment_share":
		return m.BonusPaymentShare.Float()
	case "services_share":
		return m.ServicesShare.Float()
	}
	return 0
}

// ServiceItem is one row of the services breakdown.
type ServiceItem struct {
	ServiceType string `json:"service_type"`
	TotalAmount Number `json:"total_amount"`
	Share       Number `json:"share"`
}

// Name returns the trimmed service type, or the uncategorized label.
func (i ServiceItem) Name() string {
	if name := strings.TrimSpace(i.ServiceType); name != "" {
		return name
	}
	return core.ServiceUncategorized
}

// Services is the /api/services breakdown for one date range.
type Services struct {
	DateFrom    string        `json:"date_from,omitempty"`
	DateTo      string        `json:"date_to,omitempty"`
	TotalAmount Number        `json:"total_amount"`
	Items       []ServiceItem `json:"items"`
}

// HasService reports whether the breakdown contains serviceType.
func (s Services) HasService(serviceType string) bool {
	for _, item := range s.Items {
		if item.Name() == serviceType {
			return true
		}
	}
	return false
}

// MonthlyPoint is one month of a drill-down series.
type MonthlyPoint struct {
	Month string `json:"month"`
	Value Number `json:"value"`
}

// MonthlySeries is returned by both monthly endpoints.
type MonthlySeries struct {
	Metric      string         `json:"metric,omitempty"`
	ServiceType string         `json:"service_type,omitempty"`
	Range       string         `json:"range"`
	DateField   string         `json:"date_field,omitempty"`
	Points      []MonthlyPoint `json:"points"`
	Aggregate   *Number        `json:"aggregate,omitempty"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the successful answer of POST /api/auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   Number `json:"expires_in"`
}

func decode[T any](raw []byte, what string) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", what, err)
	}
	return v, nil
}

// DecodeMetrics parses a /api/metrics body.
func DecodeMetrics(raw []byte) (Metrics, error) { return decode[Metrics](raw, "metrics") }

// DecodeServices parses a /api/services body.
func DecodeServices(raw []byte) (Services, error) { return decode[Services](raw, "services") }

// DecodeMonthly parses a monthly series body.
func DecodeMonthly(raw []byte) (MonthlySeries, error) {
	return decode[MonthlySeries](raw, "monthly series")
}
