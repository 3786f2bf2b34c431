// Package core provides shared constants and helpers for the turnover CLI.
package core

import (
	"os"
	"path/filepath"
	"time"
)

// API configuration
const (
	DefaultAPIBase = "https://u4s-turnover-karinausadba.amvera.io"
	EnvPrefix      = "TURNOVER"
)

// Endpoints
const (
	PathMetrics        = "/api/metrics"
	PathServices       = "/api/services"
	PathMetricsMonthly = "/api/metrics/monthly"
	PathServiceMonthly = "/api/services/monthly"
	PathLogin          = "/api/auth/login"
)

// Date formats
const (
	APIDateFmt = "2006-01-02"
)

// Date fields the metrics API can filter on.
const (
	DateFieldCreated = "created"
	DateFieldCheckin = "checkin"
	DateFieldParam   = "date_field"
)

// DateFieldAliases lists the accepted spellings of each logical date field,
// in the order they are tried.
var DateFieldAliases = map[string][]string{
	DateFieldCreated: {DateFieldCreated, "created_at"},
	DateFieldCheckin: {DateFieldCheckin, "checkin_date"},
}

// Sections
const (
	SectionRevenue  = "revenue"
	SectionServices = "services"
	SectionMonthly  = "monthly"

	DefaultSection = SectionRevenue
)

// Monthly ranges
const (
	MonthlyRangeThisYear = "this_year"
	MonthlyRangeLast12   = "last_12_months"

	DefaultMonthlyRange = MonthlyRangeThisYear
)

// Request cache
const (
	RequestCacheTTL        = 5 * time.Minute
	RequestCacheMaxEntries = 50
)

// FetchDebounce is the delay between a manual range edit and the fetch it triggers.
const FetchDebounce = 400 * time.Millisecond

// Session storage
const (
	SessionStorageVersion = 2
	SessionTypeToken      = "token"
	SessionTypeHash       = "hash"
	HashHeader            = "X-Auth-Hash"
)

// ServiceUncategorized is shown for services rows without a service type.
const ServiceUncategorized = "Без категории"

// ConfigRoot returns the default configuration directory path.
func ConfigRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "turnover")
}

// SessionPath returns the default path of the persisted session slot.
func SessionPath() string {
	return filepath.Join(ConfigRoot(), "session.json")
}

// Version is the current CLI version.
const Version = "0.3.0"
