package dashboard

import (
	"context"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/core"
)

// Range is the date filter, both ends as YYYY-MM-DD. An empty end is open.
type Range struct {
	From string
	To   string
}

// Preset names a computed range.
type Preset string

const (
	PresetNone          Preset = ""
	PresetCurrentMonth  Preset = "current_month"
	PresetPreviousMonth Preset = "previous_month"
)

// Status reports what a load did.
type Status int

const (
	// StatusSkipped: no valid session, invalid range, or nothing to do.
	StatusSkipped Status = iota
	// StatusCached: served from the response cache without a request.
	StatusCached
	// StatusFetched: fetched, applied and cached.
	StatusFetched
	// StatusCanceled: superseded by a newer request for the same section.
	StatusCanceled
	// StatusCollapsed: a monthly focus was toggled off.
	StatusCollapsed
	// StatusFailed: the request failed; the error says why.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusCached:
		return "cached"
	case StatusFetched:
		return "fetched"
	case StatusCanceled:
		return "canceled"
	case StatusCollapsed:
		return "collapsed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Applied reports whether data reached the observer.
func (s Status) Applied() bool {
	return s == StatusCached || s == StatusFetched
}

// MonthlyContext tells what the drill-down panel is focused on.
type MonthlyContext string

const (
	ContextNone    MonthlyContext = ""
	ContextMetric  MonthlyContext = "metric"
	ContextService MonthlyContext = "service"
)

// MonthlyFocus is the drill-down selection.
type MonthlyFocus struct {
	Context MonthlyContext
	Key     string
	Range   string
}

// Active reports whether something is selected.
func (f MonthlyFocus) Active() bool {
	return f.Context != ContextNone && f.Key != ""
}

func defaultFocus() MonthlyFocus {
	return MonthlyFocus{Range: core.DefaultMonthlyRange}
}

// Snapshot is a copy of the dashboard state for renderers.
type Snapshot struct {
	Section       string
	Range         Range
	Preset        Preset
	Focus         MonthlyFocus
	Metrics       *api.Metrics
	Services      *api.Services
	Monthly       *api.MonthlySeries
	ServicesDirty bool
	RangeErr      error
	Authenticated bool
}

// fetchSlot is the in-flight request of one section.
type fetchSlot struct {
	id     string
	cancel context.CancelFunc
}
