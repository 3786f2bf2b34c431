package dashboard

import (
	"time"

	"github.com/u4s/turnover-cli/internal/api"
)

// EventKind identifies what changed.
type EventKind string

const (
	EventRevenue        EventKind = "revenue"
	EventServices       EventKind = "services"
	EventMonthlyLoading EventKind = "monthly-loading"
	EventMonthly        EventKind = "monthly"
	EventMonthlyReset   EventKind = "monthly-reset"
	EventSectionError   EventKind = "section-error"
	EventRangeError     EventKind = "range-error"
	EventRangeCleared   EventKind = "range-cleared"
	EventAuthRequired   EventKind = "auth-required"
	EventSectionChanged EventKind = "section-changed"
)

// Event carries one state change to the view layer. Only the fields that
// belong to Kind are set.
type Event struct {
	Kind     EventKind
	Section  string
	Range    Range
	Focus    MonthlyFocus
	Metrics  *api.Metrics
	Services *api.Services
	Monthly  *api.MonthlySeries
	Cached   bool
	Err      error
	Message  string
}

// Observer receives events. Notify runs on the goroutine that produced the
// event and must not block.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Notify(Event) {}

// Timer is a pending debounced call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The default wraps time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
