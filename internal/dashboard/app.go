// Package dashboard is the application context of the turnover dashboard:
// the active section, the date filter, the monthly drill-down focus, the
// per-section fetch slots and the debounce timers. Front ends drive it with
// method calls and render what it reports through an Observer.
package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/auth"
	"github.com/u4s/turnover-cli/internal/cache"
	"github.com/u4s/turnover-cli/internal/core"
)

// Options wires an App. API and Auth are required.
type Options struct {
	API       *api.TurnoverAPI
	Auth      *auth.Manager
	Cache     *cache.Manager
	Observer  Observer
	Now       func() time.Time
	Location  *time.Location
	Scheduler Scheduler
	Debounce  time.Duration
	Logger    *slog.Logger
}

// App is the dashboard state machine. All methods are safe for concurrent use.
type App struct {
	api       *api.TurnoverAPI
	auth      *auth.Manager
	cache     *cache.Manager
	observer  Observer
	now       func() time.Time
	loc       *time.Location
	scheduler Scheduler
	debounce  time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// applyMu serializes "is this still the latest request" checks with the
	// observer call that follows, per section.
	applyMu map[string]*sync.Mutex

	mu            sync.Mutex
	section       string
	rng           Range
	preset        Preset
	rangeErr      error
	lastTriggered *Range
	servicesDirty bool
	focus         MonthlyFocus
	slots         map[string]*fetchSlot
	timers        map[string]Timer
	timerGen      map[string]uint64
	metrics       *api.Metrics
	services      *api.Services
	monthly       *api.MonthlySeries
}

// New creates an App with the current-month filter selected.
func New(opts Options) *App {
	if opts.Cache == nil {
		opts.Cache = cache.NewManager(nil, opts.Logger)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timeScheduler{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = core.FetchDebounce
	}
	if opts.Logger == nil {
		opts.Logger = core.DiscardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		api:       opts.API,
		auth:      opts.Auth,
		cache:     opts.Cache,
		observer:  opts.Observer,
		now:       opts.Now,
		loc:       opts.Location,
		scheduler: opts.Scheduler,
		debounce:  opts.Debounce,
		logger:    opts.Logger.With("component", "dashboard"),
		ctx:       ctx,
		cancel:    cancel,
		applyMu: map[string]*sync.Mutex{
			core.SectionRevenue:  {},
			core.SectionServices: {},
			core.SectionMonthly:  {},
		},
		section:       core.DefaultSection,
		servicesDirty: true,
		focus:         defaultFocus(),
		slots:         make(map[string]*fetchSlot),
		timers:        make(map[string]Timer),
		timerGen:      make(map[string]uint64),
	}
	a.InitFilters()
	return a
}

// Close cancels every in-flight request and pending timer.
func (a *App) Close() {
	a.cancelAll()
	a.cancel()
}

// Snapshot returns a copy of the current state.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Section:       a.section,
		Range:         a.rng,
		Preset:        a.preset,
		Focus:         a.focus,
		Metrics:       a.metrics,
		Services:      a.services,
		Monthly:       a.monthly,
		ServicesDirty: a.servicesDirty,
		RangeErr:      a.rangeErr,
		Authenticated: a.auth.HasValidSession(),
	}
}

// Section returns the active section.
func (a *App) Section() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.section
}

// Range returns the date filter.
func (a *App) Range() Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng
}

// DateField returns the logical date field requests filter on.
func (a *App) DateField() string {
	return a.api.DateField()
}

// SetDateField switches the logical date field. Cached responses stay keyed
// by field, so switching back is served from cache.
func (a *App) SetDateField(field string) {
	a.api.Requester().SetField(field)
}

// Inflight reports whether section has a request running.
func (a *App) Inflight(section string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slots[section] != nil
}

// ServicesDirty reports whether services data must be refetched.
func (a *App) ServicesDirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.servicesDirty
}

func (a *App) notify(e Event) {
	a.observer.Notify(e)
}

func (a *App) today() time.Time {
	return a.now().In(a.loc)
}
