package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/cache"
	"github.com/u4s/turnover-cli/internal/core"
)

// MonthlyFocus returns the drill-down selection.
func (a *App) MonthlyFocus() MonthlyFocus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.focus
}

// SelectMetric opens the monthly series of metric. Selecting the metric
// that is already open collapses the panel without a request.
func (a *App) SelectMetric(ctx context.Context, metric string) (Status, error) {
	if _, ok := core.LookupMetric(metric); !ok {
		return StatusSkipped, fmt.Errorf("unknown metric %q", metric)
	}
	return a.selectFocus(ctx, ContextMetric, metric)
}

// SelectService opens the monthly series of serviceType, with the same
// toggle behavior as SelectMetric.
func (a *App) SelectService(ctx context.Context, serviceType string) (Status, error) {
	serviceType = strings.TrimSpace(serviceType)
	if serviceType == "" {
		return StatusSkipped, nil
	}
	return a.selectFocus(ctx, ContextService, serviceType)
}

func (a *App) selectFocus(ctx context.Context, kind MonthlyContext, key string) (Status, error) {
	a.mu.Lock()
	current := a.focus
	a.mu.Unlock()

	if current.Context == kind && current.Key == key {
		a.ResetMonthly()
		return StatusCollapsed, nil
	}
	if !a.auth.HasValidSession() {
		a.notify(Event{Kind: EventAuthRequired, Section: core.SectionMonthly})
		return StatusSkipped, nil
	}

	if current.Active() {
		a.ResetMonthly()
	}
	focus := MonthlyFocus{Context: kind, Key: key, Range: core.DefaultMonthlyRange}
	a.mu.Lock()
	a.focus = focus
	a.monthly = nil
	a.mu.Unlock()

	a.notify(Event{Kind: EventMonthlyLoading, Section: core.SectionMonthly, Focus: focus})
	return a.loadMonthly(ctx, focus)
}

// OpenMonthly focuses on focus and loads it. Unlike the Select methods it
// never toggles and keeps the requested range.
func (a *App) OpenMonthly(ctx context.Context, focus MonthlyFocus) (Status, error) {
	focus.Key = strings.TrimSpace(focus.Key)
	if focus.Range == "" {
		focus.Range = core.DefaultMonthlyRange
	}
	if !core.IsMonthlyRange(focus.Range) {
		return StatusSkipped, fmt.Errorf("unknown monthly range %q", focus.Range)
	}
	switch focus.Context {
	case ContextMetric:
		if _, ok := core.LookupMetric(focus.Key); !ok {
			return StatusSkipped, fmt.Errorf("unknown metric %q", focus.Key)
		}
	case ContextService:
		if focus.Key == "" {
			return StatusSkipped, errors.New("service type is required")
		}
	default:
		return StatusSkipped, fmt.Errorf("unknown monthly context %q", focus.Context)
	}
	if !a.auth.HasValidSession() {
		a.notify(Event{Kind: EventAuthRequired, Section: core.SectionMonthly})
		return StatusSkipped, nil
	}

	a.mu.Lock()
	a.focus = focus
	a.monthly = nil
	a.mu.Unlock()
	a.notify(Event{Kind: EventMonthlyLoading, Section: core.SectionMonthly, Focus: focus})
	return a.loadMonthly(ctx, focus)
}

// SetMonthlyRange refetches the open series over rng. Without a focus, or
// when rng is already active, it does nothing.
func (a *App) SetMonthlyRange(ctx context.Context, rng string) (Status, error) {
	if !core.IsMonthlyRange(rng) {
		return StatusSkipped, fmt.Errorf("unknown monthly range %q", rng)
	}

	a.mu.Lock()
	if !a.focus.Active() || a.focus.Range == rng {
		a.mu.Unlock()
		return StatusSkipped, nil
	}
	a.focus.Range = rng
	focus := a.focus
	a.mu.Unlock()

	a.notify(Event{Kind: EventMonthlyLoading, Section: core.SectionMonthly, Focus: focus})
	return a.loadMonthly(ctx, focus)
}

// RefreshMonthly reloads the open series, from cache when possible.
func (a *App) RefreshMonthly(ctx context.Context) (Status, error) {
	focus := a.MonthlyFocus()
	if !focus.Active() {
		return StatusSkipped, nil
	}
	return a.loadMonthly(ctx, focus)
}

func (a *App) loadMonthly(ctx context.Context, focus MonthlyFocus) (Status, error) {
	field := a.api.DateField()

	var key string
	var fetch fetchFunc
	switch focus.Context {
	case ContextMetric:
		key = cache.MonthlyMetricKey(focus.Key, focus.Range, field)
		fetch = func(ctx context.Context, header http.Header) ([]byte, error) {
			return a.api.FetchMonthlyMetric(ctx, focus.Key, focus.Range, header)
		}
	case ContextService:
		key = cache.MonthlyServiceKey(focus.Key, focus.Range, field)
		fetch = func(ctx context.Context, header http.Header) ([]byte, error) {
			return a.api.FetchMonthlyService(ctx, focus.Key, focus.Range, header)
		}
	default:
		return StatusSkipped, nil
	}

	return a.load(ctx, core.SectionMonthly, key, fetch, func(raw []byte, cached bool) error {
		series, err := api.DecodeMonthly(raw)
		if err != nil {
			return err
		}

		a.mu.Lock()
		if a.focus != focus || (series.Range != "" && series.Range != focus.Range) {
			a.mu.Unlock()
			return errStale
		}
		a.monthly = &series
		a.mu.Unlock()

		a.notify(Event{Kind: EventMonthly, Section: core.SectionMonthly, Focus: focus, Monthly: &series, Cached: cached})
		return nil
	})
}

// ResetMonthly closes the drill-down panel and cancels its request.
func (a *App) ResetMonthly() {
	mu := a.applyMu[core.SectionMonthly]
	mu.Lock()
	defer mu.Unlock()

	a.mu.Lock()
	if slot := a.slots[core.SectionMonthly]; slot != nil {
		slot.cancel()
		delete(a.slots, core.SectionMonthly)
	}
	wasActive := a.focus.Active()
	a.focus = defaultFocus()
	a.monthly = nil
	a.mu.Unlock()

	if wasActive {
		a.notify(Event{Kind: EventMonthlyReset, Section: core.SectionMonthly, Focus: defaultFocus()})
	}
}

// NotifyServicesCleared collapses a service focus once the services data it
// came from is gone.
func (a *App) NotifyServicesCleared() {
	if a.MonthlyFocus().Context == ContextService {
		a.ResetMonthly()
	}
}
