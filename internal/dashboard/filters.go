package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/u4s/turnover-cli/internal/core"
)

// ValidationError is a date range the dashboard refuses to fetch.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateRange checks a YYYY-MM-DD range. Empty ends are allowed. Neither
// end may be later than the last day of now's month, and from may not be
// later than to.
func ValidateRange(from, to string, now time.Time) error {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)

	var fromDate, toDate time.Time
	var err error
	if from != "" {
		if fromDate, err = core.ParseDate(from); err != nil {
			return &ValidationError{Field: "from", Message: "Дата 'От' указана в неверном формате"}
		}
	}
	if to != "" {
		if toDate, err = core.ParseDate(to); err != nil {
			return &ValidationError{Field: "to", Message: "Дата 'До' указана в неверном формате"}
		}
	}

	monthEnd := core.MonthEnd(now)
	if from != "" && fromDate.After(monthEnd) {
		return &ValidationError{Field: "from", Message: "Дата 'От' не может быть позже конца текущего месяца"}
	}
	if to != "" && toDate.After(monthEnd) {
		return &ValidationError{Field: "to", Message: "Дата 'До' не может быть позже конца текущего месяца"}
	}
	if from != "" && to != "" && fromDate.After(toDate) {
		return &ValidationError{Field: "from", Message: "Дата 'От' не может быть позже даты 'До'"}
	}
	return nil
}

// PresetRange computes the calendar range of p for now.
func PresetRange(p Preset, now time.Time) (Range, error) {
	var first, last time.Time
	switch p {
	case PresetCurrentMonth:
		first, last = core.CurrentMonth(now)
	case PresetPreviousMonth:
		first, last = core.PreviousMonth(now)
	default:
		return Range{}, fmt.Errorf("unknown preset %q", p)
	}
	return Range{From: core.FormatDate(first), To: core.FormatDate(last)}, nil
}

// InitFilters selects the current month without fetching.
func (a *App) InitFilters() {
	rng, _ := PresetRange(PresetCurrentMonth, a.today())
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rng = rng
	a.preset = PresetCurrentMonth
	a.rangeErr = nil
}

// SetRange is a manual edit of the date filter. A valid range schedules a
// debounced revenue fetch, and a services fetch when that section is open.
func (a *App) SetRange(from, to string) error {
	rng := Range{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}

	a.mu.Lock()
	a.rng = rng
	a.preset = PresetNone
	a.servicesDirty = true
	a.lastTriggered = nil
	a.mu.Unlock()

	if err := a.checkRange(rng); err != nil {
		a.mu.Lock()
		a.stopTimersLocked(core.SectionRevenue, core.SectionServices)
		a.mu.Unlock()
		return err
	}
	a.clearRangeError(rng)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.scheduleLocked(core.SectionRevenue, a.FetchRevenue)
	if a.section == core.SectionServices {
		a.scheduleLocked(core.SectionServices, a.FetchServices)
	}
	return nil
}

// ApplyPreset selects p and fetches immediately.
func (a *App) ApplyPreset(ctx context.Context, p Preset) error {
	rng, err := PresetRange(p, a.today())
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.rng = rng
	a.preset = p
	a.mu.Unlock()
	a.clearRangeError(rng)
	return a.triggerImmediate(ctx)
}

// ResetFilters goes back to the current month and fetches immediately.
func (a *App) ResetFilters(ctx context.Context) error {
	return a.ApplyPreset(ctx, PresetCurrentMonth)
}

// ApplyRange sets an explicit range and fetches immediately, skipping the
// debounce of SetRange.
func (a *App) ApplyRange(ctx context.Context, rng Range) error {
	rng = Range{From: strings.TrimSpace(rng.From), To: strings.TrimSpace(rng.To)}
	a.mu.Lock()
	a.rng = rng
	a.preset = PresetNone
	a.mu.Unlock()
	return a.triggerImmediate(ctx)
}

// UseRange sets the filter without fetching or scheduling anything. One-shot
// callers fetch the sections they need themselves.
func (a *App) UseRange(rng Range) error {
	rng = Range{From: strings.TrimSpace(rng.From), To: strings.TrimSpace(rng.To)}
	a.mu.Lock()
	a.rng = rng
	a.preset = PresetNone
	a.servicesDirty = true
	a.lastTriggered = nil
	a.mu.Unlock()
	if err := a.checkRange(rng); err != nil {
		return err
	}
	a.clearRangeError(rng)
	return nil
}

// UsePreset is UseRange for a preset.
func (a *App) UsePreset(p Preset) error {
	rng, err := PresetRange(p, a.today())
	if err != nil {
		return err
	}
	if err := a.UseRange(rng); err != nil {
		return err
	}
	a.mu.Lock()
	a.preset = p
	a.mu.Unlock()
	return nil
}

// triggerImmediate fetches the current range unless it is the range last
// sent. Errors from the fetches themselves reach the observer; only a
// rejected range is returned.
func (a *App) triggerImmediate(ctx context.Context) error {
	a.mu.Lock()
	rng := a.rng
	if a.lastTriggered != nil && *a.lastTriggered == rng {
		a.mu.Unlock()
		a.logger.Debug("range already fetched", "from", rng.From, "to", rng.To)
		return nil
	}
	a.mu.Unlock()

	if err := a.checkRange(rng); err != nil {
		a.mu.Lock()
		a.stopTimersLocked(core.SectionRevenue, core.SectionServices)
		a.mu.Unlock()
		return err
	}
	a.clearRangeError(rng)

	a.mu.Lock()
	a.lastTriggered = &rng
	a.servicesDirty = true
	a.stopTimersLocked(core.SectionRevenue, core.SectionServices)
	withServices := a.section == core.SectionServices
	a.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		_, err := a.FetchRevenue(ctx)
		return err
	})
	if withServices {
		g.Go(func() error {
			_, err := a.FetchServices(ctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Debug("immediate fetch failed", "error", err)
	}
	return nil
}

func (a *App) clearRangeError(rng Range) {
	a.mu.Lock()
	had := a.rangeErr != nil
	a.rangeErr = nil
	a.mu.Unlock()
	if had {
		a.notify(Event{Kind: EventRangeCleared, Range: rng})
	}
}

// scheduleLocked replaces the pending timer of section with a debounced
// call of fetch. a.mu must be held.
func (a *App) scheduleLocked(section string, fetch func(context.Context) (Status, error)) {
	if t := a.timers[section]; t != nil {
		t.Stop()
	}
	a.timerGen[section]++
	gen := a.timerGen[section]
	a.timers[section] = a.scheduler.AfterFunc(a.debounce, func() {
		a.mu.Lock()
		if a.timerGen[section] != gen {
			a.mu.Unlock()
			return
		}
		delete(a.timers, section)
		a.mu.Unlock()

		if _, err := fetch(a.ctx); err != nil {
			a.logger.Debug("debounced fetch failed", "section", section, "error", err)
		}
	})
}

// stopTimersLocked cancels pending debounced fetches. a.mu must be held.
func (a *App) stopTimersLocked(sections ...string) {
	for _, section := range sections {
		if t := a.timers[section]; t != nil {
			t.Stop()
			delete(a.timers, section)
		}
		// A timer that already fired but has not taken the lock yet sees
		// the new generation and does nothing.
		a.timerGen[section]++
	}
}

func (a *App) timerPending(section string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timers[section] != nil
}
