package dashboard

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/u4s/turnover-cli/internal/core"
)

// ErrEmptyPassword is returned by Login for a blank password.
var ErrEmptyPassword = errors.New("введите пароль")

// Login authenticates, persists the session and loads both sections. The
// returned error is the authentication error or the revenue fetch error;
// a failed services fetch only marks services dirty.
func (a *App) Login(ctx context.Context, password string) error {
	password = strings.TrimSpace(password)
	if password == "" {
		return ErrEmptyPassword
	}

	session, err := a.auth.Authenticate(ctx, password)
	if err != nil {
		return err
	}
	a.auth.Set(session)
	if err := a.auth.Persist(session); err != nil {
		a.logger.Warn("cannot persist session", "error", err)
	}
	a.startSession(ctx)

	a.mu.Lock()
	if a.rng.From == "" || a.rng.To == "" {
		a.rng, _ = PresetRange(PresetCurrentMonth, a.today())
		a.preset = PresetCurrentMonth
	}
	a.stopTimersLocked(core.SectionRevenue, core.SectionServices)
	a.mu.Unlock()

	var revenueErr error
	var servicesOK bool
	var g errgroup.Group
	g.Go(func() error {
		_, revenueErr = a.FetchRevenue(ctx)
		return nil
	})
	g.Go(func() error {
		status, _ := a.FetchServices(ctx)
		servicesOK = status.Applied()
		return nil
	})
	_ = g.Wait()

	if !servicesOK {
		a.setServicesDirty(true)
	}
	return revenueErr
}

// Restore loads the persisted session and fetches both sections. Without a
// usable stored session it reports auth-required and returns false.
func (a *App) Restore(ctx context.Context) (bool, error) {
	if !a.RestoreSession() {
		a.notify(Event{Kind: EventAuthRequired})
		return false, nil
	}

	// Sections load independently; a failing one does not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		_, err := a.FetchRevenue(ctx)
		return err
	})
	g.Go(func() error {
		_, err := a.FetchServices(ctx)
		return err
	})
	return true, g.Wait()
}

// RestoreSession installs the persisted session without fetching. Cached
// responses of the same credential stay usable; those of any other are
// out of scope.
func (a *App) RestoreSession() bool {
	session, ok := a.auth.ReadStored()
	if !ok {
		a.auth.Clear()
		a.cache.SetScope("")
		return false
	}
	a.auth.Set(session)
	a.cache.SetScope(a.auth.Identity())
	return true
}

// Logout forgets the session, its stored slot and every cached response.
func (a *App) Logout(ctx context.Context) error {
	var errs []error
	if err := a.auth.ClearStored(); err != nil {
		errs = append(errs, err)
	}
	a.auth.Clear()
	if err := a.cache.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	a.cache.SetScope("")
	a.cancelAll()

	a.mu.Lock()
	a.lastTriggered = nil
	a.servicesDirty = true
	a.metrics = nil
	a.services = nil
	a.mu.Unlock()

	a.ResetMonthly()
	return errors.Join(errs...)
}

// HandleAuthFailure drops the session after a 401 or 403 and asks the front
// end for the password again. In-flight requests and pending debounced
// fetches of every section are canceled. Only the first rejection of a
// session is reported.
func (a *App) HandleAuthFailure(message string) {
	a.cancelAll()
	if !a.auth.Clear() {
		return
	}
	if err := a.auth.ClearStored(); err != nil {
		a.logger.Warn("cannot clear stored session", "error", err)
	}
	if err := a.cache.Clear(a.ctx); err != nil {
		a.logger.Debug("cache clear failed on auth failure", "error", err)
	}
	a.cache.SetScope("")

	a.mu.Lock()
	a.lastTriggered = nil
	a.servicesDirty = true
	a.mu.Unlock()

	a.ResetMonthly()
	a.notify(Event{Kind: EventAuthRequired, Message: message})
}

// startSession clears state that belonged to the previous identity.
func (a *App) startSession(ctx context.Context) {
	if err := a.cache.Clear(ctx); err != nil {
		a.logger.Debug("cache clear failed on login", "error", err)
	}
	a.cache.SetScope(a.auth.Identity())
	a.ResetMonthly()
}

func (a *App) cancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimersLocked(core.SectionRevenue, core.SectionServices)
	for section, slot := range a.slots {
		slot.cancel()
		delete(a.slots, section)
	}
}
