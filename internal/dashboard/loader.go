package dashboard

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/cache"
	"github.com/u4s/turnover-cli/internal/core"
)

// AuthFailureMessage is shown when a request is rejected with 401 or 403.
const AuthFailureMessage = "Неверный пароль или сессия истекла."

type fetchFunc func(ctx context.Context, header http.Header) ([]byte, error)

// applyFunc publishes a response body. A decode error is reported as a
// section failure and the body is not cached.
type applyFunc func(raw []byte, cached bool) error

// errStale is returned by an applyFunc that no longer matches the state it
// was issued for. The body is neither published nor cached.
var errStale = errors.New("stale response")

// load runs one fetch through the section slot: session guard, cache, cancel
// the previous request of the section, fetch, apply, cache.
func (a *App) load(ctx context.Context, section, key string, fetch fetchFunc, apply applyFunc) (Status, error) {
	if !a.auth.EnsureSession() {
		a.logger.Debug("no valid session, skipping fetch", "section", section)
		return StatusSkipped, nil
	}

	if raw, ok := a.cache.Lookup(ctx, key); ok {
		// The cached body is newer than whatever is still on the wire.
		a.cancelSlot(section)
		mu := a.applyMu[section]
		mu.Lock()
		err := apply(raw, true)
		mu.Unlock()
		if errors.Is(err, errStale) {
			return StatusCanceled, nil
		}
		if err != nil {
			return a.fail(section, err)
		}
		return StatusCached, nil
	}

	reqCtx, id := a.begin(ctx, section)
	defer a.release(section, id)

	logger := a.logger.With("section", section, "request_id", id)
	logger.Debug("fetching", "key", key)

	raw, err := fetch(reqCtx, a.auth.AuthorizationHeader())
	if err != nil {
		switch {
		case api.IsCanceled(err) || reqCtx.Err() != nil:
			logger.Debug("request canceled")
			return StatusCanceled, nil
		case api.IsAuthError(err):
			logger.Warn("request rejected, session is no longer valid", "status", api.StatusOf(err))
			a.HandleAuthFailure(AuthFailureMessage)
			return StatusFailed, err
		}
		logger.Warn("request failed", "error", err)
		return a.fail(section, err)
	}

	mu := a.applyMu[section]
	mu.Lock()
	defer mu.Unlock()
	if !a.owns(section, id) {
		logger.Debug("discarding superseded response")
		return StatusCanceled, nil
	}
	if err := apply(raw, false); err != nil {
		if errors.Is(err, errStale) {
			logger.Debug("discarding stale response")
			return StatusCanceled, nil
		}
		return a.fail(section, err)
	}
	a.cache.Store(ctx, key, raw)
	return StatusFetched, nil
}

func (a *App) fail(section string, err error) (Status, error) {
	a.notify(Event{Kind: EventSectionError, Section: section, Err: err})
	return StatusFailed, err
}

// begin cancels the in-flight request of section and claims its slot.
func (a *App) begin(ctx context.Context, section string) (context.Context, string) {
	reqCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev := a.slots[section]; prev != nil {
		prev.cancel()
	}
	a.slots[section] = &fetchSlot{id: id, cancel: cancel}
	return reqCtx, id
}

// release frees the slot if id still owns it.
func (a *App) release(section, id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slot := a.slots[section]; slot != nil && slot.id == id {
		slot.cancel()
		delete(a.slots, section)
	}
}

func (a *App) owns(section, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := a.slots[section]
	return slot != nil && slot.id == id
}

func (a *App) cancelSlot(section string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slot := a.slots[section]; slot != nil {
		slot.cancel()
		delete(a.slots, section)
	}
}

// FetchRevenue loads the metrics summary for the current range.
func (a *App) FetchRevenue(ctx context.Context) (Status, error) {
	rng := a.Range()
	if err := a.checkRange(rng); err != nil {
		return StatusSkipped, err
	}
	field := a.api.DateField()
	key := cache.SectionKey(core.SectionRevenue, rng.From, rng.To, field)

	return a.load(ctx, core.SectionRevenue, key,
		func(ctx context.Context, header http.Header) ([]byte, error) {
			return a.api.FetchMetrics(ctx, rng.From, rng.To, header)
		},
		func(raw []byte, cached bool) error {
			m, err := api.DecodeMetrics(raw)
			if err != nil {
				return err
			}
			a.mu.Lock()
			a.metrics = &m
			a.mu.Unlock()
			a.notify(Event{Kind: EventRevenue, Section: core.SectionRevenue, Range: rng, Metrics: &m, Cached: cached})
			return nil
		})
}

// FetchServices loads the services breakdown for the current range and
// maintains the services dirty flag.
func (a *App) FetchServices(ctx context.Context) (Status, error) {
	rng := a.Range()
	if err := a.checkRange(rng); err != nil {
		return StatusSkipped, err
	}
	key := cache.SectionKey(core.SectionServices, rng.From, rng.To, a.api.DateField())

	status, err := a.load(ctx, core.SectionServices, key,
		func(ctx context.Context, header http.Header) ([]byte, error) {
			return a.api.FetchServices(ctx, rng.From, rng.To, header)
		},
		func(raw []byte, cached bool) error {
			s, err := api.DecodeServices(raw)
			if err != nil {
				return err
			}
			a.applyServices(rng, &s, cached)
			return nil
		})

	switch status {
	case StatusCached, StatusFetched:
		a.setServicesDirty(false)
	case StatusFailed:
		a.setServicesDirty(true)
		if !api.IsAuthError(err) {
			a.clearServices()
		}
	}
	return status, err
}

func (a *App) applyServices(rng Range, s *api.Services, cached bool) {
	a.mu.Lock()
	a.services = s
	focus := a.focus
	a.mu.Unlock()

	a.notify(Event{Kind: EventServices, Section: core.SectionServices, Range: rng, Services: s, Cached: cached})

	if len(s.Items) == 0 {
		a.NotifyServicesCleared()
		return
	}
	if focus.Context == ContextService && !s.HasService(focus.Key) {
		a.ResetMonthly()
	}
}

func (a *App) clearServices() {
	a.mu.Lock()
	a.services = nil
	a.mu.Unlock()
	a.NotifyServicesCleared()
}

func (a *App) setServicesDirty(dirty bool) {
	a.mu.Lock()
	a.servicesDirty = dirty
	a.mu.Unlock()
}

// checkRange validates rng and reports a failure through the observer.
func (a *App) checkRange(rng Range) error {
	err := ValidateRange(rng.From, rng.To, a.today())
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		a.mu.Lock()
		a.rangeErr = verr
		a.mu.Unlock()
		a.notify(Event{Kind: EventRangeError, Range: rng, Err: verr, Message: verr.Message})
	}
	return err
}
