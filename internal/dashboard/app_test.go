package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/u4s/turnover-cli/internal/api"
	"github.com/u4s/turnover-cli/internal/auth"
	"github.com/u4s/turnover-cli/internal/cache"
	"github.com/u4s/turnover-cli/internal/core"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeTimer struct {
	s       *fakeScheduler
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// fakeScheduler holds debounced calls until Fire is called.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (s *fakeScheduler) Fire() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Of(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	app   *App
	mock  *api.MockTransport
	auth  *auth.Manager
	store *auth.MemoryStore
	cache *cache.Manager
	sched *fakeScheduler
	rec   *recorder
}

func monthlyBody(req api.Request) []byte {
	return api.JSONBody(map[string]any{
		"range":     req.Query.Get("range"),
		"points":    []map[string]any{{"month": "2024-01-01", "value": 100}, {"month": "2024-02-01", "value": 200}},
		"aggregate": 300,
	})
}

// defaultHandler answers every endpoint with a small fixed payload.
func defaultHandler(_ context.Context, req api.Request) ([]byte, error) {
	switch req.Path {
	case core.PathLogin:
		return []byte(`{"access_token":"tok","expires_in":3600}`), nil
	case core.PathMetrics:
		return []byte(`{"revenue":1000,"avg_check":500,"bookings_count":2}`), nil
	case core.PathServices:
		return []byte(`{"total_amount":500,"items":[{"service_type":"Баня","total_amount":500,"share":1}]}`), nil
	case core.PathMetricsMonthly, core.PathServiceMonthly:
		return monthlyBody(req), nil
	}
	return nil, api.StatusError(404, `{"detail":"not found"}`)
}

func newHarness(t *testing.T, handler api.HandlerFunc, loggedIn bool) *harness {
	t.Helper()
	if handler == nil {
		handler = defaultHandler
	}
	now := func() time.Time { return testNow }
	mock := api.NewMockTransport(handler)
	client := api.NewTurnoverAPI(mock, core.DateFieldCreated, nil)
	store := auth.NewMemoryStore()
	authMgr := auth.NewManager(client, store, now, nil)
	if loggedIn {
		authMgr.Set(auth.TokenSession("tok", time.Time{}))
	}
	cacheMgr := cache.NewManager(cache.NewMemoryBackend(time.Minute, 50, now), nil)
	sched := &fakeScheduler{}
	rec := &recorder{}

	app := New(Options{
		API:       client,
		Auth:      authMgr,
		Cache:     cacheMgr,
		Observer:  rec,
		Now:       now,
		Location:  time.UTC,
		Scheduler: sched,
	})
	t.Cleanup(app.Close)
	return &harness{app: app, mock: mock, auth: authMgr, store: store, cache: cacheMgr, sched: sched, rec: rec}
}

func TestNewSelectsCurrentMonth(t *testing.T) {
	h := newHarness(t, nil, true)
	snap := h.app.Snapshot()
	assert.Equal(t, Range{From: "2024-03-01", To: "2024-03-31"}, snap.Range)
	assert.Equal(t, PresetCurrentMonth, snap.Preset)
	assert.Equal(t, core.SectionRevenue, snap.Section)
	assert.True(t, snap.ServicesDirty)
	assert.False(t, snap.Focus.Active())
	assert.Equal(t, core.MonthlyRangeThisYear, snap.Focus.Range)
	assert.True(t, snap.Authenticated)
}

func TestFetchRevenueCachesResponse(t *testing.T) {
	h := newHarness(t, nil, true)
	ctx := context.Background()

	status, err := h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status)

	reqs := h.mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer tok", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "2024-03-01", reqs[0].Query.Get("date_from"))
	assert.Equal(t, "2024-03-31", reqs[0].Query.Get("date_to"))
	assert.Equal(t, "created", reqs[0].Query.Get("date_field"))

	status, err = h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCached, status)
	assert.Equal(t, 1, h.mock.RequestsMade())

	events := h.rec.Of(EventRevenue)
	require.Len(t, events, 2)
	assert.False(t, events[0].Cached)
	assert.True(t, events[1].Cached)
	assert.Equal(t, 1000.0, events[1].Metrics.Revenue.Float())
	assert.Equal(t, 1000.0, h.app.Snapshot().Metrics.Revenue.Float())
}

func TestFetchWithoutSessionIsSkipped(t *testing.T) {
	h := newHarness(t, nil, false)

	status, err := h.app.FetchRevenue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Zero(t, h.mock.RequestsMade())
	assert.Empty(t, h.rec.Of(EventSectionError))
}

func TestRapidFetchesApplyOnlyLatest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	handler := func(_ context.Context, req api.Request) ([]byte, error) {
		if req.Query.Get("date_from") == "2024-03-01" {
			once.Do(func() { close(started) })
			<-release
			return []byte(`{"revenue":1}`), nil
		}
		return []byte(`{"revenue":2}`), nil
	}
	h := newHarness(t, handler, true)
	ctx := context.Background()

	type result struct {
		status Status
		err    error
	}
	first := make(chan result, 1)
	go func() {
		s, err := h.app.FetchRevenue(ctx)
		first <- result{s, err}
	}()
	<-started
	assert.True(t, h.app.Inflight(core.SectionRevenue))

	require.NoError(t, h.app.ApplyRange(ctx, Range{From: "2024-03-02", To: "2024-03-10"}))
	close(release)
	got := <-first

	require.NoError(t, got.err)
	assert.Equal(t, StatusCanceled, got.status)

	events := h.rec.Of(EventRevenue)
	require.Len(t, events, 1)
	assert.Equal(t, 2.0, events[0].Metrics.Revenue.Float())
	assert.Equal(t, 2.0, h.app.Snapshot().Metrics.Revenue.Float())
	assert.Equal(t, 1, h.cache.Len(ctx), "superseded response is not cached")
	assert.False(t, h.app.Inflight(core.SectionRevenue))
}

func TestCacheHitCancelsInflightRequest(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	handler := func(ctx context.Context, req api.Request) ([]byte, error) {
		if req.Query.Get("date_from") == "2024-03-01" {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []byte(`{"revenue":2}`), nil
	}
	h := newHarness(t, handler, true)
	ctx := context.Background()

	h.cache.Store(ctx, cache.SectionKey(core.SectionRevenue, "2024-03-02", "2024-03-10", core.DateFieldCreated), []byte(`{"revenue":3}`))

	first := make(chan Status, 1)
	go func() {
		s, _ := h.app.FetchRevenue(ctx)
		first <- s
	}()
	<-started

	require.NoError(t, h.app.ApplyRange(ctx, Range{From: "2024-03-02", To: "2024-03-10"}))
	assert.Equal(t, StatusCanceled, <-first)

	events := h.rec.Of(EventRevenue)
	require.Len(t, events, 1)
	assert.True(t, events[0].Cached)
	assert.Equal(t, 3.0, events[0].Metrics.Revenue.Float())
}

func TestSectionsFetchIndependently(t *testing.T) {
	h := newHarness(t, nil, true)
	ctx := context.Background()

	_, err := h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	_, err = h.app.FetchServices(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, h.mock.CountPath(core.PathMetrics))
	assert.Equal(t, 1, h.mock.CountPath(core.PathServices))
	for _, r := range h.mock.Requests() {
		if r.Path == core.PathServices {
			assert.Empty(t, r.Query.Get("date_field"), "services never send a date field")
		}
	}
}

func TestDecodeErrorIsSectionError(t *testing.T) {
	h := newHarness(t, func(context.Context, api.Request) ([]byte, error) {
		return []byte(`not json`), nil
	}, true)
	ctx := context.Background()

	status, err := h.app.FetchRevenue(ctx)
	assert.Equal(t, StatusFailed, status)
	assert.Error(t, err)
	assert.Len(t, h.rec.Of(EventSectionError), 1)
	assert.Zero(t, h.cache.Len(ctx))
}

func TestServerErrorStaysLocal(t *testing.T) {
	h := newHarness(t, func(context.Context, api.Request) ([]byte, error) {
		return nil, api.StatusError(500, `{"detail":"boom"}`)
	}, true)

	status, err := h.app.FetchRevenue(context.Background())
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, 500, api.StatusOf(err))

	events := h.rec.Of(EventSectionError)
	require.Len(t, events, 1)
	assert.Equal(t, core.SectionRevenue, events[0].Section)
	assert.True(t, h.auth.HasValidSession())
	assert.Empty(t, h.rec.Of(EventAuthRequired))
}

func TestAuthErrorDropsSession(t *testing.T) {
	h := newHarness(t, func(context.Context, api.Request) ([]byte, error) {
		return nil, api.StatusError(401, `{"detail":"expired"}`)
	}, true)
	ctx := context.Background()
	require.NoError(t, h.auth.Persist(auth.TokenSession("tok", time.Time{})))
	h.cache.Store(ctx, "other", []byte(`{}`))

	status, err := h.app.FetchRevenue(ctx)
	assert.Equal(t, StatusFailed, status)
	assert.True(t, api.IsAuthError(err))

	assert.False(t, h.auth.HasValidSession())
	raw, _ := h.store.Load()
	assert.Nil(t, raw)
	assert.Zero(t, h.cache.Len(ctx))
	assert.True(t, h.app.ServicesDirty())

	events := h.rec.Of(EventAuthRequired)
	require.Len(t, events, 1)
	assert.Equal(t, AuthFailureMessage, events[0].Message)
	assert.Empty(t, h.rec.Of(EventSectionError), "auth failures are not section errors")
}

func TestDateFieldSwitchUsesSeparateCacheEntries(t *testing.T) {
	h := newHarness(t, nil, true)
	ctx := context.Background()

	_, err := h.app.FetchRevenue(ctx)
	require.NoError(t, err)

	h.app.SetDateField(core.DateFieldCheckin)
	assert.Equal(t, core.DateFieldCheckin, h.app.DateField())
	status, err := h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status)

	reqs := h.mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "checkin", reqs[1].Query.Get("date_field"))

	h.app.SetDateField(core.DateFieldCreated)
	status, _ = h.app.FetchRevenue(ctx)
	assert.Equal(t, StatusCached, status)
}

func TestCloseCancelsDebouncedFetch(t *testing.T) {
	h := newHarness(t, nil, true)
	require.NoError(t, h.app.SetRange("2024-03-01", "2024-03-05"))
	h.app.Close()
	h.sched.Fire()
	assert.Zero(t, h.mock.RequestsMade())
}
