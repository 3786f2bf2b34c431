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
	"github.com/u4s/turnover-cli/internal/core"
)

func TestLoginLogoutRefetches(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx := context.Background()

	require.NoError(t, h.app.Login(ctx, " abc "))
	assert.True(t, h.auth.HasValidSession())
	assert.Equal(t, 1, h.mock.CountPath(core.PathLogin))
	assert.Equal(t, 1, h.mock.CountPath(core.PathMetrics))
	assert.Equal(t, 1, h.mock.CountPath(core.PathServices))
	assert.False(t, h.app.ServicesDirty())

	raw, _ := h.store.Load()
	assert.Contains(t, string(raw), `"token":"tok"`)

	status, err := h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCached, status)

	require.NoError(t, h.app.Logout(ctx))
	assert.False(t, h.auth.HasValidSession())
	raw, _ = h.store.Load()
	assert.Nil(t, raw)
	assert.Zero(t, h.cache.Len(ctx))

	h.auth.Set(auth.TokenSession("tok", time.Time{}))
	status, err = h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status, "no stale hit across identities")
	assert.Equal(t, 2, h.mock.CountPath(core.PathMetrics))
}

func TestLoginEmptyPassword(t *testing.T) {
	h := newHarness(t, nil, false)
	assert.ErrorIs(t, h.app.Login(context.Background(), "   "), ErrEmptyPassword)
	assert.Zero(t, h.mock.RequestsMade())
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t, func(context.Context, api.Request) ([]byte, error) {
		return nil, api.StatusError(401, `{"detail":"Invalid credentials"}`)
	}, false)

	err := h.app.Login(context.Background(), "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidPassword)
	assert.False(t, h.auth.HasValidSession())
	assert.Equal(t, 1, h.mock.RequestsMade())
}

func TestLoginClearsPreviousIdentity(t *testing.T) {
	h := newHarness(t, nil, true)
	ctx := context.Background()

	_, err := h.app.SelectMetric(ctx, "revenue")
	require.NoError(t, err)
	h.cache.Store(ctx, "stale", []byte(`{}`))

	require.NoError(t, h.app.Login(ctx, "abc"))
	assert.False(t, h.app.MonthlyFocus().Active())
	assert.Equal(t, 2, h.cache.Len(ctx), "only the fresh revenue and services responses remain")
}

func TestLoginServicesFailureMarksDirty(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, req api.Request) ([]byte, error) {
		if req.Path == core.PathServices {
			return nil, api.StatusError(502, "")
		}
		return defaultHandler(ctx, req)
	}, false)

	require.NoError(t, h.app.Login(context.Background(), "abc"))
	assert.True(t, h.app.ServicesDirty())
	assert.Len(t, h.rec.Of(EventSectionError), 1)
}

func TestRestore(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx := context.Background()

	ok, err := h.app.Restore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, h.rec.Of(EventAuthRequired), 1)
	assert.Zero(t, h.mock.RequestsMade())

	require.NoError(t, h.auth.Persist(auth.TokenSession("stored", testNow.Add(time.Hour))))
	ok, err = h.app.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, h.mock.CountPath(core.PathMetrics))
	assert.Equal(t, 1, h.mock.CountPath(core.PathServices))
	for _, r := range h.mock.Requests() {
		assert.Equal(t, "Bearer stored", r.Header.Get("Authorization"))
	}
}

func TestRestoreSessionDoesNotFetch(t *testing.T) {
	h := newHarness(t, nil, false)
	require.NoError(t, h.auth.Persist(auth.TokenSession("stored", time.Time{})))

	assert.True(t, h.app.RestoreSession())
	assert.True(t, h.auth.HasValidSession())
	assert.Zero(t, h.mock.RequestsMade())
}

func TestRestoreSessionReusesOwnCache(t *testing.T) {
	h := newHarness(t, nil, false)
	ctx := context.Background()
	require.NoError(t, h.auth.Persist(auth.TokenSession("stored", time.Time{})))

	require.True(t, h.app.RestoreSession())
	status, err := h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status)

	require.True(t, h.app.RestoreSession())
	status, err = h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCached, status, "restoring the same credential keeps its entries")
	assert.Equal(t, 1, h.mock.RequestsMade())

	require.NoError(t, h.auth.Persist(auth.TokenSession("someone-else", time.Time{})))
	require.True(t, h.app.RestoreSession())
	status, err = h.app.FetchRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status, "another credential never sees those entries")
	assert.Equal(t, 2, h.mock.RequestsMade())
}

func TestAuthFailureReportedOnce(t *testing.T) {
	h := newHarness(t, func(context.Context, api.Request) ([]byte, error) {
		return nil, api.StatusError(401, "")
	}, true)
	ctx := context.Background()
	require.NoError(t, h.app.SetRange("2024-03-01", "2024-03-05"))
	require.Equal(t, 1, h.sched.Pending())

	var wg sync.WaitGroup
	for _, fetch := range []func(context.Context) (Status, error){h.app.FetchRevenue, h.app.FetchServices} {
		fetch := fetch
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetch(ctx)
		}()
	}
	wg.Wait()

	assert.Len(t, h.rec.Of(EventAuthRequired), 1)
	assert.Zero(t, h.sched.Pending(), "debounced fetches die with the session")
	assert.False(t, h.auth.HasValidSession())
}

func TestSwitchSection(t *testing.T) {
	h := newHarness(t, nil, true)
	ctx := context.Background()

	status, err := h.app.SwitchSection(ctx, core.SectionRevenue)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status)
	assert.Empty(t, h.rec.Of(EventSectionChanged))

	_, err = h.app.SelectMetric(ctx, "revenue")
	require.NoError(t, err)

	status, err = h.app.SwitchSection(ctx, core.SectionServices)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, status)
	assert.False(t, h.app.MonthlyFocus().Active(), "entering services drops the metric focus")
	assert.False(t, h.app.ServicesDirty())

	_, err = h.app.SwitchSection(ctx, core.SectionRevenue)
	require.NoError(t, err)
	status, err = h.app.SwitchSection(ctx, core.SectionServices)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status, "clean services data is not refetched")
	assert.Equal(t, 1, h.mock.CountPath(core.PathServices))

	_, err = h.app.SwitchSection(ctx, "monthly")
	assert.Error(t, err)
}

func TestLeavingServicesCollapsesServiceFocus(t *testing.T) {
	h := newHarness(t, nil, true)
	ctx := context.Background()

	_, err := h.app.SwitchSection(ctx, core.SectionServices)
	require.NoError(t, err)
	_, err = h.app.SelectService(ctx, "Баня")
	require.NoError(t, err)

	_, err = h.app.SwitchSection(ctx, core.SectionRevenue)
	require.NoError(t, err)
	assert.False(t, h.app.MonthlyFocus().Active())
}

func TestSwitchSectionSkipsWhilePending(t *testing.T) {
	h := newHarness(t, nil, true)
	ctx := context.Background()

	_, err := h.app.SwitchSection(ctx, core.SectionServices)
	require.NoError(t, err)
	require.NoError(t, h.app.SetRange("2024-03-01", "2024-03-05"))
	_, err = h.app.SwitchSection(ctx, core.SectionRevenue)
	require.NoError(t, err)
	h.mock.Reset()

	status, err := h.app.SwitchSection(ctx, core.SectionServices)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, status, "a debounced services fetch is already pending")
	assert.Zero(t, h.mock.CountPath(core.PathServices))
}
