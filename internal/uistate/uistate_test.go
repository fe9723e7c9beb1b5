package uistate_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/uistate"
)

func id(v int64) *int64 { return &v }

func TestInitial(t *testing.T) {
	s := uistate.Initial()
	assert.Equal(t, uistate.TabMarkets, s.ActiveTab)
	assert.Equal(t, 1, s.EventsPage)
	assert.Equal(t, 1, s.MarketsPage)
	assert.Equal(t, 1, s.OrdersPage)
	assert.Equal(t, uistate.ThemeSystem, s.Theme)
	assert.False(t, s.CreateOrder.Open)
}

func TestReduce_DialogPrefillClearedOnClose(t *testing.T) {
	s := uistate.Reduce(uistate.Initial(), uistate.Action{
		Type:    uistate.ActionOpenCreateOrder,
		Prefill: &uistate.OrderPrefill{MarketID: 7, Outcome: domain.OutcomeYes, Side: domain.OrderSideBuy, Price: "0.65"},
	})
	require.True(t, s.CreateOrder.Open)
	require.NotNil(t, s.CreateOrder.Prefill)
	assert.Equal(t, int64(7), s.CreateOrder.Prefill.MarketID)

	s = uistate.Reduce(s, uistate.Action{Type: uistate.ActionCloseCreateOrder})
	assert.False(t, s.CreateOrder.Open)
	assert.Nil(t, s.CreateOrder.Prefill)
}

func TestReduce_FiltersResetPage(t *testing.T) {
	s := uistate.Reduce(uistate.Initial(), uistate.Action{Type: uistate.ActionSetMarketsPage, Page: 4})
	require.Equal(t, 4, s.MarketsPage)

	active := true
	s = uistate.Reduce(s, uistate.Action{
		Type:    uistate.ActionSetMarketFilters,
		Filters: &uistate.MarketFilters{Active: &active, Search: "rain"},
	})
	assert.Equal(t, 1, s.MarketsPage)
	assert.Equal(t, "rain", s.MarketFilters.Search)

	s = uistate.Reduce(s, uistate.Action{Type: uistate.ActionSetMarketsPage, Page: 3})
	s = uistate.Reduce(s, uistate.Action{Type: uistate.ActionResetMarketFilters})
	assert.Equal(t, 1, s.MarketsPage)
	assert.Equal(t, uistate.MarketFilters{}, s.MarketFilters)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := uistate.Initial()
	filters := &uistate.MarketFilters{EventID: id(3)}
	after := uistate.Reduce(before, uistate.Action{Type: uistate.ActionSetMarketFilters, Filters: filters})

	*filters.EventID = 99
	assert.Nil(t, before.MarketFilters.EventID)
	assert.Equal(t, int64(3), *after.MarketFilters.EventID)
}

func TestReduce_InvalidActionIsNoop(t *testing.T) {
	s := uistate.Initial()
	assert.Equal(t, s, uistate.Reduce(s, uistate.Action{Type: uistate.ActionSetTab, Tab: "settings"}))
	assert.Equal(t, s, uistate.Reduce(s, uistate.Action{Type: uistate.ActionSetOrdersPage, Page: 0}))
	assert.Equal(t, s, uistate.Reduce(s, uistate.Action{Type: "bogus"}))
}

func TestReduce_Selection(t *testing.T) {
	s := uistate.Reduce(uistate.Initial(), uistate.Action{Type: uistate.ActionSelectMarket, ID: id(12)})
	require.NotNil(t, s.SelectedMarketID)
	assert.Equal(t, int64(12), *s.SelectedMarketID)

	s = uistate.Reduce(s, uistate.Action{Type: uistate.ActionSelectMarket})
	assert.Nil(t, s.SelectedMarketID)
}

func TestState_JSONRoundTrip(t *testing.T) {
	s := uistate.Reduce(uistate.Initial(), uistate.Action{Type: uistate.ActionSelectOrder, ID: id(5)})
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var back uistate.State
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, s, back)
}

type memPrefs struct {
	values map[string]string
	setErr error
}

func (p *memPrefs) GetPref(_ context.Context, key string) (string, error) {
	v, ok := p.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (p *memPrefs) SetPref(_ context.Context, key, value string) error {
	if p.setErr != nil {
		return p.setErr
	}
	p.values[key] = value
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStore_PersistsOnlyTheme(t *testing.T) {
	ctx := context.Background()
	prefs := &memPrefs{values: map[string]string{}}
	store := uistate.NewStore(ctx, prefs, discard())

	_, err := store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSetTab, Tab: uistate.TabOrders})
	require.NoError(t, err)
	assert.Empty(t, prefs.values)

	_, err = store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSetTheme, Theme: uistate.ThemeDark})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{uistate.ThemePrefKey: "dark"}, prefs.values)

	// A new session restores only the theme.
	restored := uistate.NewStore(ctx, prefs, discard())
	snap := restored.Snapshot()
	assert.Equal(t, uistate.ThemeDark, snap.Theme)
	assert.Equal(t, uistate.TabMarkets, snap.ActiveTab)
}

func TestStore_IgnoresInvalidSavedTheme(t *testing.T) {
	prefs := &memPrefs{values: map[string]string{uistate.ThemePrefKey: "neon"}}
	store := uistate.NewStore(context.Background(), prefs, discard())
	assert.Equal(t, uistate.ThemeSystem, store.Snapshot().Theme)
}

func TestStore_DispatchRejectsInvalid(t *testing.T) {
	store := uistate.NewStore(context.Background(), nil, discard())
	_, err := store.Dispatch(context.Background(), uistate.Action{Type: uistate.ActionSetTheme, Theme: "neon"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_ThemeSaveFailure(t *testing.T) {
	prefs := &memPrefs{values: map[string]string{}, setErr: errors.New("disk full")}
	store := uistate.NewStore(context.Background(), prefs, discard())
	s, err := store.Dispatch(context.Background(), uistate.Action{Type: uistate.ActionSetTheme, Theme: uistate.ThemeLight})
	assert.Error(t, err)
	assert.Equal(t, uistate.ThemeLight, s.Theme)
}

func TestStore_GenerationsDiscardStaleReads(t *testing.T) {
	ctx := context.Background()
	store := uistate.NewStore(ctx, nil, discard())

	_, err := store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSelectMarket, ID: id(1)})
	require.NoError(t, err)
	gen := store.Generation(uistate.ScopeMarket)
	ordersGen := store.Generation(uistate.ScopeOrders)

	// A read for market 1 is in flight when the user selects market 2.
	_, err = store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSelectMarket, ID: id(2)})
	require.NoError(t, err)
	assert.False(t, store.IsCurrent(uistate.ScopeMarket, gen))
	assert.True(t, store.IsCurrent(uistate.ScopeOrders, ordersGen))

	// Re-selecting the same market does not invalidate reads.
	gen = store.Generation(uistate.ScopeMarket)
	_, err = store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSelectMarket, ID: id(2)})
	require.NoError(t, err)
	assert.True(t, store.IsCurrent(uistate.ScopeMarket, gen))

	marketsGen := store.Generation(uistate.ScopeMarkets)
	_, err = store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSetMarketFilters, Filters: &uistate.MarketFilters{Search: "x"}})
	require.NoError(t, err)
	assert.False(t, store.IsCurrent(uistate.ScopeMarkets, marketsGen))
}

func TestStore_TimeFilters(t *testing.T) {
	ctx := context.Background()
	store := uistate.NewStore(ctx, nil, discard())
	setFilters := func(f uistate.MarketFilters) {
		t.Helper()
		_, err := store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSetMarketFilters, Filters: &f})
		require.NoError(t, err)
	}

	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := store.Generation(uistate.ScopeMarkets)
	setFilters(uistate.MarketFilters{CreatedAtMin: &since})
	assert.False(t, store.IsCurrent(uistate.ScopeMarkets, gen))

	// The same instant in another zone is not a change.
	gen = store.Generation(uistate.ScopeMarkets)
	local := since.In(time.FixedZone("UTC+2", 2*60*60))
	setFilters(uistate.MarketFilters{CreatedAtMin: &local})
	assert.True(t, store.IsCurrent(uistate.ScopeMarkets, gen))

	until := since.Add(24 * time.Hour)
	setFilters(uistate.MarketFilters{CreatedAtMin: &since, UpdatedAtMax: &until})
	assert.False(t, store.IsCurrent(uistate.ScopeMarkets, gen))

	f := store.Snapshot().MarketFilters.MarketFilter(1)
	require.NotNil(t, f.CreatedAtMin)
	require.NotNil(t, f.UpdatedAtMax)
	assert.True(t, f.CreatedAtMin.Equal(since))
	assert.True(t, f.UpdatedAtMax.Equal(until))
	assert.Nil(t, f.CreatedAtMax)
	assert.Nil(t, f.UpdatedAtMin)
}

func TestStore_OnChange(t *testing.T) {
	ctx := context.Background()
	store := uistate.NewStore(ctx, nil, discard())
	var seen []uistate.Tab
	store.OnChange(func(s uistate.State) { seen = append(seen, s.ActiveTab) })

	_, err := store.Dispatch(ctx, uistate.Action{Type: uistate.ActionSetTab, Tab: uistate.TabEvents})
	require.NoError(t, err)
	assert.Equal(t, []uistate.Tab{uistate.TabEvents}, seen)
}
