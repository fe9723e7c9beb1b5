package uistate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// ThemePrefKey is the preference key the theme is stored under.
const ThemePrefKey = "theme"

// Scope identifies a slice of state that asynchronous reads depend on.
type Scope string

const (
	ScopeEvent   Scope = "event"
	ScopeMarket  Scope = "market"
	ScopeOrder   Scope = "order"
	ScopeEvents  Scope = "events"
	ScopeMarkets Scope = "markets"
	ScopeOrders  Scope = "orders"
)

// Store owns the view state. Reads that finish after the state they were
// issued for has changed are detected with Generation and IsCurrent and
// should be discarded.
type Store struct {
	prefs  domain.PrefsStore
	logger *slog.Logger

	mu        sync.RWMutex
	state     State
	gens      map[Scope]uint64
	listeners []func(State)
}

// NewStore creates a Store with the initial state, restoring the theme from
// prefs when one was saved. prefs may be nil.
func NewStore(ctx context.Context, prefs domain.PrefsStore, logger *slog.Logger) *Store {
	s := &Store{
		prefs:  prefs,
		logger: logger,
		state:  Initial(),
		gens:   make(map[Scope]uint64),
	}
	if prefs == nil {
		return s
	}

	saved, err := prefs.GetPref(ctx, ThemePrefKey)
	switch {
	case err == nil && Theme(saved).Valid():
		s.state.Theme = Theme(saved)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		logger.WarnContext(ctx, "uistate: load theme failed", slog.String("error", err.Error()))
	}
	return s
}

// OnChange registers fn to receive every new state after a dispatch.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch validates and applies a, bumps the generation of every scope it
// changed and persists the theme when it changed.
func (s *Store) Dispatch(ctx context.Context, a Action) (State, error) {
	if err := a.Validate(); err != nil {
		return s.Snapshot(), err
	}

	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	s.state = next
	for _, scope := range changedScopes(prev, next) {
		s.gens[scope]++
	}
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()

	if next.Theme != prev.Theme && s.prefs != nil {
		if err := s.prefs.SetPref(ctx, ThemePrefKey, string(next.Theme)); err != nil {
			return next, fmt.Errorf("uistate: save theme: %w", err)
		}
	}
	for _, fn := range listeners {
		fn(next)
	}
	return next, nil
}

// Generation returns the current generation of scope.
func (s *Store) Generation(scope Scope) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[scope]
}

// IsCurrent reports whether scope is still at generation gen.
func (s *Store) IsCurrent(scope Scope, gen uint64) bool {
	return s.Generation(scope) == gen
}

func changedScopes(prev, next State) []Scope {
	var out []Scope
	if !sameID(prev.SelectedEventID, next.SelectedEventID) {
		out = append(out, ScopeEvent)
	}
	if !sameID(prev.SelectedMarketID, next.SelectedMarketID) {
		out = append(out, ScopeMarket)
	}
	if !sameID(prev.SelectedOrderID, next.SelectedOrderID) {
		out = append(out, ScopeOrder)
	}
	if prev.EventsPage != next.EventsPage {
		out = append(out, ScopeEvents)
	}
	if prev.MarketsPage != next.MarketsPage || !sameFilters(prev.MarketFilters, next.MarketFilters) {
		out = append(out, ScopeMarkets)
	}
	if prev.OrdersPage != next.OrdersPage {
		out = append(out, ScopeOrders)
	}
	return out
}

func sameID(a, b *int64) bool {
	return samePtr(a, b)
}

func samePtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameFilters(a, b MarketFilters) bool {
	return a.Search == b.Search &&
		samePtr(a.EventID, b.EventID) &&
		samePtr(a.Active, b.Active) &&
		samePtr(a.Closed, b.Closed) &&
		samePtr(a.VolumeMin, b.VolumeMin) &&
		samePtr(a.VolumeMax, b.VolumeMax) &&
		samePtr(a.LiquidityMin, b.LiquidityMin) &&
		samePtr(a.LiquidityMax, b.LiquidityMax) &&
		sameTime(a.CreatedAtMin, b.CreatedAtMin) &&
		sameTime(a.CreatedAtMax, b.CreatedAtMax) &&
		sameTime(a.UpdatedAtMin, b.UpdatedAtMin) &&
		sameTime(a.UpdatedAtMax, b.UpdatedAtMax)
}

// sameTime compares instants, ignoring location and monotonic readings.
func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
