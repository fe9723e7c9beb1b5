package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/uistate"
)

// ViewSource reads the events and markets a view selection refers to.
type ViewSource interface {
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) (domain.Paginated[domain.Market], error)
}

// OrderReader reads a single order.
type OrderReader interface {
	Get(ctx context.Context, id int64) (domain.Order, error)
}

var viewScopes = []uistate.Scope{
	uistate.ScopeEvent,
	uistate.ScopeMarket,
	uistate.ScopeOrder,
	uistate.ScopeMarkets,
}

type viewLoad struct {
	scope uistate.Scope
	fetch func(ctx context.Context) (any, error)
}

// ViewLoader fetches the data behind the shared view state and publishes it
// on the state channel as ViewEvents. A result whose scope changed while the
// fetch was in flight is dropped, so dashboards only ever render data for
// the current selection.
type ViewLoader struct {
	store   *uistate.Store
	markets ViewSource
	orders  OrderReader
	bus     domain.SignalBus
	logger  *slog.Logger
	wake    chan struct{}
}

// NewViewLoader creates a ViewLoader.
func NewViewLoader(store *uistate.Store, markets ViewSource, orders OrderReader, bus domain.SignalBus, logger *slog.Logger) *ViewLoader {
	return &ViewLoader{
		store:   store,
		markets: markets,
		orders:  orders,
		bus:     bus,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

// Trigger asks Run for another load. Requests made while one is pending
// coalesce.
func (l *ViewLoader) Trigger() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run loads once and then after every Trigger until ctx is cancelled.
func (l *ViewLoader) Run(ctx context.Context) error {
	for {
		l.Load(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Load fetches every scope the current state selects and publishes the
// results that are still current. It returns how many were published.
func (l *ViewLoader) Load(ctx context.Context) int {
	// Generations are read before the snapshot: a change in between only
	// costs a discarded result, never a stale one.
	gens := make(map[uistate.Scope]uint64, len(viewScopes))
	for _, scope := range viewScopes {
		gens[scope] = l.store.Generation(scope)
	}
	s := l.store.Snapshot()

	published := 0
	for _, ld := range l.loads(s) {
		data, err := ld.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return published
			}
			l.logger.WarnContext(ctx, "view_loader: load failed",
				slog.String("scope", string(ld.scope)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !l.store.IsCurrent(ld.scope, gens[ld.scope]) {
			l.logger.DebugContext(ctx, "view_loader: discarding stale result",
				slog.String("scope", string(ld.scope)),
			)
			continue
		}
		if l.publish(ctx, ld.scope, data) {
			published++
		}
	}
	return published
}

func (l *ViewLoader) loads(s uistate.State) []viewLoad {
	var out []viewLoad
	if s.SelectedEventID != nil {
		id := *s.SelectedEventID
		out = append(out, viewLoad{uistate.ScopeEvent, func(ctx context.Context) (any, error) {
			return l.markets.GetEvent(ctx, id)
		}})
	}
	if s.SelectedMarketID != nil {
		id := *s.SelectedMarketID
		out = append(out, viewLoad{uistate.ScopeMarket, func(ctx context.Context) (any, error) {
			return l.markets.GetMarket(ctx, id)
		}})
	}
	if s.SelectedOrderID != nil && l.orders != nil {
		id := *s.SelectedOrderID
		out = append(out, viewLoad{uistate.ScopeOrder, func(ctx context.Context) (any, error) {
			return l.orders.Get(ctx, id)
		}})
	}
	if s.ActiveTab == uistate.TabMarkets {
		f := s.MarketFilters.MarketFilter(s.MarketsPage)
		out = append(out, viewLoad{uistate.ScopeMarkets, func(ctx context.Context) (any, error) {
			return l.markets.ListMarkets(ctx, f)
		}})
	}
	return out
}

func (l *ViewLoader) publish(ctx context.Context, scope uistate.Scope, data any) bool {
	if l.bus == nil {
		return false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	payload, err := json.Marshal(domain.ViewEvent{
		Kind:  domain.EventViewLoaded,
		Scope: string(scope),
		Data:  raw,
		At:    time.Now().UTC(),
	})
	if err != nil {
		return false
	}
	if err := l.bus.Publish(ctx, domain.ChannelState, payload); err != nil {
		l.logger.WarnContext(ctx, "view_loader: publish failed", slog.String("error", err.Error()))
		return false
	}
	return true
}
