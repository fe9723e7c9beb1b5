package uistate

import (
	"fmt"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// ActionType names a state transition.
type ActionType string

const (
	ActionSetTab             ActionType = "set_tab"
	ActionSelectEvent        ActionType = "select_event"
	ActionSelectMarket       ActionType = "select_market"
	ActionSelectOrder        ActionType = "select_order"
	ActionOpenCreateOrder    ActionType = "open_create_order"
	ActionCloseCreateOrder   ActionType = "close_create_order"
	ActionSetEventsPage      ActionType = "set_events_page"
	ActionSetMarketsPage     ActionType = "set_markets_page"
	ActionSetOrdersPage      ActionType = "set_orders_page"
	ActionSetMarketFilters   ActionType = "set_market_filters"
	ActionResetMarketFilters ActionType = "reset_market_filters"
	ActionSetTheme           ActionType = "set_theme"
)

// Action is a serializable state transition. Only the fields relevant to
// Type are read.
type Action struct {
	Type    ActionType     `json:"type"`
	Tab     Tab            `json:"tab,omitempty"`
	ID      *int64         `json:"id,omitempty"`
	Page    int            `json:"page,omitempty"`
	Prefill *OrderPrefill  `json:"prefill,omitempty"`
	Filters *MarketFilters `json:"filters,omitempty"`
	Theme   Theme          `json:"theme,omitempty"`
}

// Validate checks that a carries what its type needs.
func (a Action) Validate() error {
	var problem string
	switch a.Type {
	case ActionSetTab:
		if !a.Tab.Valid() {
			problem = fmt.Sprintf("unknown tab %q", a.Tab)
		}
	case ActionSelectEvent, ActionSelectMarket, ActionSelectOrder:
		if a.ID != nil && *a.ID <= 0 {
			problem = "id must be positive"
		}
	case ActionOpenCreateOrder:
		if a.Prefill != nil && a.Prefill.MarketID <= 0 {
			problem = "prefill market id must be positive"
		}
	case ActionCloseCreateOrder, ActionResetMarketFilters:
	case ActionSetEventsPage, ActionSetMarketsPage, ActionSetOrdersPage:
		if a.Page < 1 {
			problem = "page must be at least 1"
		}
	case ActionSetMarketFilters:
		if a.Filters == nil {
			problem = "filters are required"
		}
	case ActionSetTheme:
		if !a.Theme.Valid() {
			problem = fmt.Sprintf("unknown theme %q", a.Theme)
		}
	default:
		problem = fmt.Sprintf("unknown action %q", a.Type)
	}
	if problem != "" {
		return &domain.ValidationError{Problems: []string{problem}}
	}
	return nil
}

// Reduce returns the state after applying a. It never mutates s. Invalid
// actions leave the state unchanged.
func Reduce(s State, a Action) State {
	if a.Validate() != nil {
		return s
	}

	switch a.Type {
	case ActionSetTab:
		s.ActiveTab = a.Tab
	case ActionSelectEvent:
		s.SelectedEventID = copyID(a.ID)
	case ActionSelectMarket:
		s.SelectedMarketID = copyID(a.ID)
	case ActionSelectOrder:
		s.SelectedOrderID = copyID(a.ID)
	case ActionOpenCreateOrder:
		s.CreateOrder = CreateOrderDialog{Open: true}
		if a.Prefill != nil {
			p := *a.Prefill
			s.CreateOrder.Prefill = &p
		}
	case ActionCloseCreateOrder:
		s.CreateOrder = CreateOrderDialog{}
	case ActionSetEventsPage:
		s.EventsPage = a.Page
	case ActionSetMarketsPage:
		s.MarketsPage = a.Page
	case ActionSetOrdersPage:
		s.OrdersPage = a.Page
	case ActionSetMarketFilters:
		s.MarketFilters = copyFilters(*a.Filters)
		s.MarketsPage = 1
	case ActionResetMarketFilters:
		s.MarketFilters = MarketFilters{}
		s.MarketsPage = 1
	case ActionSetTheme:
		s.Theme = a.Theme
	}
	return s
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyFilters(f MarketFilters) MarketFilters {
	out := f
	out.EventID = copyID(f.EventID)
	out.Active = copyPtr(f.Active)
	out.Closed = copyPtr(f.Closed)
	out.VolumeMin = copyPtr(f.VolumeMin)
	out.VolumeMax = copyPtr(f.VolumeMax)
	out.LiquidityMin = copyPtr(f.LiquidityMin)
	out.LiquidityMax = copyPtr(f.LiquidityMax)
	out.CreatedAtMin = copyPtr(f.CreatedAtMin)
	out.CreatedAtMax = copyPtr(f.CreatedAtMax)
	out.UpdatedAtMin = copyPtr(f.UpdatedAtMin)
	out.UpdatedAtMax = copyPtr(f.UpdatedAtMax)
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
