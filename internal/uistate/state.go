// Package uistate holds the dashboard's view state: the active tab, the
// selected entities, list pagination, market filters, the order dialog and
// the theme. State is a plain value updated only through Reduce.
package uistate

import (
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// Tab is a top-level dashboard view.
type Tab string

const (
	TabEvents  Tab = "events"
	TabMarkets Tab = "markets"
	TabOrders  Tab = "orders"
)

// Valid reports whether t is a known tab.
func (t Tab) Valid() bool {
	return t == TabEvents || t == TabMarkets || t == TabOrders
}

// Theme is the display theme. It is the only persisted field.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// OrderPrefill seeds the create-order dialog.
type OrderPrefill struct {
	MarketID int64            `json:"marketId"`
	Outcome  domain.Outcome   `json:"outcome,omitempty"`
	Side     domain.OrderSide `json:"side,omitempty"`
	Type     domain.OrderType `json:"type,omitempty"`
	Price    string           `json:"price,omitempty"`
}

// CreateOrderDialog is the create-order dialog's visibility and prefill.
type CreateOrderDialog struct {
	Open    bool          `json:"open"`
	Prefill *OrderPrefill `json:"prefill,omitempty"`
}

// MarketFilters are the user-editable market list filters.
type MarketFilters struct {
	EventID      *int64     `json:"eventId,omitempty"`
	Active       *bool      `json:"active,omitempty"`
	Closed       *bool      `json:"closed,omitempty"`
	Search       string     `json:"search,omitempty"`
	VolumeMin    *float64   `json:"volumeMin,omitempty"`
	VolumeMax    *float64   `json:"volumeMax,omitempty"`
	LiquidityMin *float64   `json:"liquidityMin,omitempty"`
	LiquidityMax *float64   `json:"liquidityMax,omitempty"`
	CreatedAtMin *time.Time `json:"createdAtMin,omitempty"`
	CreatedAtMax *time.Time `json:"createdAtMax,omitempty"`
	UpdatedAtMin *time.Time `json:"updatedAtMin,omitempty"`
	UpdatedAtMax *time.Time `json:"updatedAtMax,omitempty"`
}

// MarketFilter converts the filters and page into a backend query.
func (f MarketFilters) MarketFilter(page int) domain.MarketFilter {
	return domain.MarketFilter{
		EventID:      f.EventID,
		Active:       f.Active,
		Closed:       f.Closed,
		Search:       f.Search,
		VolumeMin:    f.VolumeMin,
		VolumeMax:    f.VolumeMax,
		LiquidityMin: f.LiquidityMin,
		LiquidityMax: f.LiquidityMax,
		CreatedAtMin: f.CreatedAtMin,
		CreatedAtMax: f.CreatedAtMax,
		UpdatedAtMin: f.UpdatedAtMin,
		UpdatedAtMax: f.UpdatedAtMax,
		Page:         domain.Page{Page: page, PageSize: domain.DefaultPageSize},
	}
}

// State is the complete, serializable view state.
type State struct {
	ActiveTab        Tab               `json:"activeTab"`
	SelectedEventID  *int64            `json:"selectedEventId,omitempty"`
	SelectedMarketID *int64            `json:"selectedMarketId,omitempty"`
	SelectedOrderID  *int64            `json:"selectedOrderId,omitempty"`
	CreateOrder      CreateOrderDialog `json:"createOrderDialog"`
	EventsPage       int               `json:"eventsPage"`
	MarketsPage      int               `json:"marketsPage"`
	OrdersPage       int               `json:"ordersPage"`
	MarketFilters    MarketFilters     `json:"marketFilters"`
	Theme            Theme             `json:"theme"`
}

// Initial returns the state a fresh session starts with.
func Initial() State {
	return State{
		ActiveTab:   TabMarkets,
		EventsPage:  1,
		MarketsPage: 1,
		OrdersPage:  1,
		Theme:       ThemeSystem,
	}
}
