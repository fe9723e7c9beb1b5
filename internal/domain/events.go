package domain

import (
	"encoding/json"
	"time"
)

// Channel names used on the signal bus.
const (
	ChannelOrders = "orders"
	ChannelFunds  = "funds"
	ChannelState  = "state"
)

// Event kinds published on the signal bus.
const (
	EventOrderCreated   = "order.created"
	EventOrderCancelled = "order.cancelled"
	EventOrderStatus    = "order.status"
	EventOrderFailed    = "order.submit_failed"
	EventApproval       = "funds.approved"
	EventStateChanged   = "state.changed"
	EventViewLoaded     = "state.view"
)

// OrderEvent is published when an order is created, cancelled, or changes
// status.
type OrderEvent struct {
	Kind       string      `json:"kind"`
	OrderID    int64       `json:"orderId"`
	MarketID   int64       `json:"marketId"`
	Status     OrderStatus `json:"status"`
	PrevStatus OrderStatus `json:"prevStatus,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	At         time.Time   `json:"at"`
}

// StateEvent carries the shared view state after a change.
type StateEvent struct {
	Kind  string          `json:"kind"`
	State json.RawMessage `json:"state"`
	At    time.Time       `json:"at"`
}

// ViewEvent carries data loaded for the current view selection. Scope names
// the part of the view it belongs to ("market", "order", ...).
type ViewEvent struct {
	Kind  string          `json:"kind"`
	Scope string          `json:"scope"`
	Data  json.RawMessage `json:"data"`
	At    time.Time       `json:"at"`
}
