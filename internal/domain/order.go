package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType indicates the execution policy.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

// OrderStatus tracks the order lifecycle. Transitions are performed by the
// backend; the client only recognises them.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusQueued          OrderStatus = "QUEUED"
	OrderStatusProcessing      OrderStatus = "PROCESSING"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusQueued,
	OrderStatusProcessing,
	OrderStatusPartiallyFilled,
	OrderStatusFilled,
	OrderStatusCancelled,
	OrderStatusFailed,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusQueued, OrderStatusProcessing, OrderStatusPartiallyFilled,
		OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed,
	},
	OrderStatusQueued: {
		OrderStatusProcessing, OrderStatusPartiallyFilled, OrderStatusFilled,
		OrderStatusCancelled, OrderStatusFailed,
	},
	OrderStatusProcessing: {
		OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusFailed,
	},
	OrderStatusPartiallyFilled: {
		OrderStatusFilled, OrderStatusFailed,
	},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions can happen.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusFailed
}

// CanCancel reports whether an order in this status may be cancelled.
func (s OrderStatus) CanCancel() bool {
	return s == OrderStatusPending || s == OrderStatusQueued
}

// CanTransitionTo reports whether next is a recognised successor of s.
// Staying in the same status is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, v := range orderTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// Order represents an order as tracked by the backend.
type Order struct {
	ID               int64               `json:"id"`
	IdempotencyKey   string              `json:"idempotencyKey"`
	MarketID         int64               `json:"marketId"`
	Market           *Market             `json:"market,omitempty"`
	Side             OrderSide           `json:"side"`
	Type             OrderType           `json:"type"`
	Outcome          Outcome             `json:"outcome"`
	Quantity         decimal.Decimal     `json:"quantity"`
	Price            decimal.NullDecimal `json:"price"`
	Status           OrderStatus         `json:"status"`
	FilledQuantity   decimal.Decimal     `json:"filledQuantity"`
	AverageFillPrice decimal.NullDecimal `json:"averageFillPrice"`
	ExternalOrderID  string              `json:"externalOrderId,omitempty"`
	FailureReason    FailureReason       `json:"failureReason,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// CanCancel reports whether the order may be cancelled by the client.
func (o Order) CanCancel() bool {
	return o.Status.CanCancel()
}

// FailureReason holds the backend's failure reason, which may arrive as a
// string or as a structured object.
type FailureReason string

// UnmarshalJSON accepts a string, null, or any JSON value (kept verbatim).
func (f *FailureReason) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FailureReason(s)
		return nil
	}
	*f = FailureReason(trimmed)
	return nil
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	MarketID *int64
	Status   OrderStatus
	Side     OrderSide
	Outcome  Outcome
	Page     Page
}

// OrderForm holds the user-entered order parameters. Quantity and Amount are
// decimal strings; exactly one is expected, Amount only for BUY orders.
type OrderForm struct {
	MarketID int64     `json:"marketId"`
	Side     OrderSide `json:"side"`
	Type     OrderType `json:"type"`
	Outcome  Outcome   `json:"outcome"`
	Quantity string    `json:"quantity,omitempty"`
	Amount   string    `json:"amount,omitempty"`
	Price    string    `json:"price,omitempty"`
}

// CreateOrderRequest is the signed body posted to the backend.
type CreateOrderRequest struct {
	MarketID      int64     `json:"marketId"`
	Side          OrderSide `json:"side"`
	Type          OrderType `json:"type"`
	Outcome       Outcome   `json:"outcome"`
	Quantity      string    `json:"quantity"`
	Amount        string    `json:"amount,omitempty"`
	Price         string    `json:"price,omitempty"`
	WalletAddress string    `json:"walletAddress"`
	Signature     string    `json:"signature"`
	Nonce         string    `json:"nonce"`
	Message       string    `json:"message"`
}
