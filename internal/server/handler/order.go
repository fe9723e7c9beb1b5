package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/errnorm"
)

// OrderService is the order surface the handlers need.
type OrderService interface {
	Submit(ctx context.Context, form domain.OrderForm) (domain.Order, error)
	CancelByID(ctx context.Context, id int64) (domain.Order, error)
	Get(ctx context.Context, id int64) (domain.Order, error)
	List(ctx context.Context, f domain.OrderFilter) (domain.Paginated[domain.Order], error)
}

// OrderHandler serves order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// orderDetail adds the display form of the failure reason.
type orderDetail struct {
	domain.Order
	Failure     *errnorm.Normalized `json:"failure,omitempty"`
	Cancellable bool                `json:"cancellable"`
}

func newOrderDetail(o domain.Order) orderDetail {
	d := orderDetail{Order: o, Cancellable: o.CanCancel()}
	if o.FailureReason != "" {
		n := errnorm.Reason(string(o.FailureReason))
		d.Failure = &n
	}
	return d
}

// ListOrders returns one page of orders.
// GET /api/orders?marketId=&status=&side=&outcome=&page=&pageSize=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := domain.OrderFilter{
		MarketID: q.int64Ptr("marketId"),
		Status:   domain.OrderStatus(q.str("status")),
		Side:     domain.OrderSide(q.str("side")),
		Outcome:  domain.Outcome(q.str("outcome")),
		Page:     q.page(),
	}
	switch {
	case q.err != nil:
		badRequest(w, "%v", q.err)
		return
	case f.Status != "" && !f.Status.Valid():
		badRequest(w, "unknown status %q", f.Status)
		return
	case f.Side != "" && !f.Side.Valid():
		badRequest(w, "side must be BUY or SELL")
		return
	case f.Outcome != "" && !f.Outcome.Valid():
		badRequest(w, "outcome must be YES or NO")
		return
	}

	page, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, "list orders", err)
		return
	}
	if page.Data == nil {
		page.Data = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, page)
}

// GetOrder returns one order with its failure reason normalized.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDetail(order))
}

// SubmitOrder validates, signs and submits an order form.
// POST /api/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var form domain.OrderForm
	if err := decodeBody(w, r, &form); err != nil {
		badRequest(w, "%v", err)
		return
	}

	order, err := h.orders.Submit(r.Context(), form)
	if err != nil {
		writeError(w, r, h.logger, "submit order", err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderDetail(order))
}

// CancelOrder cancels an order whose status allows it.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	order, err := h.orders.CancelByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDetail(order))
}
