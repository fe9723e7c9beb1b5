package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// OrderParams encodes an order filter as query parameters.
func OrderParams(f domain.OrderFilter) url.Values {
	params := url.Values{}
	if f.MarketID != nil {
		params.Set("marketId", strconv.FormatInt(*f.MarketID, 10))
	}
	if f.Status != "" {
		params.Set("status", string(f.Status))
	}
	if f.Side != "" {
		params.Set("side", string(f.Side))
	}
	if f.Outcome != "" {
		params.Set("outcome", string(f.Outcome))
	}
	setPageParams(params, f.Page)
	return params
}

// ListOrders returns one page of orders matching the filter.
func (c *Client) ListOrders(ctx context.Context, f domain.OrderFilter) (domain.Paginated[domain.Order], error) {
	var page apiPage[APIOrder]
	if err := c.doGet(ctx, "/orders", OrderParams(f), &page); err != nil {
		return domain.Paginated[domain.Order]{}, fmt.Errorf("backend: list orders: %w", err)
	}

	out := domain.Paginated[domain.Order]{Meta: page.Meta, Data: make([]domain.Order, 0, len(page.Data))}
	for i := range page.Data {
		out.Data = append(out.Data, page.Data[i].ToDomainOrder())
	}
	return out, nil
}

// GetOrder returns a single order by its ID.
func (c *Client) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	var o APIOrder
	if err := c.doGet(ctx, "/orders/"+strconv.FormatInt(id, 10), nil, &o); err != nil {
		return domain.Order{}, fmt.Errorf("backend: get order %d: %w", id, err)
	}
	return o.ToDomainOrder(), nil
}

// CreateOrder posts a signed order. The idempotency key is sent as a header;
// resubmitting with the same key yields the same logical order.
func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest, idempotencyKey string) (domain.Order, error) {
	headers := map[string]string{IdempotencyHeader: idempotencyKey}

	var o APIOrder
	if err := c.do(ctx, http.MethodPost, "/orders", req, headers, &o); err != nil {
		return domain.Order{}, fmt.Errorf("backend: create order: %w", err)
	}
	return o.ToDomainOrder(), nil
}

// CancelOrder asks the backend to cancel an order and returns its new state.
func (c *Client) CancelOrder(ctx context.Context, id int64) (domain.Order, error) {
	var o APIOrder
	if err := c.do(ctx, http.MethodDelete, "/orders/"+strconv.FormatInt(id, 10), nil, nil, &o); err != nil {
		return domain.Order{}, fmt.Errorf("backend: cancel order %d: %w", id, err)
	}
	return o.ToDomainOrder(), nil
}
