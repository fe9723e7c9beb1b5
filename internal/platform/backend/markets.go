package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// MarketParams encodes a market filter as query parameters.
func MarketParams(f domain.MarketFilter) url.Values {
	params := url.Values{}
	if f.EventID != nil {
		params.Set("eventId", strconv.FormatInt(*f.EventID, 10))
	}
	setBoolParam(params, "active", f.Active)
	setBoolParam(params, "closed", f.Closed)
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	setFloatParam(params, "volumeMin", f.VolumeMin)
	setFloatParam(params, "volumeMax", f.VolumeMax)
	setFloatParam(params, "liquidityMin", f.LiquidityMin)
	setFloatParam(params, "liquidityMax", f.LiquidityMax)
	setTimeParam(params, "createdAtMin", f.CreatedAtMin)
	setTimeParam(params, "createdAtMax", f.CreatedAtMax)
	setTimeParam(params, "updatedAtMin", f.UpdatedAtMin)
	setTimeParam(params, "updatedAtMax", f.UpdatedAtMax)
	setPageParams(params, f.Page)
	return params
}

// ListMarkets returns one page of markets matching the filter.
func (c *Client) ListMarkets(ctx context.Context, f domain.MarketFilter) (domain.Paginated[domain.Market], error) {
	var page apiPage[APIMarket]
	if err := c.doGet(ctx, "/markets", MarketParams(f), &page); err != nil {
		return domain.Paginated[domain.Market]{}, fmt.Errorf("backend: list markets: %w", err)
	}

	out := domain.Paginated[domain.Market]{Meta: page.Meta, Data: make([]domain.Market, 0, len(page.Data))}
	for i := range page.Data {
		out.Data = append(out.Data, page.Data[i].ToDomainMarket())
	}
	return out, nil
}

// GetMarket returns a single market by its ID.
func (c *Client) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	var m APIMarket
	if err := c.doGet(ctx, "/markets/"+strconv.FormatInt(id, 10), nil, &m); err != nil {
		return domain.Market{}, fmt.Errorf("backend: get market %d: %w", id, err)
	}
	return m.ToDomainMarket(), nil
}

func setTimeParam(params url.Values, key string, v *time.Time) {
	if v != nil {
		params.Set(key, v.UTC().Format(time.RFC3339))
	}
}
