package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// ListEvents returns one page of events.
func (c *Client) ListEvents(ctx context.Context, f domain.EventFilter) (domain.Paginated[domain.Event], error) {
	params := url.Values{}
	setBoolParam(params, "active", f.Active)
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	setPageParams(params, f.Page)

	var page apiPage[APIEvent]
	if err := c.doGet(ctx, "/events", params, &page); err != nil {
		return domain.Paginated[domain.Event]{}, fmt.Errorf("backend: list events: %w", err)
	}

	out := domain.Paginated[domain.Event]{Meta: page.Meta, Data: make([]domain.Event, 0, len(page.Data))}
	for i := range page.Data {
		out.Data = append(out.Data, page.Data[i].ToDomainEvent())
	}
	return out, nil
}

// GetEvent returns a single event with its markets.
func (c *Client) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	var ev APIEvent
	if err := c.doGet(ctx, "/events/"+strconv.FormatInt(id, 10), nil, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("backend: get event %d: %w", id, err)
	}
	return ev.ToDomainEvent(), nil
}

// ListEventMarkets returns every market that belongs to an event.
func (c *Client) ListEventMarkets(ctx context.Context, id int64) ([]domain.Market, error) {
	var ms []APIMarket
	if err := c.doGet(ctx, fmt.Sprintf("/events/%d/markets", id), nil, &ms); err != nil {
		return nil, fmt.Errorf("backend: list markets of event %d: %w", id, err)
	}
	out := make([]domain.Market, 0, len(ms))
	for i := range ms {
		out = append(out, ms[i].ToDomainMarket())
	}
	return out, nil
}

// SyncEvents asks the backend to pull up to limit events from upstream.
// A zero limit leaves the choice to the backend.
func (c *Client) SyncEvents(ctx context.Context, limit int) (domain.SyncResult, error) {
	path := "/events/sync"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var res domain.SyncResult
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &res); err != nil {
		return domain.SyncResult{}, fmt.Errorf("backend: sync events: %w", err)
	}
	return res, nil
}

func setPageParams(params url.Values, p domain.Page) {
	if p.Page > 0 {
		params.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
}

func setBoolParam(params url.Values, key string, v *bool) {
	if v != nil {
		params.Set(key, strconv.FormatBool(*v))
	}
}

func setFloatParam(params url.Values, key string, v *float64) {
	if v != nil {
		params.Set(key, strconv.FormatFloat(*v, 'f', -1, 64))
	}
}
