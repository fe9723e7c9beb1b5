package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// MarketService is the discovery surface the market handlers need.
type MarketService interface {
	ListEvents(ctx context.Context, f domain.EventFilter) (domain.Paginated[domain.Event], error)
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	EventMarkets(ctx context.Context, id int64) ([]domain.Market, error)
	SyncEvents(ctx context.Context, limit int) (domain.SyncResult, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) (domain.Paginated[domain.Market], error)
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
}

// MarketHandler serves event and market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListEvents returns one page of events.
// GET /api/events?active=true&search=...&page=1&pageSize=21
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := domain.EventFilter{
		Active: q.boolPtr("active"),
		Search: q.str("search"),
		Page:   q.page(),
	}
	if q.err != nil {
		badRequest(w, "%v", q.err)
		return
	}

	page, err := h.markets.ListEvents(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetEvent returns one event.
// GET /api/events/{id}
func (h *MarketHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	event, err := h.markets.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// EventMarkets returns the deduplicated markets of one event.
// GET /api/events/{id}/markets
func (h *MarketHandler) EventMarkets(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	markets, err := h.markets.EventMarkets(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "list event markets", err)
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": markets})
}

// SyncEvents queues a backend event sync.
// POST /api/events/sync?limit=100
func (h *MarketHandler) SyncEvents(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	limit := q.int("limit")
	if q.err != nil {
		badRequest(w, "%v", q.err)
		return
	}
	res, err := h.markets.SyncEvents(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, "sync events", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// ListMarkets returns one page of markets.
// GET /api/markets?eventId=&active=&closed=&search=&volumeMin=...&page=
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := domain.MarketFilter{
		EventID:      q.int64Ptr("eventId"),
		Active:       q.boolPtr("active"),
		Closed:       q.boolPtr("closed"),
		Search:       q.str("search"),
		VolumeMin:    q.floatPtr("volumeMin"),
		VolumeMax:    q.floatPtr("volumeMax"),
		LiquidityMin: q.floatPtr("liquidityMin"),
		LiquidityMax: q.floatPtr("liquidityMax"),
		CreatedAtMin: q.timePtr("createdAtMin"),
		CreatedAtMax: q.timePtr("createdAtMax"),
		UpdatedAtMin: q.timePtr("updatedAtMin"),
		UpdatedAtMax: q.timePtr("updatedAtMax"),
		Page:         q.page(),
	}
	if q.err != nil {
		badRequest(w, "%v", q.err)
		return
	}

	page, err := h.markets.ListMarkets(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, "list markets", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}
