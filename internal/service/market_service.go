package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/platform/backend"
)

// MarketBackend is the part of the backend API used for discovery.
type MarketBackend interface {
	ListEvents(ctx context.Context, f domain.EventFilter) (domain.Paginated[domain.Event], error)
	GetEvent(ctx context.Context, id int64) (domain.Event, error)
	ListEventMarkets(ctx context.Context, id int64) ([]domain.Market, error)
	SyncEvents(ctx context.Context, limit int) (domain.SyncResult, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) (domain.Paginated[domain.Market], error)
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
}

// MarketService serves event and market listings through the query cache.
type MarketService struct {
	backend  MarketBackend
	cache    domain.QueryCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(api MarketBackend, cache domain.QueryCache, cacheTTL time.Duration, logger *slog.Logger) *MarketService {
	return &MarketService{
		backend:  api,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListEvents returns one page of events.
func (s *MarketService) ListEvents(ctx context.Context, f domain.EventFilter) (domain.Paginated[domain.Event], error) {
	params := url.Values{}
	if f.Active != nil {
		params.Set("active", strconv.FormatBool(*f.Active))
	}
	params.Set("search", f.Search)
	params.Set("page", strconv.Itoa(f.Page.Page))
	params.Set("pageSize", strconv.Itoa(f.Page.PageSize))
	params.Set("limit", strconv.Itoa(f.Page.Limit))
	key := domain.CacheEvents + ":list:" + params.Encode()

	var page domain.Paginated[domain.Event]
	if cacheGet(ctx, s.cache, s.logger, key, &page) {
		return page, nil
	}
	page, err := s.backend.ListEvents(ctx, f)
	if err != nil {
		return domain.Paginated[domain.Event]{}, fmt.Errorf("market_service: list events: %w", err)
	}
	cacheSet(ctx, s.cache, s.logger, key, page, s.cacheTTL)
	return page, nil
}

// GetEvent returns one event.
func (s *MarketService) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	key := domain.CacheEvents + ":id:" + strconv.FormatInt(id, 10)
	var ev domain.Event
	if cacheGet(ctx, s.cache, s.logger, key, &ev) {
		return ev, nil
	}
	ev, err := s.backend.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("market_service: get event %d: %w", id, err)
	}
	cacheSet(ctx, s.cache, s.logger, key, ev, s.cacheTTL)
	return ev, nil
}

// EventMarkets returns the markets of an event, deduplicated by id and
// newest first.
func (s *MarketService) EventMarkets(ctx context.Context, id int64) ([]domain.Market, error) {
	key := domain.CacheEvents + ":markets:" + strconv.FormatInt(id, 10)
	var markets []domain.Market
	if cacheGet(ctx, s.cache, s.logger, key, &markets) {
		return markets, nil
	}
	markets, err := s.backend.ListEventMarkets(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market_service: event %d markets: %w", id, err)
	}
	markets = domain.DedupeMarkets(markets)
	cacheSet(ctx, s.cache, s.logger, key, markets, s.cacheTTL)
	return markets, nil
}

// SyncEvents asks the backend to pull up to limit events from the upstream
// exchange. Cached events and markets are dropped.
func (s *MarketService) SyncEvents(ctx context.Context, limit int) (domain.SyncResult, error) {
	res, err := s.backend.SyncEvents(ctx, limit)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("market_service: sync events: %w", err)
	}
	for _, prefix := range []string{domain.CacheEvents, domain.CacheMarkets} {
		if s.cache == nil {
			break
		}
		if err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("prefix", prefix),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.InfoContext(ctx, "market_service: event sync queued",
		slog.String("job_id", res.JobID),
		slog.Int("limit", limit),
	)
	return res, nil
}

// ListMarkets returns one page of markets matching f, deduplicated by id.
func (s *MarketService) ListMarkets(ctx context.Context, f domain.MarketFilter) (domain.Paginated[domain.Market], error) {
	key := domain.CacheMarkets + ":list:" + backend.MarketParams(f).Encode()
	var page domain.Paginated[domain.Market]
	if cacheGet(ctx, s.cache, s.logger, key, &page) {
		return page, nil
	}
	page, err := s.backend.ListMarkets(ctx, f)
	if err != nil {
		return domain.Paginated[domain.Market]{}, fmt.Errorf("market_service: list markets: %w", err)
	}
	page.Data = domain.DedupeMarkets(page.Data)
	cacheSet(ctx, s.cache, s.logger, key, page, s.cacheTTL)
	return page, nil
}

// GetMarket returns one market. Market state gates order submission, so it
// is always read from the backend.
func (s *MarketService) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	m, err := s.backend.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %d: %w", id, err)
	}
	return m, nil
}
