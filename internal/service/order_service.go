package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/platform/backend"
)

// MessageSigner signs canonical order messages with the connected wallet.
type MessageSigner interface {
	Address() common.Address
	SignMessage(ctx context.Context, msg []byte) (string, error)
}

// OrderBackend is the part of the backend API the order flow uses.
type OrderBackend interface {
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) (domain.Paginated[domain.Order], error)
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest, idempotencyKey string) (domain.Order, error)
	CancelOrder(ctx context.Context, id int64) (domain.Order, error)
}

// FundsChecker evaluates the balance/allowance gate for a BUY.
type FundsChecker interface {
	Check(ctx context.Context, wallet string, spend decimal.Decimal) (domain.FundsAssessment, error)
}

// OrderServiceConfig tunes submission and caching.
type OrderServiceConfig struct {
	SubmitRetries int
	RetryWait     time.Duration
	CacheTTL      time.Duration
}

// OrderService runs the order submission flow: validate, check the market,
// gate funds, sign, submit with an idempotency key, then invalidate cached
// order lists.
type OrderService struct {
	backend OrderBackend
	funds   FundsChecker
	cache   domain.QueryCache
	bus     domain.SignalBus
	audit   domain.AuditStore
	signer  MessageSigner
	cfg     OrderServiceConfig
	logger  *slog.Logger

	newKey   func() string
	newNonce func() string
}

// NewOrderService creates an OrderService. cache, bus and audit may be nil.
func NewOrderService(
	api OrderBackend,
	funds FundsChecker,
	cache domain.QueryCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg OrderServiceConfig,
	logger *slog.Logger,
) *OrderService {
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	return &OrderService{
		backend:  api,
		funds:    funds,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		newKey:   uuid.NewString,
		newNonce: NewNonce,
	}
}

// WithSigner attaches the wallet used to sign orders. Without one, Submit
// fails with domain.ErrWalletNotConnected.
func (s *OrderService) WithSigner(signer MessageSigner) *OrderService {
	s.signer = signer
	return s
}

// Wallet returns the connected wallet address, or "" when none is attached.
func (s *OrderService) Wallet() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Address().Hex()
}

// Submit validates the form and submits a signed order. Each call is one
// user-initiated attempt and gets a fresh idempotency key and nonce; any
// configured retries inside the call reuse both.
func (s *OrderService) Submit(ctx context.Context, form domain.OrderForm) (domain.Order, error) {
	parsed, err := ParseOrderForm(form)
	if err != nil {
		return domain.Order{}, err
	}

	market, err := s.backend.GetMarket(ctx, parsed.MarketID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: load market %d: %w", parsed.MarketID, err)
	}
	switch {
	case market.Closed:
		return domain.Order{}, fmt.Errorf("order_service: market %d: %w", market.ID, domain.ErrMarketClosed)
	case !market.Active:
		return domain.Order{}, fmt.Errorf("order_service: market %d: %w", market.ID, domain.ErrMarketInactive)
	}

	if s.signer == nil {
		return domain.Order{}, domain.ErrWalletNotConnected
	}
	wallet := s.signer.Address().Hex()

	spend, err := parsed.resolve(market)
	if err != nil {
		return domain.Order{}, err
	}

	if parsed.Side == domain.OrderSideBuy && s.funds != nil {
		assessment, err := s.funds.Check(ctx, wallet, spend)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order_service: funds check: %w", err)
		}
		if gateErr := assessment.Err(); gateErr != nil {
			return domain.Order{}, fmt.Errorf("order_service: required %s USDC: %w",
				assessment.Requirement.Required.StringFixed(2), gateErr)
		}
	}

	key := s.newKey()
	msg := parsed.message(s.newNonce())
	canonical, err := CanonicalMessage(msg)
	if err != nil {
		return domain.Order{}, err
	}

	signature, err := s.signer.SignMessage(ctx, []byte(canonical))
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}

	req := domain.CreateOrderRequest{
		MarketID:      parsed.MarketID,
		Side:          parsed.Side,
		Type:          parsed.Type,
		Outcome:       parsed.Outcome,
		Quantity:      parsed.Quantity.Decimal.String(),
		Amount:        msg.Amount,
		Price:         msg.Price,
		WalletAddress: wallet,
		Signature:     signature,
		Nonce:         msg.Nonce,
		Message:       canonical,
	}

	order, err := s.create(ctx, req, key)
	if err != nil {
		s.journal(ctx, "order_submit_failed", map[string]any{
			"idempotency_key": key,
			"market_id":       req.MarketID,
			"side":            string(req.Side),
			"error":           err.Error(),
		})
		s.publish(ctx, domain.OrderEvent{
			Kind:     domain.EventOrderFailed,
			MarketID: req.MarketID,
			Reason:   err.Error(),
			At:       time.Now().UTC(),
		})
		return domain.Order{}, fmt.Errorf("order_service: submit: %w", err)
	}

	s.invalidate(ctx, domain.CacheOrders)
	s.journal(ctx, "order_submitted", map[string]any{
		"order_id":        order.ID,
		"idempotency_key": key,
		"market_id":       req.MarketID,
		"side":            string(req.Side),
		"type":            string(req.Type),
		"outcome":         string(req.Outcome),
		"quantity":        req.Quantity,
		"price":           req.Price,
		"wallet":          wallet,
	})
	s.publish(ctx, domain.OrderEvent{
		Kind:     domain.EventOrderCreated,
		OrderID:  order.ID,
		MarketID: order.MarketID,
		Status:   order.Status,
		At:       time.Now().UTC(),
	})

	s.logger.InfoContext(ctx, "order_service: order submitted",
		slog.Int64("order_id", order.ID),
		slog.Int64("market_id", req.MarketID),
		slog.String("side", string(req.Side)),
		slog.String("quantity", req.Quantity),
		slog.String("status", string(order.Status)),
	)
	return order, nil
}

// create posts the order, retrying transient failures with the same key and
// payload up to the configured number of times.
func (s *OrderService) create(ctx context.Context, req domain.CreateOrderRequest, key string) (domain.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.backend.CreateOrder(ctx, req, key)
		if err == nil {
			return order, nil
		}
		if attempt >= s.cfg.SubmitRetries || !backend.IsRetryable(err) {
			return domain.Order{}, err
		}

		s.logger.WarnContext(ctx, "order_service: submit failed, retrying",
			slog.String("idempotency_key", key),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(s.cfg.RetryWait)
		select {
		case <-ctx.Done():
			t.Stop()
			return domain.Order{}, ctx.Err()
		case <-t.C:
		}
	}
}

// Cancel cancels an order the caller already holds. Orders that are not
// PENDING or QUEUED are rejected locally without contacting the backend.
func (s *OrderService) Cancel(ctx context.Context, order domain.Order) (domain.Order, error) {
	if !order.CanCancel() {
		return domain.Order{}, fmt.Errorf("order %d is %s: %w", order.ID, order.Status, domain.ErrNotCancellable)
	}

	updated, err := s.backend.CancelOrder(ctx, order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel order %d: %w", order.ID, err)
	}

	s.invalidate(ctx, domain.CacheOrders)
	s.journal(ctx, "order_cancelled", map[string]any{
		"order_id": order.ID,
		"status":   string(updated.Status),
	})
	s.publish(ctx, domain.OrderEvent{
		Kind:       domain.EventOrderCancelled,
		OrderID:    order.ID,
		MarketID:   order.MarketID,
		Status:     updated.Status,
		PrevStatus: order.Status,
		At:         time.Now().UTC(),
	})

	s.logger.InfoContext(ctx, "order_service: order cancelled",
		slog.Int64("order_id", order.ID),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

// CancelByID fetches the order and cancels it if its status allows.
func (s *OrderService) CancelByID(ctx context.Context, id int64) (domain.Order, error) {
	order, err := s.backend.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %d: %w", id, err)
	}
	return s.Cancel(ctx, order)
}

// Get returns a single order, read through the query cache.
func (s *OrderService) Get(ctx context.Context, id int64) (domain.Order, error) {
	key := domain.CacheOrders + ":id:" + strconv.FormatInt(id, 10)
	var order domain.Order
	if s.cached(ctx, key, &order) {
		return order, nil
	}

	order, err := s.backend.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %d: %w", id, err)
	}
	s.store(ctx, key, order)
	return order, nil
}

// List returns one page of orders, read through the query cache.
func (s *OrderService) List(ctx context.Context, f domain.OrderFilter) (domain.Paginated[domain.Order], error) {
	key := domain.CacheOrders + ":list:" + orderFilterKey(f)
	var page domain.Paginated[domain.Order]
	if s.cached(ctx, key, &page) {
		return page, nil
	}

	page, err := s.backend.ListOrders(ctx, f)
	if err != nil {
		return domain.Paginated[domain.Order]{}, fmt.Errorf("order_service: list orders: %w", err)
	}
	s.store(ctx, key, page)
	return page, nil
}

func orderFilterKey(f domain.OrderFilter) string {
	return backend.OrderParams(f).Encode()
}

func (s *OrderService) cached(ctx context.Context, key string, out any) bool {
	return cacheGet(ctx, s.cache, s.logger, key, out)
}

func (s *OrderService) store(ctx context.Context, key string, v any) {
	cacheSet(ctx, s.cache, s.logger, key, v, s.cfg.CacheTTL)
}

func (s *OrderService) invalidate(ctx context.Context, prefix string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
		s.logger.WarnContext(ctx, "order_service: cache invalidate failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) publish(ctx context.Context, evt domain.OrderEvent) {
	publishEvent(ctx, s.bus, s.logger, domain.ChannelOrders, evt)
}

func (s *OrderService) journal(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// cacheGet decodes a cached value into out. Misses and decode failures both
// report false.
func cacheGet(ctx context.Context, cache domain.QueryCache, logger *slog.Logger, key string, out any) bool {
	if cache == nil {
		return false
	}
	raw, err := cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "cache: get failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func cacheSet(ctx context.Context, cache domain.QueryCache, logger *slog.Logger, key string, v any, ttl time.Duration) {
	if cache == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := cache.Set(ctx, key, raw, ttl); err != nil {
		logger.WarnContext(ctx, "cache: set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func publishEvent(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, evt any) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "bus: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
