package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/errnorm"
)

// Notifier delivers alerts for selected event types.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// OrderLister lists and fetches orders.
type OrderLister interface {
	ListOrders(ctx context.Context, f domain.OrderFilter) (domain.Paginated[domain.Order], error)
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
}

// openStatuses are polled each tick; orders leave these lists once they
// reach a terminal state.
var openStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusQueued,
	domain.OrderStatusProcessing,
	domain.OrderStatusPartiallyFilled,
}

// Tracker polls open orders and reports status changes on the bus and to the
// notifier. The order listing has no wallet filter, so every open order on
// the backend is followed.
type Tracker struct {
	orders   OrderLister
	cache    domain.QueryCache
	bus      domain.SignalBus
	notifier Notifier
	interval time.Duration
	maxPages int
	logger   *slog.Logger

	mu    sync.Mutex
	known map[int64]domain.Order
}

// NewTracker creates a Tracker. cache, bus and notifier may be nil.
func NewTracker(
	orders OrderLister,
	cache domain.QueryCache,
	bus domain.SignalBus,
	notifier Notifier,
	interval time.Duration,
	maxPages int,
	logger *slog.Logger,
) *Tracker {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Tracker{
		orders:   orders,
		cache:    cache,
		bus:      bus,
		notifier: notifier,
		interval: interval,
		maxPages: maxPages,
		logger:   logger,
		known:    make(map[int64]domain.Order),
	}
}

// Run polls until ctx is cancelled. Orders announced on the bus as created
// are watched from their first status, so a fill between two polls is still
// reported.
func (t *Tracker) Run(ctx context.Context) error {
	var created <-chan []byte
	if t.bus != nil {
		ch, err := t.bus.Subscribe(ctx, domain.ChannelOrders)
		if err != nil {
			t.logger.WarnContext(ctx, "tracker: subscribe failed", slog.String("error", err.Error()))
		} else {
			created = ch
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if err := t.Poll(ctx); err != nil {
		t.logger.WarnContext(ctx, "tracker: poll failed", slog.String("error", err.Error()))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-created:
			if !ok {
				created = nil
				continue
			}
			t.handleEvent(payload)
		case <-ticker.C:
			if err := t.Poll(ctx); err != nil {
				t.logger.WarnContext(ctx, "tracker: poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Watch starts tracking an order from its current status.
func (t *Tracker) Watch(o domain.Order) {
	if o.ID == 0 || o.Status.IsTerminal() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.known[o.ID]; !ok {
		t.known[o.ID] = o
	}
}

func (t *Tracker) handleEvent(payload []byte) {
	var evt domain.OrderEvent
	if err := json.Unmarshal(payload, &evt); err != nil || evt.Kind != domain.EventOrderCreated {
		return
	}
	t.Watch(domain.Order{ID: evt.OrderID, MarketID: evt.MarketID, Status: evt.Status})
}

// Poll runs one tracking pass: list open orders, diff against the previous
// pass, and resolve orders that left the open lists.
func (t *Tracker) Poll(ctx context.Context) error {
	open, err := t.listOpen(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	prev := make(map[int64]domain.Order, len(t.known))
	for id, o := range t.known {
		prev[id] = o
	}
	t.mu.Unlock()

	next := make(map[int64]domain.Order, len(open))
	changed := false
	for _, o := range open {
		next[o.ID] = o
		if old, ok := prev[o.ID]; ok && old.Status != o.Status {
			t.report(ctx, old, o)
			changed = true
		}
	}

	for id, old := range prev {
		if _, still := next[id]; still {
			continue
		}
		cur, err := t.orders.GetOrder(ctx, id)
		if err != nil {
			t.logger.WarnContext(ctx, "tracker: resolve order failed",
				slog.Int64("order_id", id),
				slog.String("error", err.Error()),
			)
			next[id] = old
			continue
		}
		if cur.Status != old.Status {
			t.report(ctx, old, cur)
			changed = true
		}
		if !cur.Status.IsTerminal() {
			next[id] = cur
		}
	}

	t.mu.Lock()
	for id, o := range t.known {
		if _, seen := prev[id]; !seen {
			if _, ok := next[id]; !ok {
				next[id] = o
			}
		}
	}
	t.known = next
	t.mu.Unlock()

	if changed && t.cache != nil {
		if err := t.cache.InvalidatePrefix(ctx, domain.CacheOrders); err != nil {
			t.logger.WarnContext(ctx, "tracker: cache invalidate failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Tracked returns the number of orders currently being watched.
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.known)
}

func (t *Tracker) listOpen(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	for _, status := range openStatuses {
		page := 1
		for n := 0; n < t.maxPages; n++ {
			res, err := t.orders.ListOrders(ctx, domain.OrderFilter{
				Status: status,
				Page:   domain.Page{Page: page, PageSize: domain.DefaultPageSize},
			})
			if err != nil {
				return nil, fmt.Errorf("tracker: list %s orders: %w", status, err)
			}
			out = append(out, res.Data...)
			if !res.Meta.HasNext() {
				break
			}
			page = res.Meta.NextPage()
		}
	}
	return out, nil
}

func (t *Tracker) report(ctx context.Context, old, cur domain.Order) {
	if !old.Status.CanTransitionTo(cur.Status) {
		t.logger.WarnContext(ctx, "tracker: unexpected status transition",
			slog.Int64("order_id", cur.ID),
			slog.String("from", string(old.Status)),
			slog.String("to", string(cur.Status)),
		)
	}

	reason := ""
	if cur.Status == domain.OrderStatusFailed && cur.FailureReason != "" {
		reason = errnorm.Reason(string(cur.FailureReason)).Message
	}

	publishEvent(ctx, t.bus, t.logger, domain.ChannelOrders, domain.OrderEvent{
		Kind:       domain.EventOrderStatus,
		OrderID:    cur.ID,
		MarketID:   cur.MarketID,
		Status:     cur.Status,
		PrevStatus: old.Status,
		Reason:     reason,
		At:         time.Now().UTC(),
	})

	t.logger.InfoContext(ctx, "tracker: order status changed",
		slog.Int64("order_id", cur.ID),
		slog.String("from", string(old.Status)),
		slog.String("to", string(cur.Status)),
	)

	if t.notifier == nil || !cur.Status.IsTerminal() {
		return
	}
	event := "order." + strings.ToLower(string(cur.Status))
	title := fmt.Sprintf("Order %d %s", cur.ID, strings.ToLower(string(cur.Status)))
	msg := fmt.Sprintf("%s %s %s x %s", cur.Side, cur.Outcome, marketLabel(cur), cur.Quantity.String())
	if cur.Status == domain.OrderStatusFilled && cur.AverageFillPrice.Valid {
		msg += " @ " + cur.AverageFillPrice.Decimal.String()
	}
	if reason != "" {
		msg += "\n" + reason
	}
	if err := t.notifier.Notify(ctx, event, title, msg); err != nil {
		t.logger.WarnContext(ctx, "tracker: notify failed",
			slog.Int64("order_id", cur.ID),
			slog.String("error", err.Error()),
		)
	}
}

func marketLabel(o domain.Order) string {
	if o.Market != nil && o.Market.Question != "" {
		return o.Market.Question
	}
	return fmt.Sprintf("market %d", o.MarketID)
}
