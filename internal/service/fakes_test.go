package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type createCall struct {
	req domain.CreateOrderRequest
	key string
}

// fakeAPI is an in-memory backend for the order, market and tracker flows.
type fakeAPI struct {
	mu sync.Mutex

	markets     map[int64]domain.Market
	orders      map[int64]domain.Order
	eventMkts   []domain.Market
	createErrs  []error
	nextID      int64
	createCalls []createCall
	cancelCalls []int64
	getCalls    int
	listCalls   int
	listPages   map[domain.OrderStatus][]domain.Paginated[domain.Order]
	allPages    []domain.Paginated[domain.Order]
	syncLimit   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		markets: make(map[int64]domain.Market),
		orders:  make(map[int64]domain.Order),
		nextID:  100,
	}
}

func (f *fakeAPI) GetMarket(_ context.Context, id int64) (domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.markets[id]
	if !ok {
		return domain.Market{}, &domain.APIError{StatusCode: 404, Message: "Market not found", Kind: domain.ErrNotFound}
	}
	return m, nil
}

func (f *fakeAPI) ListOrders(_ context.Context, flt domain.OrderFilter) (domain.Paginated[domain.Order], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	pages := f.allPages
	if f.listPages != nil {
		pages = f.listPages[flt.Status]
	}
	idx := flt.Page.Page - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(pages) {
		return domain.Paginated[domain.Order]{Meta: domain.PageMeta{CurrentPage: flt.Page.Page, TotalPages: len(pages)}}, nil
	}
	return pages[idx], nil
}

func (f *fakeAPI) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, &domain.APIError{StatusCode: 404, Message: "Order not found", Kind: domain.ErrNotFound}
	}
	return o, nil
}

func (f *fakeAPI) CreateOrder(_ context.Context, req domain.CreateOrderRequest, key string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, createCall{req: req, key: key})
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return domain.Order{}, err
		}
	}
	f.nextID++
	o := domain.Order{
		ID:             f.nextID,
		IdempotencyKey: key,
		MarketID:       req.MarketID,
		Side:           req.Side,
		Type:           req.Type,
		Outcome:        req.Outcome,
		Quantity:       decimal.RequireFromString(req.Quantity),
		Status:         domain.OrderStatusPending,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeAPI) CancelOrder(_ context.Context, id int64) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, id)
	o := f.orders[id]
	o.ID = id
	o.Status = domain.OrderStatusCancelled
	f.orders[id] = o
	return o, nil
}

func (f *fakeAPI) ListEvents(context.Context, domain.EventFilter) (domain.Paginated[domain.Event], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return domain.Paginated[domain.Event]{
		Data: []domain.Event{{ID: 1, Title: "Election"}},
		Meta: domain.PageMeta{Total: 1, PerPage: 21, CurrentPage: 1, TotalPages: 1},
	}, nil
}

func (f *fakeAPI) GetEvent(_ context.Context, id int64) (domain.Event, error) {
	return domain.Event{ID: id, Title: "Election"}, nil
}

func (f *fakeAPI) ListEventMarkets(context.Context, int64) ([]domain.Market, error) {
	return f.eventMkts, nil
}

func (f *fakeAPI) SyncEvents(_ context.Context, limit int) (domain.SyncResult, error) {
	f.syncLimit = limit
	return domain.SyncResult{JobID: "job-1", Message: "queued"}, nil
}

func (f *fakeAPI) ListMarkets(context.Context, domain.MarketFilter) (domain.Paginated[domain.Market], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	data := make([]domain.Market, 0, len(f.markets))
	for _, m := range f.markets {
		data = append(data, m)
	}
	return domain.Paginated[domain.Market]{Data: data, Meta: domain.PageMeta{CurrentPage: 1, TotalPages: 1}}, nil
}

func (f *fakeAPI) creates() []createCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createCall(nil), f.createCalls...)
}

// fakeSigner records the messages it signs.
type fakeSigner struct {
	mu       sync.Mutex
	addr     common.Address
	err      error
	messages []string
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{addr: common.HexToAddress("0x00000000000000000000000000000000000000b1")}
}

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) SignMessage(_ context.Context, msg []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, string(msg))
	if s.err != nil {
		return "", s.err
	}
	return "0xsig", nil
}

func (s *fakeSigner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeFunds returns a fixed gate decision.
type fakeFunds struct {
	decision domain.GateDecision
	spends   []decimal.Decimal
}

func (f *fakeFunds) Check(_ context.Context, wallet string, spend decimal.Decimal) (domain.FundsAssessment, error) {
	f.spends = append(f.spends, spend)
	return domain.FundsAssessment{
		Wallet:      wallet,
		Decision:    f.decision,
		Requirement: domain.NewFundsRequirement(spend, decimal.RequireFromString("0.01"), decimal.Zero),
	}, nil
}

// fakeAudit records journal entries.
type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	bodies []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.bodies = append(n.bodies, message)
	return nil
}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
