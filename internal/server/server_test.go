package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polydesk/internal/cache/memory"
	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/server"
	"github.com/alanyoungcy/polydesk/internal/server/handler"
	"github.com/alanyoungcy/polydesk/internal/server/ws"
	"github.com/alanyoungcy/polydesk/internal/uistate"
)

type fakeMarkets struct {
	marketFilter domain.MarketFilter
	syncLimit    int
}

func (f *fakeMarkets) ListEvents(_ context.Context, _ domain.EventFilter) (domain.Paginated[domain.Event], error) {
	return domain.Paginated[domain.Event]{Data: []domain.Event{{ID: 1, Title: "Election"}}}, nil
}

func (f *fakeMarkets) GetEvent(_ context.Context, id int64) (domain.Event, error) {
	if id != 1 {
		return domain.Event{}, fmt.Errorf("backend: get event %d: %w", id, &domain.APIError{StatusCode: 404, Message: "Event not found", Kind: domain.ErrNotFound})
	}
	return domain.Event{ID: 1, Title: "Election"}, nil
}

func (f *fakeMarkets) EventMarkets(context.Context, int64) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeMarkets) SyncEvents(_ context.Context, limit int) (domain.SyncResult, error) {
	f.syncLimit = limit
	return domain.SyncResult{JobID: "job-1", Message: "queued"}, nil
}

func (f *fakeMarkets) ListMarkets(_ context.Context, mf domain.MarketFilter) (domain.Paginated[domain.Market], error) {
	f.marketFilter = mf
	return domain.Paginated[domain.Market]{Data: []domain.Market{{ID: 7}}}, nil
}

func (f *fakeMarkets) GetMarket(_ context.Context, id int64) (domain.Market, error) {
	return domain.Market{ID: id}, nil
}

type fakeOrders struct {
	submitErr error
	orders    map[int64]domain.Order
}

func (f *fakeOrders) Submit(_ context.Context, form domain.OrderForm) (domain.Order, error) {
	if f.submitErr != nil {
		return domain.Order{}, f.submitErr
	}
	return domain.Order{ID: 99, MarketID: form.MarketID, Status: domain.OrderStatusPending}, nil
}

func (f *fakeOrders) CancelByID(_ context.Context, id int64) (domain.Order, error) {
	o := f.orders[id]
	if !o.CanCancel() {
		return domain.Order{}, fmt.Errorf("order_service: order %d is %s: %w", id, o.Status, domain.ErrNotCancellable)
	}
	o.Status = domain.OrderStatusCancelled
	return o, nil
}

func (f *fakeOrders) Get(_ context.Context, id int64) (domain.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) List(context.Context, domain.OrderFilter) (domain.Paginated[domain.Order], error) {
	return domain.Paginated[domain.Order]{}, nil
}

type fakeFunds struct{}

func (fakeFunds) Assess(_ context.Context, wallet string, spend decimal.Decimal) (domain.FundsAssessment, error) {
	bal := decimal.NewFromInt(100)
	return domain.FundsAssessment{Wallet: wallet, Balance: &bal, Decision: domain.GateNeedsApproval}, nil
}

func (fakeFunds) Approve(context.Context, string, decimal.Decimal) (domain.ApprovalResult, error) {
	return domain.ApprovalResult{}, domain.ErrApprovalPending
}

type env struct {
	srv     *httptest.Server
	markets *fakeMarkets
	bus     *memory.SignalBus
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newEnv(t *testing.T, cfg server.Config) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := discard()
	markets := &fakeMarkets{}
	orders := &fakeOrders{orders: map[int64]domain.Order{
		1: {ID: 1, Status: domain.OrderStatusQueued},
		2: {ID: 2, Status: domain.OrderStatusFilled},
		3: {ID: 3, Status: domain.OrderStatusFailed, FailureReason: `{"message":"insufficient balance"}`},
	}}
	bus := memory.NewSignalBus()
	hub := ws.NewHub(bus, ws.Config{}, logger)
	go hub.Run(ctx)

	h := server.NewHandler(cfg, server.Handlers{
		Health:  handler.NewHealthHandler(nil),
		Markets: handler.NewMarketHandler(markets, logger),
		Orders:  handler.NewOrderHandler(orders, logger),
		Funds:   handler.NewFundsHandler(fakeFunds{}, logger),
		State:   handler.NewStateHandler(uistate.NewStore(ctx, nil, logger), logger),
		Hub:     hub,
	}, memory.NewRateLimiter(), logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &env{srv: srv, markets: markets, bus: bus}
}

func (e *env) do(t *testing.T, method, path, body string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func errorOf(body map[string]any) map[string]any {
	e, _ := body["error"].(map[string]any)
	return e
}

func TestAuth(t *testing.T) {
	e := newEnv(t, server.Config{APIKey: "secret"})

	resp, _ := e.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/api/markets", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing authentication token", errorOf(body)["message"])

	resp, _ = e.do(t, http.MethodGet, "/api/markets", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestListMarkets_ParsesFilters(t *testing.T) {
	e := newEnv(t, server.Config{})

	resp, _ := e.do(t, http.MethodGet, "/api/markets?eventId=4&active=true&volumeMin=1000&search=rain&page=2&pageSize=21", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f := e.markets.marketFilter
	require.NotNil(t, f.EventID)
	assert.Equal(t, int64(4), *f.EventID)
	require.NotNil(t, f.Active)
	assert.True(t, *f.Active)
	require.NotNil(t, f.VolumeMin)
	assert.Equal(t, 1000.0, *f.VolumeMin)
	assert.Equal(t, "rain", f.Search)
	assert.Equal(t, domain.Page{Page: 2, PageSize: 21}, f.Page)
}

func TestListMarkets_BadQuery(t *testing.T) {
	e := newEnv(t, server.Config{})
	resp, body := e.do(t, http.MethodGet, "/api/markets?active=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorOf(body)["message"], "active")
}

func TestGetEvent_NotFoundIsNormalized(t *testing.T) {
	e := newEnv(t, server.Config{})
	resp, body := e.do(t, http.MethodGet, "/api/events/5", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Event not found", errorOf(body)["message"])
}

func TestSyncEvents(t *testing.T) {
	e := newEnv(t, server.Config{})
	resp, body := e.do(t, http.MethodPost, "/api/events/sync?limit=50", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, 50, e.markets.syncLimit)
}

func TestSubmitOrder(t *testing.T) {
	e := newEnv(t, server.Config{})
	resp, body := e.do(t, http.MethodPost, "/api/orders",
		`{"marketId":7,"side":"BUY","type":"MARKET","outcome":"YES","amount":"10"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(99), body["id"])
	assert.Equal(t, true, body["cancellable"])

	resp, _ = e.do(t, http.MethodPost, "/api/orders", `{"marketId":7,"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelOrder(t *testing.T) {
	e := newEnv(t, server.Config{})

	resp, body := e.do(t, http.MethodDelete, "/api/orders/1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", body["status"])

	resp, _ = e.do(t, http.MethodDelete, "/api/orders/2", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = e.do(t, http.MethodDelete, "/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetOrder_FailureReasonNormalized(t *testing.T) {
	e := newEnv(t, server.Config{})
	resp, body := e.do(t, http.MethodGet, "/api/orders/3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	failure, ok := body["failure"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, failure["message"])
	assert.Equal(t, false, body["cancellable"])
}

func TestFunds(t *testing.T) {
	e := newEnv(t, server.Config{})

	resp, _ := e.do(t, http.MethodGet, "/api/funds/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/api/funds/0x00000000000000000000000000000000000000aa?spend=10", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "needs_approval", body["decision"])

	resp, _ = e.do(t, http.MethodPost, "/api/funds/approve",
		`{"address":"0x00000000000000000000000000000000000000aa","spend":"10"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestState(t *testing.T) {
	e := newEnv(t, server.Config{})

	resp, body := e.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "markets", body["activeTab"])

	resp, body = e.do(t, http.MethodPost, "/api/state/actions", `{"type":"set_tab","tab":"orders"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "orders", body["activeTab"])

	resp, _ = e.do(t, http.MethodPost, "/api/state/actions", `{"type":"set_theme","theme":"neon"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, server.Config{RateLimit: 2})
	for range 2 {
		resp, _ := e.do(t, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := e.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Rate Limited", errorOf(body)["title"])
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestWebsocketRelaysBusEvents(t *testing.T) {
	e := newEnv(t, server.Config{})

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])

	payload, _ := json.Marshal(domain.OrderEvent{Kind: domain.EventOrderStatus, OrderID: 5, Status: domain.OrderStatusFilled})
	require.NoError(t, e.bus.Publish(context.Background(), domain.ChannelOrders, payload))

	var frame ws.Envelope
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "event", frame.Type)
	assert.Equal(t, domain.ChannelOrders, frame.Channel)

	var evt domain.OrderEvent
	require.NoError(t, json.Unmarshal(frame.Data, &evt))
	assert.Equal(t, int64(5), evt.OrderID)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		&domain.ValidationError{Problems: []string{"x"}}:            http.StatusBadRequest,
		fmt.Errorf("wrap: %w", domain.ErrNotFound):                  http.StatusNotFound,
		domain.ErrRateLimited:                                       http.StatusTooManyRequests,
		domain.ErrMarketClosed:                                      http.StatusConflict,
		domain.ErrInsufficientAllowance:                             http.StatusConflict,
		domain.ErrWalletNotConnected:                                http.StatusPreconditionFailed,
		&domain.APIError{StatusCode: 503, Kind: domain.ErrUpstream}: http.StatusBadGateway,
		context.DeadlineExceeded:                                    http.StatusGatewayTimeout,
		fmt.Errorf("boom"):                                          http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, handler.StatusFor(err), err.Error())
	}
}
