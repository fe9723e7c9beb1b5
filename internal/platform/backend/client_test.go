package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/platform/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *backend.Client {
	return backend.NewClient(srv.URL, backend.WithRetryWait(time.Millisecond))
}

const marketJSON = `{
	"id": 7, "externalId": "ext-7", "conditionId": "0xcond", "eventId": 3,
	"question": "Will it rain?", "outcomeYesPrice": "0.65", "outcomeNoPrice": "0.35",
	"volume": 1523000.5, "liquidity": "2300", "active": "true", "closed": false,
	"tokens": [{"id": 1, "tokenId": "tok-yes", "outcome": "Yes", "price": "0.65"}],
	"createdAt": "2026-01-01T00:00:00.000Z", "updatedAt": "2026-01-02T00:00:00Z"
}`

func TestListMarkets_FiltersAndEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("active"))
		assert.Equal(t, "false", q.Get("closed"))
		assert.Equal(t, "rain", q.Get("search"))
		assert.Equal(t, "1000", q.Get("volumeMin"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "21", q.Get("pageSize"))
		assert.Equal(t, "2026-01-01T00:00:00Z", q.Get("createdAtMin"))
		assert.Empty(t, q.Get("liquidityMax"))
		w.Write([]byte(`{"data":[` + marketJSON + `],"meta":{"total":30,"perPage":21,"currentPage":2,"totalPages":2}}`))
	}))
	defer srv.Close()

	active, closed, volMin := true, false, 1000.0
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := newTestClient(srv).ListMarkets(context.Background(), domain.MarketFilter{
		Active: &active, Closed: &closed, Search: "rain", VolumeMin: &volMin,
		CreatedAtMin: &created,
		Page:         domain.Page{Page: 2, PageSize: 21},
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.False(t, page.Meta.HasNext())

	m := page.Data[0]
	assert.Equal(t, int64(7), m.ID)
	assert.True(t, m.Active)
	assert.True(t, m.Tradable())
	assert.Equal(t, "0.65", m.OutcomeYesPrice.String())
	assert.Equal(t, "1523000.5", m.Volume.Decimal.String())
	require.NotNil(t, m.EventID)
	assert.Equal(t, int64(3), *m.EventID)
	require.Len(t, m.Tokens, 1)
	assert.Equal(t, "tok-yes", m.Tokens[0].TokenID)
	assert.Equal(t, 2026, m.CreatedAt.Year())
}

func TestGetMarket_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"statusCode":404,"message":"Market with ID 9 not found","error":"Not Found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetMarket(context.Background(), 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "Market with ID 9 not found", apiErr.Message)
}

func TestCreateOrder_SendsIdempotencyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get(backend.IdempotencyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["marketId"])
		assert.Equal(t, "0xsig", body["signature"])
		assert.NotContains(t, body, "price")

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 11, "idempotencyKey": "key-123", "marketId": 7, "side": "BUY", "type": "MARKET",
			"outcome": "YES", "quantity": "5", "price": null, "status": "PENDING", "filledQuantity": "0"}`))
	}))
	defer srv.Close()

	o, err := newTestClient(srv).CreateOrder(context.Background(), domain.CreateOrderRequest{
		MarketID: 7, Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Outcome: domain.OutcomeYes,
		Quantity: "5", WalletAddress: "0xabc", Signature: "0xsig", Nonce: "n1",
	}, "key-123")
	require.NoError(t, err)
	assert.Equal(t, int64(11), o.ID)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.False(t, o.Price.Valid)
}

func TestCreateOrder_ValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":["quantity must be positive","price must be a string"],"code":"validation_failed"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreateOrder(context.Background(), domain.CreateOrderRequest{}, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.False(t, backend.IsRetryable(err))

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "quantity must be positive; price must be a string", apiErr.Message)
	assert.Equal(t, "validation_failed", apiErr.Code)
}

func TestCancelOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/orders/11", r.URL.Path)
		w.Write([]byte(`{"id": 11, "status": "CANCELLED", "quantity": "5"}`))
	}))
	defer srv.Close()

	o, err := newTestClient(srv).CancelOrder(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, o.Status)
}

func TestListOrders_Params(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "7", q.Get("marketId"))
		assert.Equal(t, "QUEUED", q.Get("status"))
		assert.Equal(t, "SELL", q.Get("side"))
		assert.Equal(t, "NO", q.Get("outcome"))
		w.Write([]byte(`{"data":[{"id":1,"status":"QUEUED","failureReason":null}],"meta":{"total":1,"perPage":21,"currentPage":1,"totalPages":1}}`))
	}))
	defer srv.Close()

	mid := int64(7)
	page, err := newTestClient(srv).ListOrders(context.Background(), domain.OrderFilter{
		MarketID: &mid, Status: domain.OrderStatusQueued, Side: domain.OrderSideSell, Outcome: domain.OutcomeNo,
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.True(t, page.Data[0].CanCancel())
}

func TestEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "election", r.URL.Query().Get("search"))
		w.Write([]byte(`{"data":[{"id":3,"title":"Election","active":true,"markets":[` + marketJSON + `]}],
			"meta":{"total":1,"perPage":21,"currentPage":1,"totalPages":1}}`))
	})
	mux.HandleFunc("GET /events/3/markets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[` + marketJSON + `]`))
	})
	mux.HandleFunc("POST /events/sync", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"jobId":"job-1","message":"queued"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	ctx := context.Background()

	events, err := c.ListEvents(ctx, domain.EventFilter{Search: "election"})
	require.NoError(t, err)
	require.Len(t, events.Data, 1)
	assert.Equal(t, 1, events.Data[0].MarketCount)

	markets, err := c.ListEventMarkets(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, markets, 1)

	res, err := c.SyncEvents(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, "job-1", res.JobID)
}

func TestBalance_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/usdc/balance/0xabc", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"balance":"12.5","address":"0xabc"}`))
	}))
	defer srv.Close()

	bal, err := newTestClient(srv).Balance(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.String())
	assert.Equal(t, int32(3), calls.Load())
}

func TestAllowance_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Allowance(context.Background(), "0xabc")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestAllowance_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Allowance(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBalance_MissingFigureIsNotZero(t *testing.T) {
	for _, body := range []string{`{}`, `{"balance":null}`, `{"balance":""}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		_, err := newTestClient(srv).Balance(context.Background(), "0xabc")
		srv.Close()
		assert.ErrorIs(t, err, domain.ErrUpstream, body)
	}
}

func TestAllowance_MissingFigureIsNotZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"allowance":null,"address":"0xabc"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Allowance(context.Background(), "0xabc")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestGetOrder_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetOrder(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, backend.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUSDCInfoAndGas(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/usdc/info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"usdcAddress":"0xusdc","serverWallet":"0xspender","funderAddress":"0xfunder"}`))
	})
	mux.HandleFunc("GET /orders/usdc/gas-estimate", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"estimatedGasMatic":"0.02","estimatedGasUsd":"0.011","gasPriceGwei":"35","note":"approx"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	info, err := c.USDCInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xspender", info.ServerWallet)

	gas, err := c.GasEstimate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.011", gas.EstimatedGasUSD.String())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, backend.IsRetryable(nil))
	assert.False(t, backend.IsRetryable(context.Canceled))
	assert.True(t, backend.IsRetryable(&domain.APIError{StatusCode: 429}))
	assert.True(t, backend.IsRetryable(&domain.APIError{StatusCode: 503}))
	assert.False(t, backend.IsRetryable(&domain.APIError{StatusCode: 409}))
}
