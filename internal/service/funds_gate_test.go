package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polydesk/internal/cache/memory"
	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/platform/backend"
	"github.com/alanyoungcy/polydesk/internal/service"
)

const wallet = "0x00000000000000000000000000000000000000b1"

type fakeReader struct {
	balance, allowance       decimal.Decimal
	balanceErr, allowanceErr error
	balanceCalls             atomic.Int32
	allowanceCalls           atomic.Int32
}

func (r *fakeReader) Balance(context.Context, string) (decimal.Decimal, error) {
	r.balanceCalls.Add(1)
	return r.balance, r.balanceErr
}

func (r *fakeReader) Allowance(context.Context, string) (decimal.Decimal, error) {
	r.allowanceCalls.Add(1)
	return r.allowance, r.allowanceErr
}

type fixedGas struct{ usd decimal.Decimal }

func (g fixedGas) CurrentUSD() decimal.Decimal { return g.usd }

type fakeSpenders struct{ spender string }

func (s fakeSpenders) USDCInfo(context.Context) (domain.USDCInfo, error) {
	return domain.USDCInfo{ServerWallet: s.spender}, nil
}

type fakeApprover struct {
	mu      sync.Mutex
	amounts []decimal.Decimal
	spender common.Address
	release chan struct{}
	waitErr error
}

func (a *fakeApprover) Approve(_ context.Context, spender common.Address, amount decimal.Decimal) (common.Hash, error) {
	a.mu.Lock()
	a.amounts = append(a.amounts, amount)
	a.spender = spender
	a.mu.Unlock()
	return common.HexToHash("0xabc"), nil
}

func (a *fakeApprover) WaitMined(ctx context.Context, _ common.Hash) error {
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return a.waitErr
}

func newGate(reader service.FundsReader, approver service.Approver, cache domain.QueryCache) *service.FundsGate {
	return service.NewFundsGate(
		reader,
		fakeSpenders{spender: "0x00000000000000000000000000000000000000cc"},
		approver,
		fixedGas{usd: dec("0.05")},
		cache,
		nil,
		nil,
		service.FundsGateConfig{
			BufferRate:       dec("0.01"),
			ApprovalHeadroom: dec("1.2"),
			CacheTTL:         time.Minute,
		},
		testLogger(),
	)
}

func TestEvaluate_DecisionTable(t *testing.T) {
	req := domain.NewFundsRequirement(dec("10"), dec("0.01"), dec("0.05")) // 10.15
	low, high := dec("5"), dec("20")

	cases := []struct {
		name               string
		balance, allowance *decimal.Decimal
		want               domain.GateDecision
	}{
		{"both low", &low, &low, domain.GateInsufficientBalance},
		{"balance low", &low, &high, domain.GateInsufficientBalance},
		{"allowance low", &high, &low, domain.GateNeedsApproval},
		{"both enough", &high, &high, domain.GateAllowed},
		{"balance unknown", nil, &high, domain.GateLoading},
		{"balance unknown allowance low", nil, &low, domain.GateLoading},
		{"allowance unknown", &high, nil, domain.GateLoading},
		{"both unknown", nil, nil, domain.GateLoading},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := service.Evaluate(req, tc.balance, tc.allowance, dec("1.2"))
			assert.Equal(t, tc.want, a.Decision)
			if tc.want == domain.GateLoading {
				assert.ErrorIs(t, a.Err(), domain.ErrFundsUnknown)
			}
		})
	}
}

func TestEvaluate_ExactRequiredIsEnough(t *testing.T) {
	req := domain.NewFundsRequirement(dec("10"), dec("0.01"), dec("0.05"))
	exact := dec("10.15")
	a := service.Evaluate(req, &exact, &exact, dec("1.2"))
	assert.Equal(t, domain.GateAllowed, a.Decision)
}

func TestFundsGate_CheckNeedsApproval(t *testing.T) {
	reader := &fakeReader{balance: dec("100"), allowance: dec("5")}
	gate := newGate(reader, nil, nil)

	a, err := gate.Check(context.Background(), wallet, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, domain.GateNeedsApproval, a.Decision)
	assert.Equal(t, "10.15", a.Requirement.Required.String())
	assert.Equal(t, "12.18", a.ApproveAmount.String())
	assert.ErrorIs(t, a.Err(), domain.ErrInsufficientAllowance)
	assert.Equal(t, wallet, a.Wallet)
}

func TestFundsGate_ReadFailureIsLoading(t *testing.T) {
	reader := &fakeReader{balanceErr: errors.New("boom"), allowance: dec("100")}
	gate := newGate(reader, nil, nil)

	a, err := gate.Check(context.Background(), wallet, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, domain.GateLoading, a.Decision)
	assert.Nil(t, a.Balance)
	assert.NotEqual(t, domain.GateInsufficientBalance, a.Decision)
}

func TestFundsGate_MissingBackendFigureIsLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/orders/usdc/balance/") {
			w.Write([]byte(`{"balance":null}`))
			return
		}
		w.Write([]byte(`{"allowance":"100"}`))
	}))
	defer srv.Close()

	api := backend.NewClient(srv.URL, backend.WithRetryWait(time.Millisecond))
	gate := newGate(api, nil, nil)

	a, err := gate.Check(context.Background(), wallet, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, domain.GateLoading, a.Decision)
	assert.Nil(t, a.Balance)
	require.NotNil(t, a.Allowance)
	assert.Equal(t, "100", a.Allowance.String())
}

func TestFundsGate_CancelledReadFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader := &fakeReader{balanceErr: context.Canceled, allowanceErr: context.Canceled}
	gate := newGate(reader, nil, nil)

	_, err := gate.Check(ctx, wallet, dec("10"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFundsGate_NoWallet(t *testing.T) {
	gate := newGate(&fakeReader{}, nil, nil)
	_, err := gate.Check(context.Background(), "", dec("1"))
	assert.ErrorIs(t, err, domain.ErrWalletNotConnected)
}

func TestFundsGate_AssessUsesCacheCheckDoesNot(t *testing.T) {
	reader := &fakeReader{balance: dec("100"), allowance: dec("100")}
	gate := newGate(reader, nil, memory.NewQueryCache())
	ctx := context.Background()

	_, err := gate.Assess(ctx, wallet, dec("1"))
	require.NoError(t, err)
	_, err = gate.Assess(ctx, wallet, dec("1"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, reader.balanceCalls.Load())

	_, err = gate.Check(ctx, wallet, dec("1"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, reader.balanceCalls.Load())
}

func TestFundsRequirement_Monotonic(t *testing.T) {
	rate := dec("0.01")
	prev := domain.NewFundsRequirement(decimal.Zero, rate, decimal.Zero).Required
	for i := 1; i <= 50; i++ {
		r := domain.NewFundsRequirement(decimal.NewFromInt(int64(i)), rate, dec("0.02")).Required
		assert.True(t, r.GreaterThanOrEqual(prev))
		prev = r
	}
}

func TestFundsGate_Approve(t *testing.T) {
	reader := &fakeReader{balance: dec("100"), allowance: dec("12.18")}
	approver := &fakeApprover{}
	cache := memory.NewQueryCache()
	gate := newGate(reader, approver, cache)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "funds:allowance:"+wallet, []byte(`"0"`), time.Minute))

	res, err := gate.Approve(ctx, wallet, dec("10"))
	require.NoError(t, err)
	assert.Equal(t, "12.18", res.Amount.String())
	require.NotNil(t, res.Allowance)
	assert.Equal(t, "12.18", res.Allowance.String())
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000cc"), approver.spender)

	_, err = cache.Get(ctx, "funds:allowance:"+wallet)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, gate.Pending())
}

func TestFundsGate_ApproveSingleFlight(t *testing.T) {
	approver := &fakeApprover{release: make(chan struct{})}
	gate := newGate(&fakeReader{balance: dec("100")}, approver, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := gate.Approve(ctx, wallet, dec("10"))
		done <- err
	}()

	require.Eventually(t, gate.Pending, time.Second, time.Millisecond)
	_, err := gate.Approve(ctx, wallet, dec("10"))
	assert.ErrorIs(t, err, domain.ErrApprovalPending)

	close(approver.release)
	require.NoError(t, <-done)
	assert.Len(t, approver.amounts, 1)
}

func TestFundsGate_ApproveWaitHonoursContext(t *testing.T) {
	approver := &fakeApprover{release: make(chan struct{})}
	gate := newGate(&fakeReader{}, approver, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := gate.Approve(ctx, wallet, dec("10"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, gate.Pending())
}

func TestFundsGate_ApproveReverted(t *testing.T) {
	approver := &fakeApprover{waitErr: domain.ErrTxReverted}
	gate := newGate(&fakeReader{}, approver, nil)
	_, err := gate.Approve(context.Background(), wallet, dec("10"))
	assert.ErrorIs(t, err, domain.ErrTxReverted)
}

func TestFundsGate_ApproveWithoutWallet(t *testing.T) {
	gate := newGate(&fakeReader{}, nil, nil)
	_, err := gate.Approve(context.Background(), wallet, dec("10"))
	assert.ErrorIs(t, err, domain.ErrWalletNotConnected)
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestFundsGate_ApproveSharedLockHeld(t *testing.T) {
	approver := &fakeApprover{}
	gate := newGate(&fakeReader{}, approver, nil).WithLocker(heldLocker{})
	_, err := gate.Approve(context.Background(), wallet, dec("10"))
	assert.ErrorIs(t, err, domain.ErrApprovalPending)
	assert.Empty(t, approver.amounts)
}
