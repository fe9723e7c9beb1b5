// Package chain talks to the ERC-20 collateral token directly over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// TokenDecimals is the fixed precision assumed for USDC amounts.
const TokenDecimals = 6

const (
	defaultApprovalGasLimit = uint64(80_000)
	defaultPollInterval     = 3 * time.Second
	defaultReadRetryWait    = 500 * time.Millisecond
	gasPriceTTL             = time.Minute
)

var fallbackGasPrice = big.NewInt(30_000_000_000)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "approve",
			"type": "function",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "decimals",
			"type": "function",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Backend is the subset of ethclient.Client the token client needs.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxSigner signs transactions for the wallet that owns the funds.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ERC20 is a client for one ERC-20 token contract.
type ERC20 struct {
	backend      Backend
	token        common.Address
	chainID      *big.Int
	gasLimit     uint64
	pollInterval time.Duration
	readRetries  int
	retryWait    time.Duration
	logger       *slog.Logger

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// Option configures an ERC20 client.
type Option func(*ERC20)

// WithApprovalGasLimit sets the gas limit used when estimation fails.
func WithApprovalGasLimit(limit uint64) Option {
	return func(e *ERC20) { e.gasLimit = limit }
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) Option {
	return func(e *ERC20) { e.pollInterval = d }
}

// WithReadRetries sets how many times a failed contract read is retried.
// Waits double from wait after each attempt.
func WithReadRetries(n int, wait time.Duration) Option {
	return func(e *ERC20) {
		e.readRetries = n
		if wait > 0 {
			e.retryWait = wait
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *ERC20) { e.logger = l }
}

// NewERC20 creates a token client for the contract at token on chainID.
func NewERC20(backend Backend, token common.Address, chainID int64, opts ...Option) *ERC20 {
	e := &ERC20{
		backend:      backend,
		token:        token,
		chainID:      big.NewInt(chainID),
		gasLimit:     defaultApprovalGasLimit,
		pollInterval: defaultPollInterval,
		retryWait:    defaultReadRetryWait,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Token returns the contract address.
func (e *ERC20) Token() common.Address {
	return e.token
}

// Decimals reads the token's decimals().
func (e *ERC20) Decimals(ctx context.Context) (uint8, error) {
	vals, err := e.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: decimals: unexpected type %T", vals[0])
	}
	return d, nil
}

// BalanceOf returns account's balance in whole tokens.
func (e *ERC20) BalanceOf(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	raw, err := e.callUint(ctx, "balanceOf", account)
	if err != nil {
		return decimal.Zero, err
	}
	return FromUnits(raw), nil
}

// Allowance returns how much spender may move on owner's behalf, in whole
// tokens.
func (e *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	raw, err := e.callUint(ctx, "allowance", owner, spender)
	if err != nil {
		return decimal.Zero, err
	}
	return FromUnits(raw), nil
}

// Approve sends approve(spender, amount) signed by signer and returns the
// transaction hash without waiting for it to be mined.
func (e *ERC20) Approve(ctx context.Context, signer TxSigner, spender common.Address, amount decimal.Decimal) (common.Hash, error) {
	units := ToUnits(amount)
	if units.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("chain: approve: amount must be positive, got %s", amount)
	}

	data, err := erc20ABI.Pack("approve", spender, units)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: approve: pack: %w", err)
	}

	from := signer.Address()
	nonce, err := e.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: approve: nonce: %w", err)
	}

	gasLimit, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &e.token, Data: data})
	if err != nil || gasLimit == 0 {
		e.logger.WarnContext(ctx, "chain: gas estimate failed, using fallback limit",
			slog.Uint64("gas_limit", e.gasLimit),
		)
		gasLimit = e.gasLimit
	}

	tx := types.NewTransaction(nonce, e.token, big.NewInt(0), gasLimit, e.gasPrice(ctx), data)
	signed, err := signer.SignTx(tx, e.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}

	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: approve: send: %w", err)
	}

	e.logger.InfoContext(ctx, "chain: approve sent",
		slog.String("tx", signed.Hash().Hex()),
		slog.String("spender", spender.Hex()),
		slog.String("amount", amount.String()),
	)
	return signed.Hash(), nil
}

// WaitMined polls for the receipt of txHash until it is mined. There is no
// timeout beyond ctx. A reverted transaction returns domain.ErrTxReverted.
func (e *ERC20) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("chain: tx %s: %w", txHash.Hex(), domain.ErrTxReverted)
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("chain: receipt %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *ERC20) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: pack: %w", method, err)
	}
	out, err := e.callWithRetry(ctx, method, ethereum.CallMsg{To: &e.token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("chain: %s: call: %w", method, err)
	}
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: unpack: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("chain: %s: empty result", method)
	}
	return vals, nil
}

// callWithRetry runs a read-only call, retrying node failures with
// exponential backoff. Cancellation of ctx is never retried.
func (e *ERC20) callWithRetry(ctx context.Context, method string, msg ethereum.CallMsg) ([]byte, error) {
	wait := e.retryWait
	for attempt := 0; ; attempt++ {
		out, err := e.backend.CallContract(ctx, msg, nil)
		if err == nil || attempt >= e.readRetries || ctx.Err() != nil {
			return out, err
		}
		e.logger.WarnContext(ctx, "chain: retrying read",
			slog.String("method", method),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		wait *= 2
	}
}

func (e *ERC20) callUint(ctx context.Context, method string, args ...any) (*big.Int, error) {
	vals, err := e.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

// gasPrice returns a cached suggestion with a 10% buffer, falling back to
// the last known or a fixed price when the node cannot answer.
func (e *ERC20) gasPrice(ctx context.Context) *big.Int {
	e.mu.RLock()
	cached, updatedAt := e.cachedGasWei, e.gasUpdatedAt
	e.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceTTL {
		return cached
	}

	price, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached
		}
		return fallbackGasPrice
	}

	price = new(big.Int).Div(new(big.Int).Mul(price, big.NewInt(11)), big.NewInt(10))

	e.mu.Lock()
	e.cachedGasWei = price
	e.gasUpdatedAt = time.Now()
	e.mu.Unlock()
	return price
}

// ToUnits converts a whole-token amount to base units, truncating anything
// below the token's precision.
func ToUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(TokenDecimals).Truncate(0).BigInt()
}

// FromUnits converts base units to a whole-token amount.
func FromUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -TokenDecimals)
}
