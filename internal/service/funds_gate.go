package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// FundsReader reads a wallet's collateral balance and the allowance granted
// to the settlement spender.
type FundsReader interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	Allowance(ctx context.Context, address string) (decimal.Decimal, error)
}

// SpenderResolver returns the token and spender addresses orders settle
// through.
type SpenderResolver interface {
	USDCInfo(ctx context.Context) (domain.USDCInfo, error)
}

// Approver sends an ERC-20 approval and waits for it to be mined.
type Approver interface {
	Approve(ctx context.Context, spender common.Address, amount decimal.Decimal) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) error
}

// GasSource reports the current settlement gas estimate in USD.
type GasSource interface {
	CurrentUSD() decimal.Decimal
}

// FundsGateConfig holds the gate's tunables.
type FundsGateConfig struct {
	BufferRate       decimal.Decimal
	ApprovalHeadroom decimal.Decimal
	SettleDelay      time.Duration
	CacheTTL         time.Duration
}

// FundsGate decides whether a BUY may be submitted given the wallet's
// balance and allowance, and drives the approval transaction when it may
// not.
type FundsGate struct {
	reader   FundsReader
	spenders SpenderResolver
	approver Approver
	gas      GasSource
	cache    domain.QueryCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	cfg      FundsGateConfig
	logger   *slog.Logger

	locker    domain.LockManager
	approving atomic.Bool
	sleep     func(ctx context.Context, d time.Duration) error
}

// approvalLockTTL bounds how long a crashed process can hold the shared
// approval lock. The receipt wait itself has no timeout.
const approvalLockTTL = 15 * time.Minute

// NewFundsGate creates a FundsGate. approver, cache, bus and audit may be
// nil; without an approver Approve fails with domain.ErrWalletNotConnected.
func NewFundsGate(
	reader FundsReader,
	spenders SpenderResolver,
	approver Approver,
	gas GasSource,
	cache domain.QueryCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg FundsGateConfig,
	logger *slog.Logger,
) *FundsGate {
	if cfg.ApprovalHeadroom.IsZero() {
		cfg.ApprovalHeadroom = decimal.RequireFromString("1.2")
	}
	return &FundsGate{
		reader:   reader,
		spenders: spenders,
		approver: approver,
		gas:      gas,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// WithLocker makes the approval guard span every process sharing locker.
func (g *FundsGate) WithLocker(locker domain.LockManager) *FundsGate {
	g.locker = locker
	return g
}

// Requirement computes the funds a BUY spending spend needs right now.
func (g *FundsGate) Requirement(spend decimal.Decimal) domain.FundsRequirement {
	gasUSD := decimal.Zero
	if g.gas != nil {
		gasUSD = g.gas.CurrentUSD()
	}
	return domain.NewFundsRequirement(spend, g.cfg.BufferRate, gasUSD)
}

// Evaluate applies the gate decision table. A nil balance or allowance is
// unknown and yields GateLoading, never an insufficient verdict.
func Evaluate(req domain.FundsRequirement, balance, allowance *decimal.Decimal, headroom decimal.Decimal) domain.FundsAssessment {
	a := domain.FundsAssessment{
		Requirement: req,
		Balance:     balance,
		Allowance:   allowance,
	}
	switch {
	case balance == nil:
		a.Decision = domain.GateLoading
	case balance.LessThan(req.Required):
		a.Decision = domain.GateInsufficientBalance
	case allowance == nil:
		a.Decision = domain.GateLoading
	case allowance.LessThan(req.Required):
		a.Decision = domain.GateNeedsApproval
		a.ApproveAmount = req.Required.Mul(headroom)
	default:
		a.Decision = domain.GateAllowed
	}
	return a
}

// Check reads balance and allowance concurrently, bypassing cached values,
// and evaluates the gate. It is used right before submission. A failed read
// leaves that value unknown rather than failing the check.
func (g *FundsGate) Check(ctx context.Context, wallet string, spend decimal.Decimal) (domain.FundsAssessment, error) {
	return g.assess(ctx, wallet, spend, false)
}

// Assess is Check for display: recently cached figures are reused.
func (g *FundsGate) Assess(ctx context.Context, wallet string, spend decimal.Decimal) (domain.FundsAssessment, error) {
	return g.assess(ctx, wallet, spend, true)
}

func (g *FundsGate) assess(ctx context.Context, wallet string, spend decimal.Decimal, useCache bool) (domain.FundsAssessment, error) {
	if wallet == "" {
		return domain.FundsAssessment{}, domain.ErrWalletNotConnected
	}

	balance, allowance, err := g.read(ctx, wallet, useCache)
	if err != nil {
		return domain.FundsAssessment{}, err
	}

	a := Evaluate(g.Requirement(spend), balance, allowance, g.cfg.ApprovalHeadroom)
	a.Wallet = wallet

	g.logger.DebugContext(ctx, "funds_gate: evaluated",
		slog.String("wallet", wallet),
		slog.String("required", a.Requirement.Required.String()),
		slog.String("decision", string(a.Decision)),
	)
	return a, nil
}

// read fetches balance and allowance concurrently. A failed read leaves
// that figure nil; only cancellation of ctx fails the read as a whole.
func (g *FundsGate) read(ctx context.Context, wallet string, useCache bool) (*decimal.Decimal, *decimal.Decimal, error) {
	var balance, allowance *decimal.Decimal

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		v, err := g.readOne(egCtx, wallet, "balance", useCache, g.reader.Balance)
		balance = v
		return err
	})
	eg.Go(func() error {
		v, err := g.readOne(egCtx, wallet, "allowance", useCache, g.reader.Allowance)
		allowance = v
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, fmt.Errorf("funds_gate: read funds: %w", err)
	}
	return balance, allowance, nil
}

// readOne reads one figure, optionally from the funds cache. Read errors are
// logged and the figure is returned as nil (unknown). The error result is
// only set when ctx is done.
func (g *FundsGate) readOne(
	ctx context.Context,
	wallet, what string,
	useCache bool,
	fetch func(context.Context, string) (decimal.Decimal, error),
) (*decimal.Decimal, error) {
	key := domain.CacheFunds + ":" + what + ":" + wallet
	var v decimal.Decimal
	if useCache && cacheGet(ctx, g.cache, g.logger, key, &v) {
		return &v, nil
	}

	v, err := fetch(ctx, wallet)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.logger.WarnContext(ctx, "funds_gate: read failed",
			slog.String("what", what),
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	cacheSet(ctx, g.cache, g.logger, key, v, g.cfg.CacheTTL)
	return &v, nil
}

// Approve grants the settlement spender an allowance of required*headroom
// for a BUY spending spend. Only one approval may be outstanding; a second
// call while one is pending fails with domain.ErrApprovalPending. The
// receipt wait is bounded only by ctx. After confirmation the gate waits a
// fixed settle delay, drops cached funds and re-reads the allowance on a
// best-effort basis.
func (g *FundsGate) Approve(ctx context.Context, wallet string, spend decimal.Decimal) (domain.ApprovalResult, error) {
	if g.approver == nil || wallet == "" {
		return domain.ApprovalResult{}, domain.ErrWalletNotConnected
	}
	if !g.approving.CompareAndSwap(false, true) {
		return domain.ApprovalResult{}, domain.ErrApprovalPending
	}
	defer g.approving.Store(false)

	if g.locker != nil {
		unlock, err := g.locker.Acquire(ctx, "approve:"+wallet, approvalLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.ApprovalResult{}, domain.ErrApprovalPending
		}
		if err != nil {
			return domain.ApprovalResult{}, fmt.Errorf("funds_gate: approval lock: %w", err)
		}
		defer unlock()
	}

	info, err := g.spenders.USDCInfo(ctx)
	if err != nil {
		return domain.ApprovalResult{}, fmt.Errorf("funds_gate: resolve spender: %w", err)
	}
	if !common.IsHexAddress(info.ServerWallet) {
		return domain.ApprovalResult{}, fmt.Errorf("funds_gate: invalid spender address %q", info.ServerWallet)
	}
	spender := common.HexToAddress(info.ServerWallet)

	amount := g.Requirement(spend).Required.Mul(g.cfg.ApprovalHeadroom)

	g.logger.InfoContext(ctx, "funds_gate: requesting approval",
		slog.String("wallet", wallet),
		slog.String("spender", spender.Hex()),
		slog.String("amount", amount.String()),
	)

	txHash, err := g.approver.Approve(ctx, spender, amount)
	if err != nil {
		return domain.ApprovalResult{}, fmt.Errorf("funds_gate: approve: %w", err)
	}
	if err := g.approver.WaitMined(ctx, txHash); err != nil {
		return domain.ApprovalResult{}, fmt.Errorf("funds_gate: wait for approval %s: %w", txHash.Hex(), err)
	}

	result := domain.ApprovalResult{
		TxHash:  txHash.Hex(),
		Spender: spender.Hex(),
		Amount:  amount,
	}

	settled := g.sleep(ctx, g.cfg.SettleDelay) == nil
	g.invalidateFunds(context.WithoutCancel(ctx))
	if settled {
		if allowance, err := g.reader.Allowance(ctx, wallet); err == nil {
			result.Allowance = &allowance
		} else {
			g.logger.WarnContext(ctx, "funds_gate: allowance refresh failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
	}

	if g.audit != nil {
		if err := g.audit.Log(ctx, "usdc_approved", map[string]any{
			"wallet":  wallet,
			"spender": result.Spender,
			"amount":  amount.String(),
			"tx_hash": result.TxHash,
		}); err != nil {
			g.logger.WarnContext(ctx, "funds_gate: audit log failed", slog.String("error", err.Error()))
		}
	}
	publishEvent(ctx, g.bus, g.logger, domain.ChannelFunds, map[string]any{
		"kind":    domain.EventApproval,
		"wallet":  wallet,
		"txHash":  result.TxHash,
		"amount":  amount.String(),
		"spender": result.Spender,
		"at":      time.Now().UTC(),
	})

	g.logger.InfoContext(ctx, "funds_gate: approval confirmed",
		slog.String("wallet", wallet),
		slog.String("tx", result.TxHash),
	)
	return result, nil
}

// Pending reports whether an approval is outstanding.
func (g *FundsGate) Pending() bool {
	return g.approving.Load()
}

func (g *FundsGate) invalidateFunds(ctx context.Context) {
	if g.cache == nil {
		return
	}
	if err := g.cache.InvalidatePrefix(ctx, domain.CacheFunds); err != nil {
		g.logger.WarnContext(ctx, "funds_gate: cache invalidate failed", slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
