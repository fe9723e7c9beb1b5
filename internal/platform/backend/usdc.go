package backend

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// USDCInfo returns the token address and the spender that orders settle
// through.
func (c *Client) USDCInfo(ctx context.Context) (domain.USDCInfo, error) {
	var info domain.USDCInfo
	if err := c.doGet(ctx, "/orders/usdc/info", nil, &info); err != nil {
		return domain.USDCInfo{}, fmt.Errorf("backend: usdc info: %w", err)
	}
	return info, nil
}

// Balance returns the USDC balance of address, in whole tokens. Transient
// failures are retried. A response without a balance is an upstream error,
// never a zero balance.
func (c *Client) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var b apiBalance
	if err := c.doGetWithRetry(ctx, "/orders/usdc/balance/"+url.PathEscape(address), &b); err != nil {
		return decimal.Zero, fmt.Errorf("backend: usdc balance: %w", err)
	}
	if !b.Balance.Valid {
		return decimal.Zero, fmt.Errorf("backend: usdc balance: %w: response has no balance", domain.ErrUpstream)
	}
	return b.Balance.Decimal, nil
}

// Allowance returns how much USDC the settlement spender may move on behalf
// of address. Transient failures are retried. A response without an
// allowance is an upstream error.
func (c *Client) Allowance(ctx context.Context, address string) (decimal.Decimal, error) {
	var a apiAllowance
	if err := c.doGetWithRetry(ctx, "/orders/usdc/allowance/"+url.PathEscape(address), &a); err != nil {
		return decimal.Zero, fmt.Errorf("backend: usdc allowance: %w", err)
	}
	if !a.Allowance.Valid {
		return decimal.Zero, fmt.Errorf("backend: usdc allowance: %w: response has no allowance", domain.ErrUpstream)
	}
	return a.Allowance.Decimal, nil
}

// GasEstimate returns the backend's current settlement gas estimate.
func (c *Client) GasEstimate(ctx context.Context) (domain.GasEstimate, error) {
	var g apiGasEstimate
	if err := c.doGet(ctx, "/orders/usdc/gas-estimate", nil, &g); err != nil {
		return domain.GasEstimate{}, fmt.Errorf("backend: gas estimate: %w", err)
	}
	return domain.GasEstimate{
		EstimatedGasMatic: g.EstimatedGasMatic.orZero(),
		EstimatedGasUSD:   g.EstimatedGasUSD.orZero(),
		GasPriceGwei:      g.GasPriceGwei.orZero(),
		Note:              g.Note,
	}, nil
}
