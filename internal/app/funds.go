package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/chain"
	"github.com/alanyoungcy/polydesk/internal/service"
)

// chainFunds reads balance and allowance from the token contract. The
// settlement spender is resolved from the backend on first use and kept
// once known.
type chainFunds struct {
	token    *chain.ERC20
	spenders service.SpenderResolver

	mu     sync.Mutex
	reader *chain.FundsReader
}

func newChainFunds(token *chain.ERC20, spenders service.SpenderResolver) *chainFunds {
	return &chainFunds{token: token, spenders: spenders}
}

func (c *chainFunds) resolve(ctx context.Context) (*chain.FundsReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return c.reader, nil
	}
	info, err := c.spenders.USDCInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: resolve spender: %w", err)
	}
	if !common.IsHexAddress(info.ServerWallet) {
		return nil, fmt.Errorf("chain: resolve spender: invalid server wallet %q", info.ServerWallet)
	}
	c.reader = chain.NewFundsReader(c.token, common.HexToAddress(info.ServerWallet))
	return c.reader, nil
}

// Balance implements service.FundsReader.
func (c *chainFunds) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	r, err := c.resolve(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return r.Balance(ctx, address)
}

// Allowance implements service.FundsReader.
func (c *chainFunds) Allowance(ctx context.Context, address string) (decimal.Decimal, error) {
	r, err := c.resolve(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return r.Allowance(ctx, address)
}
