package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// FundsReader reads balance and allowance straight from the token contract
// for a fixed spender.
type FundsReader struct {
	token   *ERC20
	spender common.Address
}

// NewFundsReader returns a reader that checks allowances granted to spender.
func NewFundsReader(token *ERC20, spender common.Address) *FundsReader {
	return &FundsReader{token: token, spender: spender}
}

// Balance returns the token balance of address.
func (r *FundsReader) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("chain: balance: invalid address %q", address)
	}
	return r.token.BalanceOf(ctx, common.HexToAddress(address))
}

// Allowance returns how much the configured spender may move for address.
func (r *FundsReader) Allowance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("chain: allowance: invalid address %q", address)
	}
	return r.token.Allowance(ctx, common.HexToAddress(address), r.spender)
}

// WalletApprover sends approvals from one wallet.
type WalletApprover struct {
	token  *ERC20
	signer TxSigner
}

// NewWalletApprover binds token approvals to signer.
func NewWalletApprover(token *ERC20, signer TxSigner) *WalletApprover {
	return &WalletApprover{token: token, signer: signer}
}

// Approve sends approve(spender, amount) from the bound wallet.
func (a *WalletApprover) Approve(ctx context.Context, spender common.Address, amount decimal.Decimal) (common.Hash, error) {
	return a.token.Approve(ctx, a.signer, spender, amount)
}

// WaitMined blocks until txHash is mined successfully, it reverts, or ctx
// ends.
func (a *WalletApprover) WaitMined(ctx context.Context, txHash common.Hash) error {
	_, err := a.token.WaitMined(ctx, txHash)
	return err
}
