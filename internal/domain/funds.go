package domain

import "github.com/shopspring/decimal"

// USDCInfo describes the token and spender used for order settlement.
type USDCInfo struct {
	USDCAddress   string `json:"usdcAddress"`
	ServerWallet  string `json:"serverWallet"`
	FunderAddress string `json:"funderAddress"`
}

// GasEstimate is the backend's current estimate of a settlement's gas cost.
type GasEstimate struct {
	EstimatedGasMatic decimal.Decimal `json:"estimatedGasMatic"`
	EstimatedGasUSD   decimal.Decimal `json:"estimatedGasUsd"`
	GasPriceGwei      decimal.Decimal `json:"gasPriceGwei"`
	Note              string          `json:"note,omitempty"`
}

// FundsRequirement is the derived amount a BUY needs in balance and allowance.
type FundsRequirement struct {
	Spend    decimal.Decimal `json:"spend"`
	Buffer   decimal.Decimal `json:"buffer"`
	GasUSD   decimal.Decimal `json:"gasUsd"`
	Required decimal.Decimal `json:"required"`
}

// NewFundsRequirement computes spend + spend*bufferRate + gasUSD.
func NewFundsRequirement(spend, bufferRate, gasUSD decimal.Decimal) FundsRequirement {
	buffer := spend.Mul(bufferRate)
	return FundsRequirement{
		Spend:    spend,
		Buffer:   buffer,
		GasUSD:   gasUSD,
		Required: spend.Add(buffer).Add(gasUSD),
	}
}

// GateDecision is the outcome of the balance/allowance check.
type GateDecision string

const (
	GateLoading             GateDecision = "loading"
	GateInsufficientBalance GateDecision = "insufficient_balance"
	GateNeedsApproval       GateDecision = "needs_approval"
	GateAllowed             GateDecision = "allowed"
)

// FundsAssessment is a gate decision plus the figures behind it. Balance and
// Allowance are nil while unknown.
type FundsAssessment struct {
	Wallet        string           `json:"wallet"`
	Requirement   FundsRequirement `json:"requirement"`
	Balance       *decimal.Decimal `json:"balance"`
	Allowance     *decimal.Decimal `json:"allowance"`
	Decision      GateDecision     `json:"decision"`
	ApproveAmount decimal.Decimal  `json:"approveAmount"`
}

// Err maps a blocking decision to its sentinel error.
func (a FundsAssessment) Err() error {
	switch a.Decision {
	case GateAllowed:
		return nil
	case GateInsufficientBalance:
		return ErrInsufficientBalance
	case GateNeedsApproval:
		return ErrInsufficientAllowance
	default:
		return ErrFundsUnknown
	}
}

// ApprovalResult reports a confirmed approval transaction.
type ApprovalResult struct {
	TxHash    string           `json:"txHash"`
	Spender   string           `json:"spender"`
	Amount    decimal.Decimal  `json:"amount"`
	Allowance *decimal.Decimal `json:"allowance"`
}
