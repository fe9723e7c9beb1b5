package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// FundsService is the allowance/balance gate surface the handlers need.
type FundsService interface {
	Assess(ctx context.Context, wallet string, spend decimal.Decimal) (domain.FundsAssessment, error)
	Approve(ctx context.Context, wallet string, spend decimal.Decimal) (domain.ApprovalResult, error)
}

// FundsHandler serves balance, allowance and approval endpoints.
type FundsHandler struct {
	funds  FundsService
	logger *slog.Logger
}

// NewFundsHandler creates a FundsHandler.
func NewFundsHandler(funds FundsService, logger *slog.Logger) *FundsHandler {
	return &FundsHandler{funds: funds, logger: logger}
}

type approveRequest struct {
	Address string `json:"address"`
	Spend   string `json:"spend"`
}

// GetFunds reports balance, allowance and the gate decision for a spend.
// GET /api/funds/{address}?spend=25
func (h *FundsHandler) GetFunds(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if !common.IsHexAddress(address) {
		badRequest(w, "address %q is not a hex address", address)
		return
	}
	spend, err := parseSpend(newQuery(r).str("spend"))
	if err != nil {
		badRequest(w, "%v", err)
		return
	}

	a, err := h.funds.Assess(r.Context(), address, spend)
	if err != nil {
		writeError(w, r, h.logger, "assess funds", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Approve sends an ERC-20 approval sized for spend and waits for it.
// POST /api/funds/approve {"address":"0x...","spend":"25"}
func (h *FundsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(w, r, &req); err != nil {
		badRequest(w, "%v", err)
		return
	}
	if !common.IsHexAddress(req.Address) {
		badRequest(w, "address %q is not a hex address", req.Address)
		return
	}
	spend, err := parseSpend(req.Spend)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	if !spend.IsPositive() {
		badRequest(w, "spend must be greater than 0")
		return
	}

	res, err := h.funds.Approve(r.Context(), req.Address, spend)
	if err != nil {
		writeError(w, r, h.logger, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseSpend(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("spend %q must be a non-negative number", raw)
	}
	return d, nil
}
