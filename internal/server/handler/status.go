package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// StatusSource reports live runtime figures for the status endpoint.
type StatusSource interface {
	Wallet() string
	TrackedOrders() int
	ApprovalPending() bool
	Gas() (domain.GasEstimate, bool)
}

// StatusHandler serves desk runtime status.
type StatusHandler struct {
	src       StatusSource
	chainID   int64
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(src StatusSource, chainID int64, startedAt time.Time) *StatusHandler {
	return &StatusHandler{src: src, chainID: chainID, startedAt: startedAt}
}

// GetStatus responds with the wallet, chain and background worker state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"wallet":          h.src.Wallet(),
		"walletConnected": h.src.Wallet() != "",
		"chainId":         h.chainID,
		"trackedOrders":   h.src.TrackedOrders(),
		"approvalPending": h.src.ApprovalPending(),
		"uptimeSeconds":   int64(time.Since(h.startedAt).Seconds()),
	}
	if gas, ok := h.src.Gas(); ok {
		body["gas"] = gas
	}
	writeJSON(w, http.StatusOK, body)
}
