package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_CanCancel(t *testing.T) {
	cancellable := map[domain.OrderStatus]bool{
		domain.OrderStatusPending: true,
		domain.OrderStatusQueued:  true,
	}
	for _, s := range domain.OrderStatuses {
		assert.Equal(t, cancellable[s], s.CanCancel(), "status %s", s)
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, domain.OrderStatusFilled.IsTerminal())
	assert.True(t, domain.OrderStatusCancelled.IsTerminal())
	assert.True(t, domain.OrderStatusFailed.IsTerminal())
	assert.False(t, domain.OrderStatusPartiallyFilled.IsTerminal())
	assert.False(t, domain.OrderStatusPending.IsTerminal())
}

func TestOrderStatus_Transitions(t *testing.T) {
	assert.True(t, domain.OrderStatusPending.CanTransitionTo(domain.OrderStatusQueued))
	assert.True(t, domain.OrderStatusQueued.CanTransitionTo(domain.OrderStatusCancelled))
	assert.True(t, domain.OrderStatusProcessing.CanTransitionTo(domain.OrderStatusFilled))
	assert.True(t, domain.OrderStatusFilled.CanTransitionTo(domain.OrderStatusFilled))

	assert.False(t, domain.OrderStatusProcessing.CanTransitionTo(domain.OrderStatusCancelled))
	for _, terminal := range []domain.OrderStatus{domain.OrderStatusFilled, domain.OrderStatusCancelled, domain.OrderStatusFailed} {
		for _, next := range domain.OrderStatuses {
			if next == terminal {
				continue
			}
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
}

func TestOrder_DecodeBackendShape(t *testing.T) {
	raw := `{
		"id": 42, "idempotencyKey": "k1", "marketId": 7, "side": "BUY", "type": "LIMIT",
		"outcome": "YES", "quantity": "15.38461538", "price": "0.65", "status": "FAILED",
		"filledQuantity": "0", "averageFillPrice": null,
		"failureReason": {"code": "insufficient_funds"},
		"createdAt": "2026-01-02T03:04:05Z", "updatedAt": "2026-01-02T03:04:06Z"
	}`
	var o domain.Order
	require.NoError(t, json.Unmarshal([]byte(raw), &o))

	assert.Equal(t, int64(42), o.ID)
	assert.Equal(t, "15.38461538", o.Quantity.String())
	assert.True(t, o.Price.Valid)
	assert.False(t, o.AverageFillPrice.Valid)
	assert.Equal(t, domain.FailureReason(`{"code": "insufficient_funds"}`), o.FailureReason)
	assert.False(t, o.CanCancel())
}

func TestFailureReason_String(t *testing.T) {
	var f domain.FailureReason
	require.NoError(t, json.Unmarshal([]byte(`"market closed"`), &f))
	assert.Equal(t, domain.FailureReason("market closed"), f)

	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	assert.Empty(t, f)
}
