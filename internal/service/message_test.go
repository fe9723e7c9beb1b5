package service_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/service"
)

func TestCanonicalMessage_SpendAmount(t *testing.T) {
	msg, err := service.CanonicalMessage(service.OrderMessage{
		MarketID: 7,
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeLimit,
		Outcome:  domain.OutcomeYes,
		Price:    "0.65",
		Amount:   "10",
		Quantity: "15.38461538",
		Nonce:    "n1",
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"amount":"10","marketId":7,"nonce":"n1","outcome":"YES","price":"0.65","side":"BUY","type":"LIMIT"}`,
		msg)
}

func TestCanonicalMessage_OmitsAbsentFields(t *testing.T) {
	msg, err := service.CanonicalMessage(service.OrderMessage{
		MarketID: 3,
		Side:     domain.OrderSideSell,
		Type:     domain.OrderTypeMarket,
		Outcome:  domain.OutcomeNo,
		Quantity: "5",
		Nonce:    "n2",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"marketId":3,"nonce":"n2","outcome":"NO","quantity":"5","side":"SELL","type":"MARKET"}`, msg)
	assert.NotContains(t, msg, "null")
}

func TestCanonicalMessage_OptionalFieldsChangeMessage(t *testing.T) {
	base := service.OrderMessage{
		MarketID: 3,
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeLimit,
		Outcome:  domain.OutcomeYes,
		Quantity: "5",
		Nonce:    "n",
	}
	withPrice := base
	withPrice.Price = "0.5"

	a, err := service.CanonicalMessage(base)
	require.NoError(t, err)
	b, err := service.CanonicalMessage(withPrice)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	again, err := service.CanonicalMessage(withPrice)
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestNewNonce(t *testing.T) {
	re := regexp.MustCompile(`^\d+-[0-9a-z]{13}$`)
	a, b := service.NewNonce(), service.NewNonce()
	assert.Regexp(t, re, a)
	assert.Regexp(t, re, b)
	assert.NotEqual(t, a, b)
}
