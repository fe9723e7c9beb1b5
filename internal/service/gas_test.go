package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/service"
)

type fakeGasFetcher struct {
	est domain.GasEstimate
	err error
}

func (f *fakeGasFetcher) GasEstimate(context.Context) (domain.GasEstimate, error) {
	return f.est, f.err
}

func TestGasEstimator(t *testing.T) {
	fetcher := &fakeGasFetcher{err: errors.New("unavailable")}
	est := service.NewGasEstimator(fetcher, time.Minute, dec("0.01"), testLogger())
	ctx := context.Background()

	assert.Equal(t, "0.01", est.CurrentUSD().String())
	_, ok := est.Current()
	assert.False(t, ok)

	est.Refresh(ctx)
	assert.Equal(t, "0.01", est.CurrentUSD().String())

	fetcher.err = nil
	fetcher.est = domain.GasEstimate{EstimatedGasUSD: dec("0.004"), GasPriceGwei: dec("35")}
	est.Refresh(ctx)
	assert.Equal(t, "0.004", est.CurrentUSD().String())

	// A failed refresh keeps the last good estimate.
	fetcher.err = errors.New("down again")
	est.Refresh(ctx)
	cur, ok := est.Current()
	assert.True(t, ok)
	assert.Equal(t, "35", cur.GasPriceGwei.String())
}

func TestGasEstimator_RunStopsOnCancel(t *testing.T) {
	fetcher := &fakeGasFetcher{est: domain.GasEstimate{EstimatedGasUSD: dec("0.02")}}
	est := service.NewGasEstimator(fetcher, time.Hour, dec("0.01"), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- est.Run(ctx) }()

	assert.Eventually(t, func() bool { return est.CurrentUSD().Equal(dec("0.02")) }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
