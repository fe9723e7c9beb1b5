package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// GasFetcher returns the backend's settlement gas estimate.
type GasFetcher interface {
	GasEstimate(ctx context.Context) (domain.GasEstimate, error)
}

// GasEstimator keeps the latest gas estimate, refreshed on a fixed
// interval. Until a first estimate arrives, or after a failed refresh with
// nothing cached, the fallback is used.
type GasEstimator struct {
	fetcher  GasFetcher
	interval time.Duration
	fallback decimal.Decimal
	logger   *slog.Logger

	mu        sync.RWMutex
	latest    *domain.GasEstimate
	updatedAt time.Time
}

// NewGasEstimator creates a GasEstimator.
func NewGasEstimator(fetcher GasFetcher, interval time.Duration, fallbackUSD decimal.Decimal, logger *slog.Logger) *GasEstimator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &GasEstimator{
		fetcher:  fetcher,
		interval: interval,
		fallback: fallbackUSD,
		logger:   logger,
	}
}

// Run refreshes the estimate immediately and then every interval until ctx
// is cancelled.
func (e *GasEstimator) Run(ctx context.Context) error {
	e.Refresh(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Refresh(ctx)
		}
	}
}

// Refresh fetches a new estimate. Failures keep the previous value.
func (e *GasEstimator) Refresh(ctx context.Context) {
	est, err := e.fetcher.GasEstimate(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "gas_estimator: refresh failed, keeping previous estimate",
			slog.String("error", err.Error()),
		)
		return
	}

	e.mu.Lock()
	e.latest = &est
	e.updatedAt = time.Now()
	e.mu.Unlock()

	e.logger.DebugContext(ctx, "gas_estimator: refreshed",
		slog.String("usd", est.EstimatedGasUSD.String()),
		slog.String("gwei", est.GasPriceGwei.String()),
	)
}

// CurrentUSD returns the latest gas cost in USD, or the fallback.
func (e *GasEstimator) CurrentUSD() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return e.fallback
	}
	return e.latest.EstimatedGasUSD
}

// Current returns the latest estimate and whether one has been fetched.
func (e *GasEstimator) Current() (domain.GasEstimate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return domain.GasEstimate{EstimatedGasUSD: e.fallback}, false
	}
	return *e.latest, true
}
