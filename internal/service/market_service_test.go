package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polydesk/internal/cache/memory"
	"github.com/alanyoungcy/polydesk/internal/domain"
	"github.com/alanyoungcy/polydesk/internal/service"
)

func TestMarketService_EventMarketsDeduped(t *testing.T) {
	api := newFakeAPI()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	api.eventMkts = []domain.Market{
		{ID: 1, Question: "old", UpdatedAt: t0},
		{ID: 2, Question: "other", UpdatedAt: t0.Add(time.Hour)},
		{ID: 1, Question: "new", UpdatedAt: t0.Add(2 * time.Hour)},
	}
	svc := service.NewMarketService(api, nil, time.Minute, testLogger())

	got, err := svc.EventMarkets(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Question)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestMarketService_ListCachedUntilSync(t *testing.T) {
	api := newFakeAPI()
	api.markets[1] = domain.Market{ID: 1, Active: true}
	cache := memory.NewQueryCache()
	svc := service.NewMarketService(api, cache, time.Minute, testLogger())
	ctx := context.Background()
	flt := domain.MarketFilter{Active: ptr(true)}

	_, err := svc.ListMarkets(ctx, flt)
	require.NoError(t, err)
	_, err = svc.ListMarkets(ctx, flt)
	require.NoError(t, err)
	_, err = svc.ListEvents(ctx, domain.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, api.listCalls)

	res, err := svc.SyncEvents(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, "job-1", res.JobID)
	assert.Equal(t, 50, api.syncLimit)

	_, err = svc.ListMarkets(ctx, flt)
	require.NoError(t, err)
	assert.Equal(t, 3, api.listCalls)
}
