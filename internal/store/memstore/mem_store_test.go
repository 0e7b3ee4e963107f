package memstore

import (
	"context"
	"testing"
	"time"

	"rudder/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderUpsertAndListing(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Update(ctx, store.EndpointOrders, store.OrderRecord{
		UID: "o2", BotUID: "bot", Side: "sell", Status: "open", DTOpen: base.Add(time.Hour),
	}))
	require.NoError(t, s.Update(ctx, store.EndpointOrders, store.OrderRecord{
		UID: "o1", BotUID: "bot", Side: "buy", Status: "open", DTOpen: base,
	}))
	// Same identity key replaces in place.
	require.NoError(t, s.Update(ctx, store.EndpointOrders, store.OrderRecord{
		UID: "o1", BotUID: "bot", Side: "buy", Status: "executed", DTOpen: base,
	}))

	orders, err := s.ListOrders(ctx, "bot", 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o1", orders[0].UID)
	assert.Equal(t, "executed", orders[0].Status)
	assert.Equal(t, "o2", orders[1].UID)

	limited, err := s.ListOrders(ctx, "bot", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	other, err := s.ListOrders(ctx, "other-bot", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPortfolioUpsertKeyedByTimestamp(t *testing.T) {
	s := New()
	ctx := context.Background()
	dt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, store.EndpointPortfolio, []any{
		store.PortfolioRecord{BotUID: "bot", DT: dt, Performance: 1.0},
		store.PortfolioRecord{BotUID: "bot", DT: dt, Performance: 1.1},
		store.PortfolioRecord{BotUID: "bot", DT: dt.Add(time.Hour), Performance: 1.2},
	}))

	snaps, err := s.ListPortfolio(ctx, "bot", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 1.1, snaps[0].Performance)
	assert.Equal(t, 1.2, snaps[1].Performance)
}

func TestBotLookup(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, store.EndpointBots, store.BotRecord{UID: "bot", Status: "started"}))

	rec, ok, err := s.GetBot(ctx, "bot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "started", rec.Status)

	_, ok, err = s.GetBot(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectsWrongRecordType(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), store.EndpointOrders, store.BotRecord{UID: "bot"})
	assert.Error(t, err)
}
