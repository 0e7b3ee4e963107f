package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rudder/internal/store"
	"rudder/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededServer(t *testing.T) *Server {
	t.Helper()
	st := memstore.New()
	ctx := context.Background()
	require.NoError(t, st.Update(ctx, store.EndpointBots, store.BotRecord{
		UID:     "abc123",
		Name:    "btc-rsi",
		Symbol:  "BTCUSDT",
		Status:  "finished",
		DTStart: time.Now().UTC(),
	}))
	require.NoError(t, st.Update(ctx, store.EndpointOrders, store.OrderRecord{
		UID:    "ord-1",
		BotUID: "abc123",
		Side:   "buy",
		Status: "executed",
		DTOpen: time.Now().UTC(),
	}))
	require.NoError(t, st.Update(ctx, store.EndpointPortfolio, store.PortfolioRecord{
		BotUID:      "abc123",
		DT:          time.Now().UTC(),
		Performance: 1.2,
	}))

	srv, err := NewServer(":0", st)
	require.NoError(t, err)
	return srv
}

func doGet(srv *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doGet(seededServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListBots(t *testing.T) {
	rec := doGet(seededServer(t), "/api/bots")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Bots []store.BotRecord `json:"bots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Bots, 1)
	assert.Equal(t, "abc123", body.Bots[0].UID)
}

func TestGetBotNotFound(t *testing.T) {
	rec := doGet(seededServer(t), "/api/bots/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBotOrdersAndPortfolio(t *testing.T) {
	srv := seededServer(t)

	rec := doGet(srv, "/api/bots/abc123")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doGet(srv, "/api/bots/abc123/orders")
	require.Equal(t, http.StatusOK, rec.Code)
	var orders struct {
		Orders []store.OrderRecord `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders.Orders, 1)
	assert.Equal(t, "buy", orders.Orders[0].Side)

	rec = doGet(srv, "/api/bots/abc123/portfolio")
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps struct {
		Portfolio []store.PortfolioRecord `json:"portfolio"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps.Portfolio, 1)
	assert.Equal(t, 1.2, snaps.Portfolio[0].Performance)
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := NewServer(":0", nil)
	assert.Error(t, err)
}
