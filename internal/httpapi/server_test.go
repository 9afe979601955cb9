package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcex/matchengine/internal/bus"
	"github.com/orbitcex/matchengine/internal/cache"
	"github.com/orbitcex/matchengine/internal/matching"
	"github.com/orbitcex/matchengine/internal/stats"
	"github.com/orbitcex/matchengine/internal/ws"
)

func newTestServer(t *testing.T) (*Server, bus.Bus) {
	t.Helper()
	eng := matching.New(decimal.NewFromInt(1000))
	b := bus.NewInMemoryBus()
	require.NoError(t, b.Connect())
	statsCollector := stats.New([]stats.Timeframe{stats.Timeframe1m}, 64)

	s := New(Deps{
		Engine:      eng,
		Bus:         b,
		Stats:       statsCollector,
		Cache:       cache.NewRedisCache("", nil),
		Broadcaster: ws.New(nil),
	})
	return s, b
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHandlePostOrderRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/order", strings.NewReader(`{"symbol":"AAPL"}`))
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePostOrderPublishesToBus(t *testing.T) {
	s, b := newTestServer(t)

	received := make(chan []byte, 1)
	require.NoError(t, b.Subscribe("order-requests", func(msg bus.Message) {
		received <- msg.Value
	}))

	body := `{"id":"o1","userId":"u1","symbol":"AAPL","type":"LIMIT","side":"BUY","quantity":1,"price":10}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/order", strings.NewReader(body))
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case got := <-received:
		assert.JSONEq(t, body, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("expected order to be published to the bus")
	}
}

func TestHandleOrderBookUnknownSymbol(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orderbook/DOES-NOT-EXIST", nil)
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStatsSummaryIsCachedAcrossCalls(t *testing.T) {
	s, _ := newTestServer(t)

	w1 := httptest.NewRecorder()
	s.Handler().ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/v1/stats/summary", nil))
	assert.Equal(t, http.StatusOK, w1.Code)

	cached, ok := s.cache.Get(context.Background(), "stats:summary")
	require.True(t, ok)

	var body map[string]any
	require.NoError(t, json.Unmarshal(cached, &body))
	assert.Equal(t, float64(0), body["total_symbols"])
}

func TestHandleDepositPublishesToBusInsteadOfMutatingDirectly(t *testing.T) {
	s, b := newTestServer(t)

	received := make(chan []byte, 1)
	require.NoError(t, b.Subscribe("deposit-requests", func(msg bus.Message) {
		received <- msg.Value
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/new-user/deposit", strings.NewReader(`{"amount":"50"}`))
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "new-user", resp["user_id"])

	select {
	case got := <-received:
		var msg map[string]string
		require.NoError(t, json.Unmarshal(got, &msg))
		assert.Equal(t, "new-user", msg["user_id"])
		assert.Equal(t, "50", msg["amount"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected deposit to be published to the bus")
	}
}

func TestHandleDepositRejectsNonPositiveAmount(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/new-user/deposit", strings.NewReader(`{"amount":"-5"}`))
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePortfolioUnknownUser(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/ghost/portfolio", nil)
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
