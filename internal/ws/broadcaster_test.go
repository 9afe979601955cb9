package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orbitcex/matchengine/internal/model"
)

func TestBroadcasterOnTradeWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New(nil)
	b.OnTrade(&model.Trade{Symbol: "AAPL", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)})
}

func TestBroadcasterDeliversTradeToSubscribedSymbol(t *testing.T) {
	b := New(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/ws/trades/")
		require.NoError(t, b.ServeHTTP(w, r, symbol))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/trades/AAPL"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give ServeHTTP a moment to register the subscriber before publishing.
	time.Sleep(20 * time.Millisecond)

	trade := &model.Trade{
		TradeID: 7,
		Symbol:  "AAPL",
		Quantity: decimal.NewFromInt(5),
		Price:    decimal.NewFromInt(100),
	}
	b.OnTrade(trade)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got model.Trade
	require.NoError(t, json.Unmarshal(msg, &got))
	require.Equal(t, trade.TradeID, got.TradeID)
	require.Equal(t, "AAPL", got.Symbol)
}

func TestBroadcasterDoesNotDeliverToOtherSymbol(t *testing.T) {
	b := New(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/ws/trades/")
		require.NoError(t, b.ServeHTTP(w, r, symbol))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/trades/BTC"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	b.OnTrade(&model.Trade{Symbol: "AAPL", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	require.Error(t, err) // read deadline exceeded: nothing was ever delivered
}
