package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcex/matchengine/internal/model"
)

func sampleTrade() *model.Trade {
	return &model.Trade{
		TradeID:     1,
		BuyOrderID:  "B1",
		SellOrderID: "S1",
		BuyUserID:   "u1",
		SellUserID:  "u2",
		Symbol:      "AAPL",
		Quantity:    decimal.RequireFromString("10"),
		Price:       decimal.RequireFromString("50"),
		TimestampMs: 1000,
	}
}

func TestTradeSinkWritesOneJSONLinePerTrade(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.log")
	sink := NewSink(path, 16)
	require.NoError(t, sink.Start())

	ts := NewTradeSink(sink)
	ts.OnTrade(sampleTrade())
	sink.Stop()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trade_id":1`)
	assert.Contains(t, string(data), `"symbol":"AAPL"`)
	assert.Equal(t, 1, countLines(string(data)))
}

func TestExecutionSinkWritesOneLinePerLeg(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "executions.log")
	sink := NewSink(path, 16)
	require.NoError(t, sink.Start())

	es := NewExecutionSink(sink)
	es.OnTrade(sampleTrade())
	sink.Stop()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(string(data)))
	assert.Contains(t, string(data), `"side":"BUY"`)
	assert.Contains(t, string(data), `"side":"SELL"`)
}
