package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcex/matchengine/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newOrder(id, side string, qty, price string) *model.Order {
	s := model.OrderSideBuy
	if side == "SELL" {
		s = model.OrderSideSell
	}
	return model.New(id, "u1", "AAPL", model.OrderTypeLimit, s, d(qty), d(price))
}

func TestAddOrderRejectsSymbolMismatch(t *testing.T) {
	b := New("AAPL")
	o := newOrder("1", "BUY", "1", "10")
	o.Symbol = "MSFT"
	assert.False(t, b.AddOrder(o))
}

func TestBestBidAskEmptyBookIsZero(t *testing.T) {
	b := New("AAPL")
	assert.True(t, b.GetBestBid().IsZero())
	assert.True(t, b.GetBestAsk().IsZero())
	assert.True(t, b.GetSpread().IsZero())
}

func TestBestBidIsHighestPrice(t *testing.T) {
	b := New("AAPL")
	require.True(t, b.AddOrder(newOrder("1", "BUY", "1", "10")))
	require.True(t, b.AddOrder(newOrder("2", "BUY", "1", "12")))
	require.True(t, b.AddOrder(newOrder("3", "BUY", "1", "11")))
	assert.True(t, b.GetBestBid().Equal(d("12")))
}

func TestBestAskIsLowestPrice(t *testing.T) {
	b := New("AAPL")
	require.True(t, b.AddOrder(newOrder("1", "SELL", "1", "10")))
	require.True(t, b.AddOrder(newOrder("2", "SELL", "1", "8")))
	require.True(t, b.AddOrder(newOrder("3", "SELL", "1", "9")))
	assert.True(t, b.GetBestAsk().Equal(d("8")))
}

func TestFIFOOrderingWithinPriceLevel(t *testing.T) {
	b := New("AAPL")
	require.True(t, b.AddOrder(newOrder("1", "BUY", "1", "10")))
	require.True(t, b.AddOrder(newOrder("2", "BUY", "1", "10")))
	require.True(t, b.AddOrder(newOrder("3", "BUY", "1", "10")))

	orders := b.GetBuyOrders()
	require.Len(t, orders, 3)
	assert.Equal(t, "1", orders[0].ID)
	assert.Equal(t, "2", orders[1].ID)
	assert.Equal(t, "3", orders[2].ID)
}

func TestRemoveOrderPrunesEmptyLevel(t *testing.T) {
	b := New("AAPL")
	require.True(t, b.AddOrder(newOrder("1", "BUY", "1", "10")))
	require.True(t, b.RemoveOrder("1"))
	assert.True(t, b.GetBestBid().IsZero())
	assert.Nil(t, b.FindOrder("1"))
}

func TestRemoveOrderLeavesSiblingsAtSameLevel(t *testing.T) {
	b := New("AAPL")
	require.True(t, b.AddOrder(newOrder("1", "BUY", "1", "10")))
	require.True(t, b.AddOrder(newOrder("2", "BUY", "1", "10")))
	require.True(t, b.RemoveOrder("1"))
	assert.True(t, b.GetBestBid().Equal(d("10")))
	orders := b.GetBuyOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "2", orders[0].ID)
}

func TestRemoveOrderUnknownIDReturnsFalse(t *testing.T) {
	b := New("AAPL")
	assert.False(t, b.RemoveOrder("nope"))
}

func TestGetSpreadIsAskMinusBid(t *testing.T) {
	b := New("AAPL")
	require.True(t, b.AddOrder(newOrder("1", "BUY", "1", "10")))
	require.True(t, b.AddOrder(newOrder("2", "SELL", "1", "12")))
	assert.True(t, b.GetSpread().Equal(d("2")))
}

func TestToJSONAggregatesQuantityPerLevel(t *testing.T) {
	b := New("AAPL")
	require.True(t, b.AddOrder(newOrder("1", "BUY", "2", "10")))
	require.True(t, b.AddOrder(newOrder("2", "BUY", "3", "10")))

	snap := b.ToJSON()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, "5", snap.Bids[0].Quantity)
	assert.Equal(t, "10", snap.Bids[0].Price)
}

func TestRemoveIfExhaustedLockedDropsFilledOrder(t *testing.T) {
	b := New("AAPL")
	o := newOrder("1", "BUY", "1", "10")
	require.True(t, b.AddOrder(o))
	o.AddFill(d("1"))

	b.mu.Lock()
	b.removeIfExhaustedLocked(o)
	b.mu.Unlock()

	assert.Nil(t, b.FindOrder("1"))
}
