package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitcex/matchengine/internal/model"
	"github.com/orbitcex/matchengine/internal/portfolio"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func limitOrder(id, userID, side string, qty, price string) *model.Order {
	s := model.OrderSideBuy
	if side == "SELL" {
		s = model.OrderSideSell
	}
	return model.New(id, userID, "AAPL", model.OrderTypeLimit, s, d(qty), d(price))
}

func marketOrder(id, userID, side, qty string) *model.Order {
	s := model.OrderSideBuy
	if side == "SELL" {
		s = model.OrderSideSell
	}
	return model.New(id, userID, "AAPL", model.OrderTypeMarket, s, d(qty), decimal.Zero)
}

// Scenario 1: limit match at the same price.
func TestLimitMatchSamePrice(t *testing.T) {
	e := New(decimal.Zero)
	book := e.GetOrderBook("AAPL")

	sell := limitOrder("S1", "u2", "SELL", "100", "50.0")
	book.AddOrder(sell)
	trades := e.MatchOrder(sell, book)
	assert.Empty(t, trades)

	buy := limitOrder("B1", "u1", "BUY", "100", "50.0")
	book.AddOrder(buy)
	trades = e.MatchOrder(buy, book)

	require.Len(t, trades, 1)
	tr := trades[0]
	assert.True(t, tr.Quantity.Equal(d("100")))
	assert.True(t, tr.Price.Equal(d("50.0")))
	assert.Equal(t, "u1", tr.BuyUserID)
	assert.Equal(t, "u2", tr.SellUserID)
	assert.True(t, e.TotalVolume().Equal(d("5000.0")))
}

// Scenario 2: partial fill leaves the resting order on the book.
func TestPartialFillLeavesRestingRemainder(t *testing.T) {
	e := New(decimal.Zero)
	book := e.GetOrderBook("AAPL")

	sell := limitOrder("S1", "u2", "SELL", "200", "50")
	book.AddOrder(sell)
	e.MatchOrder(sell, book)

	buy := limitOrder("B1", "u1", "BUY", "75", "50")
	book.AddOrder(buy)
	trades := e.MatchOrder(buy, book)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(d("75")))
	assert.True(t, trades[0].Price.Equal(d("50")))

	resting := book.FindOrder("S1")
	require.NotNil(t, resting)
	assert.True(t, resting.Quantity.Equal(d("125")))
	assert.True(t, resting.Price.Equal(d("50")))
}

// Scenario 3: a market order's price is captured once at entry; deeper
// levels beyond the captured price do not match even though they could
// satisfy the remaining quantity.
func TestMarketOrderPriceCapturedOnceAtEntry(t *testing.T) {
	e := New(decimal.Zero)
	book := e.GetOrderBook("AAPL")

	s1 := limitOrder("S1", "u2", "SELL", "50", "49")
	s2 := limitOrder("S2", "u2", "SELL", "75", "51")
	book.AddOrder(s1)
	book.AddOrder(s2)

	buy := marketOrder("B1", "u1", "BUY", "100")
	trades := e.MatchOrder(buy, book)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(d("50")))
	assert.True(t, trades[0].Price.Equal(d("49")))
	assert.True(t, buy.Quantity.Equal(d("50"))) // remainder discarded, not parked

	// the 51 level is untouched
	resting := book.FindOrder("S2")
	require.NotNil(t, resting)
	assert.True(t, resting.Quantity.Equal(d("75")))
}

// Scenario 4: a trade can execute and update counters/seller state even
// though the buyer's applyExecution fails for insufficient funds — the
// documented asymmetry.
func TestTradeExecutesDespiteBuyerInsufficientFunds(t *testing.T) {
	e := New(decimal.Zero)
	book := e.GetOrderBook("AAPL")
	e.Users().Add(portfolio.New("u3", d("1000")))
	u4 := portfolio.New("u4", decimal.Zero)
	u4.Positions["AAPL"] = &model.Position{Symbol: "AAPL", Quantity: d("200"), AveragePrice: d("50")}
	e.Users().Add(u4)

	sell := limitOrder("S1", "u4", "SELL", "200", "50")
	book.AddOrder(sell)
	e.MatchOrder(sell, book)

	buy := limitOrder("B1", "u3", "BUY", "100", "50")
	book.AddOrder(buy)
	trades := e.MatchOrder(buy, book)

	require.Len(t, trades, 1)
	assert.EqualValues(t, 1, e.TotalTrades())

	resting := book.FindOrder("S1")
	require.NotNil(t, resting)
	assert.True(t, resting.Quantity.Equal(d("100")))

	seller, ok := e.Users().SnapshotOne("u4")
	require.True(t, ok)
	assert.True(t, seller.CashBalance.Equal(d("5000")))

	buyer, ok := e.Users().SnapshotOne("u3")
	require.True(t, ok)
	assert.True(t, buyer.CashBalance.Equal(d("1000"))) // unchanged: gross(5000) > cash(1000)
	assert.True(t, buyer.Positions["AAPL"].Quantity.IsZero())
}

func TestEmptyOppositeSideProducesNoTrades(t *testing.T) {
	e := New(decimal.Zero)
	book := e.GetOrderBook("AAPL")
	buy := marketOrder("B1", "u1", "BUY", "10")
	trades := e.MatchOrder(buy, book)
	assert.Empty(t, trades)
}

func TestTradeCallbackInvokedPerFill(t *testing.T) {
	e := New(decimal.Zero)
	book := e.GetOrderBook("AAPL")
	var seen []*model.Trade
	e.SetTradeCallback(func(tr *model.Trade) { seen = append(seen, tr) })

	sell := limitOrder("S1", "u2", "SELL", "10", "50")
	book.AddOrder(sell)
	buy := limitOrder("B1", "u1", "BUY", "10", "50")
	book.AddOrder(buy)
	e.MatchOrder(buy, book)

	require.Len(t, seen, 1)
	assert.EqualValues(t, 1, seen[0].TradeID)
}
