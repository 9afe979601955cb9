package stats

import (
	"testing"
	"time"

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

func trade(symbol, price, qty string, ts time.Time) *model.Trade {
	return &model.Trade{Symbol: symbol, Price: d(price), Quantity: d(qty), TimestampMs: ts.UnixMilli()}
}

func waitProcessed(t *testing.T, c *Collector, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.GetTotalTradesProcessed() == n
	}, time.Second, time.Millisecond)
}

// Scenario 5: OHLCV fold within a single minute bucket.
func TestOHLCVFoldWithinSingleMinute(t *testing.T) {
	c := New([]Timeframe{Timeframe1m}, 64)
	c.Start()
	defer c.Stop()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	require.True(t, c.Submit(trade("AAPL", "100", "50", base)))
	require.True(t, c.Submit(trade("AAPL", "110", "25", base.Add(5*time.Second))))
	require.True(t, c.Submit(trade("AAPL", "95", "100", base.Add(10*time.Second))))
	waitProcessed(t, c, 3)

	snap, ok := c.GetStatsForSymbol("AAPL")
	require.True(t, ok)
	b := snap.Buckets[Timeframe1m]

	assert.True(t, b.Open.Equal(d("100")))
	assert.True(t, b.High.Equal(d("110")))
	assert.True(t, b.Low.Equal(d("95")))
	assert.True(t, b.Close.Equal(d("95")))
	assert.True(t, b.Volume.Equal(d("175")))
	assert.True(t, b.DollarVolume.Equal(d("17250")))
	assert.EqualValues(t, 3, b.TradeCount)

	vwap := b.VWAP()
	expected := d("17250").Div(d("175"))
	assert.True(t, vwap.Sub(expected).Abs().LessThan(d("0.0001")))
}

func TestOHLCBoundsHoldAfterEveryUpdate(t *testing.T) {
	c := New([]Timeframe{Timeframe1m}, 64)
	c.Start()
	defer c.Stop()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	prices := []string{"100", "90", "120", "80", "110"}
	for i, p := range prices {
		require.True(t, c.Submit(trade("AAPL", p, "1", base.Add(time.Duration(i)*time.Second))))
	}
	waitProcessed(t, c, uint64(len(prices)))

	snap, ok := c.GetStatsForSymbol("AAPL")
	require.True(t, ok)
	b := snap.Buckets[Timeframe1m]
	assert.True(t, b.Low.LessThanOrEqual(b.Open))
	assert.True(t, b.Low.LessThanOrEqual(b.Close))
	assert.True(t, b.High.GreaterThanOrEqual(b.Open))
	assert.True(t, b.High.GreaterThanOrEqual(b.Close))
}

func TestBucketRotatesAcrossMinuteBoundaryKeepingPreviousClose(t *testing.T) {
	c := New([]Timeframe{Timeframe1m}, 64)
	c.Start()
	defer c.Stop()

	minuteOne := time.Date(2026, 1, 1, 10, 0, 30, 0, time.UTC)
	minuteTwo := time.Date(2026, 1, 1, 10, 1, 5, 0, time.UTC)

	require.True(t, c.Submit(trade("AAPL", "100", "1", minuteOne)))
	waitProcessed(t, c, 1)
	require.True(t, c.Submit(trade("AAPL", "105", "1", minuteTwo)))
	waitProcessed(t, c, 2)

	snap, ok := c.GetStatsForSymbol("AAPL")
	require.True(t, ok)
	b := snap.Buckets[Timeframe1m]
	assert.True(t, b.Open.Equal(d("105")))
	// simple_return = (105-100)/100 = 0.05
	assert.True(t, b.SimpleReturn.Equal(d("0.05")))
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	c := New([]Timeframe{Timeframe1m}, 1) // rounds up to a power of two
	// do not Start the consumer, so the queue fills and stays full
	base := time.Now()
	ok1 := c.Submit(trade("AAPL", "1", "1", base))
	assert.True(t, ok1)
	ok2 := c.Submit(trade("AAPL", "1", "1", base))
	assert.False(t, ok2)
	assert.EqualValues(t, 1, c.GetTotalTradesDropped())
}

func TestGetStatsForUnknownSymbolReturnsFalse(t *testing.T) {
	c := New([]Timeframe{Timeframe1m}, 8)
	_, ok := c.GetStatsForSymbol("NOPE")
	assert.False(t, ok)
}
