// Package stats implements the OHLCV statistics collector (C10): a single
// consumer folding trade events into per-symbol, per-timeframe buckets fed
// through a bounded MPSC queue.
package stats

import (
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orbitcex/matchengine/internal/model"
	"github.com/orbitcex/matchengine/internal/queue"
)

const ewmaAlpha = 0.1

// Timeframe is a supported OHLCV aggregation window.
type Timeframe string

const (
	Timeframe1m Timeframe = "1m"
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe1d Timeframe = "1d"
)

// bucketStart aligns ts to the start of the timeframe window it falls in,
// per spec.md §4.10's UTC boundary rule.
func bucketStart(tf Timeframe, ts time.Time) time.Time {
	ts = ts.UTC()
	switch tf {
	case Timeframe1m:
		return ts.Truncate(time.Minute)
	case Timeframe5m:
		m := ts.Minute() - ts.Minute()%5
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), m, 0, 0, time.UTC)
	case Timeframe1h:
		return ts.Truncate(time.Hour)
	case Timeframe1d:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return ts
	}
}

// Bucket is one OHLCV window for one symbol/timeframe.
type Bucket struct {
	Start         time.Time
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        decimal.Decimal
	DollarVolume  decimal.Decimal
	TradeCount    uint64
	SimpleReturn  decimal.Decimal
	Volatility    float64
}

// VWAP returns DollarVolume / Volume, or zero if Volume is zero.
func (b Bucket) VWAP() decimal.Decimal {
	if b.Volume.IsZero() {
		return decimal.Zero
	}
	return b.DollarVolume.Div(b.Volume)
}

// InstrumentStats is one symbol's state: the active bucket per configured
// timeframe plus the last trade price used for EWMA volatility.
type InstrumentStats struct {
	Symbol         string
	Buckets        map[Timeframe]Bucket
	LastTradePrice decimal.Decimal
	lastVolatility float64
}

func newInstrumentStats(symbol string, timeframes []Timeframe) *InstrumentStats {
	buckets := make(map[Timeframe]Bucket, len(timeframes))
	for _, tf := range timeframes {
		buckets[tf] = Bucket{}
	}
	return &InstrumentStats{Symbol: symbol, Buckets: buckets}
}

func (s *InstrumentStats) snapshot() InstrumentStats {
	buckets := make(map[Timeframe]Bucket, len(s.Buckets))
	for k, v := range s.Buckets {
		buckets[k] = v
	}
	return InstrumentStats{Symbol: s.Symbol, Buckets: buckets, LastTradePrice: s.LastTradePrice}
}

// tradeEvent is what Submit enqueues onto the MPSC queue.
type tradeEvent struct {
	symbol string
	price  decimal.Decimal
	qty    decimal.Decimal
	ts     time.Time
}

// Collector runs the single-consumer OHLCV fold. Submit is safe for many
// concurrent producers; everything else must only be read, never mutated,
// by callers.
type Collector struct {
	timeframes []Timeframe
	q          *queue.MPSC

	mu    sync.RWMutex
	stats map[string]*InstrumentStats

	processed uint64
	dropped   uint64
	statsMu   sync.Mutex

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New constructs a collector over the given timeframes with a bounded
// queue of queueCapacity (rounded up to a power of two by queue.New).
func New(timeframes []Timeframe, queueCapacity int) *Collector {
	return &Collector{
		timeframes: timeframes,
		q:          queue.New(queueCapacity),
		stats:      make(map[string]*InstrumentStats),
		done:       make(chan struct{}),
	}
}

// Start launches the single collector goroutine.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.run()
}

// Submit enqueues a trade event non-blocking. Returns false and bumps the
// drop counter if the queue is full.
func (c *Collector) Submit(t *model.Trade) bool {
	ev := tradeEvent{symbol: t.Symbol, price: t.Price, qty: t.Quantity, ts: time.UnixMilli(t.TimestampMs)}
	if c.q.Size() >= c.q.Capacity() {
		c.statsMu.Lock()
		c.dropped++
		c.statsMu.Unlock()
		return false
	}
	c.q.Enqueue(ev)
	return true
}

func (c *Collector) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			c.drain()
			return
		default:
		}
		v, ok := c.q.TryDequeue()
		if !ok {
			runtime.Gosched()
			continue
		}
		c.fold(v.(tradeEvent))
	}
}

// drain flushes whatever is left in the queue after stop is requested,
// per spec.md §4.10 "On shutdown, drain the queue before returning".
func (c *Collector) drain() {
	for {
		v, ok := c.q.TryDequeue()
		if !ok {
			return
		}
		c.fold(v.(tradeEvent))
	}
}

func (c *Collector) fold(ev tradeEvent) {
	c.mu.Lock()
	inst, ok := c.stats[ev.symbol]
	if !ok {
		inst = newInstrumentStats(ev.symbol, c.timeframes)
		c.stats[ev.symbol] = inst
	}

	for _, tf := range c.timeframes {
		start := bucketStart(tf, ev.ts)
		bucket := inst.Buckets[tf]
		previousClose := bucket.Close

		if bucket.Start.IsZero() || !bucket.Start.Equal(start) {
			// rollover: previousClose already captured above from the
			// closing bucket; a fresh bucket opens for the new window.
			bucket = Bucket{Start: start}
		}

		if bucket.TradeCount == 0 {
			bucket.Open = ev.price
			bucket.High = ev.price
			bucket.Low = ev.price
			bucket.Close = ev.price
			bucket.Volume = ev.qty
			bucket.DollarVolume = ev.price.Mul(ev.qty)
			bucket.TradeCount = 1
		} else {
			if ev.price.GreaterThan(bucket.High) {
				bucket.High = ev.price
			}
			if ev.price.LessThan(bucket.Low) {
				bucket.Low = ev.price
			}
			bucket.Close = ev.price
			bucket.Volume = bucket.Volume.Add(ev.qty)
			bucket.DollarVolume = bucket.DollarVolume.Add(ev.price.Mul(ev.qty))
			bucket.TradeCount++
		}

		if previousClose.Sign() > 0 {
			bucket.SimpleReturn = bucket.Close.Sub(previousClose).Div(previousClose)
		}

		inst.Buckets[tf] = bucket
	}

	if inst.LastTradePrice.Sign() > 0 {
		priceF, _ := ev.price.Float64()
		prevF, _ := inst.LastTradePrice.Float64()
		r := (priceF - prevF) / prevF
		var vSq float64
		if inst.lastVolatility == 0 {
			vSq = r * r
		} else {
			vSq = ewmaAlpha*r*r + (1-ewmaAlpha)*inst.lastVolatility*inst.lastVolatility
		}
		vol := math.Sqrt(vSq)
		inst.lastVolatility = vol
		for _, tf := range c.timeframes {
			b := inst.Buckets[tf]
			b.Volatility = vol
			inst.Buckets[tf] = b
		}
	}
	inst.LastTradePrice = ev.price
	c.mu.Unlock()

	c.statsMu.Lock()
	c.processed++
	c.statsMu.Unlock()
}

// GetStatsForSymbol returns a snapshot copy, or (zero, false) if unknown.
func (c *Collector) GetStatsForSymbol(symbol string) (InstrumentStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.stats[symbol]
	if !ok {
		return InstrumentStats{}, false
	}
	return inst.snapshot(), true
}

// GetAllStats returns a snapshot copy of every tracked symbol.
func (c *Collector) GetAllStats() map[string]InstrumentStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]InstrumentStats, len(c.stats))
	for sym, inst := range c.stats {
		out[sym] = inst.snapshot()
	}
	return out
}

// GetQueueSize returns the number of unprocessed events currently queued.
func (c *Collector) GetQueueSize() int { return c.q.Size() }

// GetTotalTradesProcessed returns the running processed counter.
func (c *Collector) GetTotalTradesProcessed() uint64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.processed
}

// GetTotalTradesDropped returns the running drop counter.
func (c *Collector) GetTotalTradesDropped() uint64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.dropped
}

// Stop signals the collector goroutine to drain and exit, then waits for
// it to finish.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}
