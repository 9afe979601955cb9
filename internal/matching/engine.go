// Package matching implements the matching engine (C5): per-symbol order
// books, the price-time matching algorithm, trade construction, and the
// post-fill side effects that update the user registry and counters.
package matching

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/orbitcex/matchengine/internal/model"
	"github.com/orbitcex/matchengine/internal/orderbook"
	"github.com/orbitcex/matchengine/internal/portfolio"
)

// TradeCallback is invoked once per trade produced by MatchOrder, after
// counters and portfolios have been updated.
type TradeCallback func(*model.Trade)

// Engine owns every symbol's order book, the user registry, and the
// running trade counters. All mutating methods (AddOrderBook, MatchOrder)
// must only be called from the single bus-subscriber goroutine; TotalTrades,
// TotalVolume and the user registry's Snapshot methods are safe for
// concurrent readers.
type Engine struct {
	mu       sync.RWMutex
	books    map[string]*orderbook.OrderBook
	users    *portfolio.Registry
	callback TradeCallback

	nextTradeID  uint64
	totalTrades  uint64
	totalVolume  decimal.Decimal

	startingCash decimal.Decimal
}

// New constructs an empty engine. startingCash is the balance lazily
// created users are seeded with (spec.md §4.5.3 "starting_cash=0, the
// source default; implementers may parametrize" — SPEC_FULL.md promotes
// this to a configured value).
func New(startingCash decimal.Decimal) *Engine {
	return &Engine{
		books:        make(map[string]*orderbook.OrderBook),
		users:        portfolio.NewRegistry(),
		nextTradeID:  1,
		totalVolume:  decimal.Zero,
		startingCash: startingCash,
	}
}

// Users exposes the registry for read-only snapshot access (HTTP handlers)
// and for the engine shell's deposit path.
func (e *Engine) Users() *portfolio.Registry { return e.users }

// SetTradeCallback installs the callback invoked after every trade.
func (e *Engine) SetTradeCallback(cb TradeCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = cb
}

// AddOrderBook registers a pre-built book for symbol, overwriting any
// existing one.
func (e *Engine) AddOrderBook(symbol string, book *orderbook.OrderBook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books[symbol] = book
}

// GetOrderBook returns the existing book for symbol, or creates and
// registers an empty one.
func (e *Engine) GetOrderBook(symbol string) *orderbook.OrderBook {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[symbol]
	if !ok {
		b = orderbook.New(symbol)
		e.books[symbol] = b
	}
	return b
}

// LookupOrderBook returns the existing book for symbol without creating
// one, and whether it was found. HTTP read handlers use this so an unknown
// symbol surfaces as 404 rather than silently provisioning an empty book.
func (e *Engine) LookupOrderBook(symbol string) (*orderbook.OrderBook, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[symbol]
	return b, ok
}

// Symbols returns every symbol with a registered order book.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for sym := range e.books {
		out = append(out, sym)
	}
	return out
}

// MarkPrice returns the current mark price for symbol: the mid of best
// bid/ask if both are > 0, else whichever side is > 0, else zero.
func (e *Engine) MarkPrice(symbol string) decimal.Decimal {
	book, ok := e.LookupOrderBook(symbol)
	if !ok {
		return decimal.Zero
	}
	bid := book.GetBestBid()
	ask := book.GetBestAsk()
	switch {
	case bid.Sign() > 0 && ask.Sign() > 0:
		return bid.Add(ask).Div(decimal.NewFromInt(2))
	case bid.Sign() > 0:
		return bid
	case ask.Sign() > 0:
		return ask
	default:
		return decimal.Zero
	}
}

// TotalTrades returns the running trade count.
func (e *Engine) TotalTrades() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalTrades
}

// TotalVolume returns the running notional volume (sum of quantity*price
// across every trade).
func (e *Engine) TotalVolume() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalVolume
}

// MatchOrder runs the price-time matching algorithm for order against book,
// producing zero or more trades. order must belong to book's symbol and
// must not be a STOP order — callers are responsible for routing STOP
// orders elsewhere (spec.md §4.5.1: "not implemented in the core").
//
// Any unfilled remainder is left resting in the book for LIMIT orders, or
// discarded for MARKET orders (never parked).
func (e *Engine) MatchOrder(order *model.Order, book *orderbook.OrderBook) []*model.Trade {
	switch order.Type {
	case model.OrderTypeMarket:
		return e.matchMarketOrder(order, book)
	case model.OrderTypeLimit:
		return e.matchLimitOrder(order, book)
	default:
		return nil
	}
}

func (e *Engine) matchMarketOrder(order *model.Order, book *orderbook.OrderBook) []*model.Trade {
	var capturedPrice decimal.Decimal
	if order.Side == model.OrderSideBuy {
		capturedPrice = book.GetBestAsk()
	} else {
		capturedPrice = book.GetBestBid()
	}
	if capturedPrice.IsZero() {
		return nil
	}
	return e.walkAndFill(order, book, capturedPrice, func(restingPrice decimal.Decimal) bool {
		if order.Side == model.OrderSideBuy {
			return restingPrice.LessThanOrEqual(capturedPrice)
		}
		return restingPrice.GreaterThanOrEqual(capturedPrice)
	})
}

func (e *Engine) matchLimitOrder(order *model.Order, book *orderbook.OrderBook) []*model.Trade {
	tradePrice := order.Price
	return e.walkAndFill(order, book, tradePrice, func(restingPrice decimal.Decimal) bool {
		if order.Side == model.OrderSideBuy {
			return restingPrice.LessThanOrEqual(order.Price)
		}
		return restingPrice.GreaterThanOrEqual(order.Price)
	})
}

// walkAndFill walks the opposite side of book best-first, filling order
// against resting orders whose price satisfies matchable, at tradePrice.
// It stops once the incoming order is exhausted or no further resting
// order satisfies matchable.
func (e *Engine) walkAndFill(order *model.Order, book *orderbook.OrderBook, tradePrice decimal.Decimal, matchable func(decimal.Decimal) bool) []*model.Trade {
	var trades []*model.Trade

	oppositeSide := order.Side.Opposite()
	for order.Quantity.Sign() > 0 {
		resting := bestOpposite(book, oppositeSide)
		if resting == nil || !matchable(resting.Price) {
			break
		}

		fillQty := decimal.Min(order.Quantity, resting.Quantity)
		order.AddFill(fillQty)
		resting.AddFill(fillQty)
		book.RemoveOrderIfExhausted(resting)

		trade := e.buildTrade(order, resting, fillQty, tradePrice)
		trades = append(trades, trade)
		e.applyPostFillEffects(trade)
	}
	return trades
}

// bestOpposite returns the best resting order on side, or nil if that side
// is empty.
func bestOpposite(book *orderbook.OrderBook, side model.OrderSide) *model.Order {
	var orders []*model.Order
	if side == model.OrderSideBuy {
		orders = book.GetBuyOrders()
	} else {
		orders = book.GetSellOrders()
	}
	if len(orders) == 0 {
		return nil
	}
	return orders[0]
}

func (e *Engine) buildTrade(incoming, resting *model.Order, qty, price decimal.Decimal) *model.Trade {
	e.mu.Lock()
	tradeID := e.nextTradeID
	e.nextTradeID++
	e.mu.Unlock()

	t := &model.Trade{
		TradeID:     tradeID,
		Symbol:      incoming.Symbol,
		Quantity:    qty,
		Price:       price,
		TimestampMs: nowMillis(),
	}
	if incoming.Side == model.OrderSideBuy {
		t.BuyOrderID, t.BuyUserID = incoming.ID, incoming.UserID
		t.SellOrderID, t.SellUserID = resting.ID, resting.UserID
	} else {
		t.SellOrderID, t.SellUserID = incoming.ID, incoming.UserID
		t.BuyOrderID, t.BuyUserID = resting.ID, resting.UserID
	}
	return t
}

// applyPostFillEffects runs spec.md §4.5.3's per-trade sequence: bump
// counters, update both sides' portfolios (fee=0), then fire the callback.
func (e *Engine) applyPostFillEffects(t *model.Trade) {
	e.mu.Lock()
	e.totalTrades++
	e.totalVolume = e.totalVolume.Add(t.Quantity.Mul(t.Price))
	cb := e.callback
	startingCash := e.startingCash
	e.mu.Unlock()

	buyer := e.users.GetOrCreate(t.BuyUserID, startingCash)
	buyer.ApplyExecution(model.OrderSideBuy, t.Symbol, t.Quantity, t.Price, decimal.Zero)

	seller := e.users.GetOrCreate(t.SellUserID, startingCash)
	seller.ApplyExecution(model.OrderSideSell, t.Symbol, t.Quantity, t.Price, decimal.Zero)

	if cb != nil {
		cb(t)
	}
}
