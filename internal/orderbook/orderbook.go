// Package orderbook implements the per-symbol, two-sided price-level book
// (C4): a price -> FIFO order queue map on each side, iterated in
// price-time priority, with empty levels pruned eagerly so readers never
// observe a stale zero-length level.
package orderbook

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/orbitcex/matchengine/internal/model"
)

// level is one price's FIFO queue of resting orders.
type level struct {
	price  decimal.Decimal
	orders []*model.Order // FIFO: index 0 is oldest
}

func (l *level) totalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.orders {
		total = total.Add(o.Quantity)
	}
	return total
}

func lessDecimal(a, b decimal.Decimal) bool { return a.LessThan(b) }

// OrderBook is the two-sided book for a single symbol. buy levels are kept
// in a btree ordered ascending by price and walked in Reverse order for
// best-bid-first; sell levels are walked with Scan for best-ask-first.
type OrderBook struct {
	Symbol string

	mu    sync.RWMutex
	buys  *btree.BTreeG[*level]
	sells *btree.BTreeG[*level]
	byID  map[string]*model.Order
}

func levelLess(a, b *level) bool { return lessDecimal(a.price, b.price) }

// New constructs an empty book for symbol.
func New(symbol string) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		buys:   btree.NewBTreeG(levelLess),
		sells:  btree.NewBTreeG(levelLess),
		byID:   make(map[string]*model.Order),
	}
}

func (b *OrderBook) treeFor(side model.OrderSide) *btree.BTreeG[*level] {
	if side == model.OrderSideBuy {
		return b.buys
	}
	return b.sells
}

// AddOrder rejects nil, a symbol mismatch, or an invalid side; otherwise it
// marks the order PENDING and appends it to the FIFO at its price on the
// correct side.
func (b *OrderBook) AddOrder(o *model.Order) bool {
	if o == nil || o.Symbol != b.Symbol {
		return false
	}
	if o.Side != model.OrderSideBuy && o.Side != model.OrderSideSell {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	o.Status = model.OrderStatusPending
	tree := b.treeFor(o.Side)
	key := &level{price: o.Price}
	existing, ok := tree.Get(key)
	if !ok {
		existing = &level{price: o.Price}
		tree.Set(existing)
	}
	existing.orders = append(existing.orders, o)
	b.byID[o.ID] = o
	return true
}

// RemoveOrder deletes an order by ID, pruning its price level if it becomes
// empty. Returns false if the order is not resting in this book.
func (b *OrderBook) RemoveOrder(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeOrderLocked(id)
}

func (b *OrderBook) removeOrderLocked(id string) bool {
	o, ok := b.byID[id]
	if !ok {
		return false
	}
	tree := b.treeFor(o.Side)
	key := &level{price: o.Price}
	lv, ok := tree.Get(key)
	if !ok {
		delete(b.byID, id)
		return true
	}
	for i, ord := range lv.orders {
		if ord.ID == id {
			lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
			break
		}
	}
	if len(lv.orders) == 0 {
		tree.Delete(lv)
	}
	delete(b.byID, id)
	return true
}

// removeIfExhaustedLocked drops an order from its level once fully filled.
// Callers must hold b.mu.
func (b *OrderBook) removeIfExhaustedLocked(o *model.Order) {
	if o.Quantity.Sign() <= 0 {
		b.removeOrderLocked(o.ID)
	}
}

// RemoveOrderIfExhausted removes o from the book once its remaining
// quantity reaches zero. The matching engine calls this after every fill
// against a resting order.
func (b *OrderBook) RemoveOrderIfExhausted(o *model.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeIfExhaustedLocked(o)
}

// GetBestBid returns the highest buy price with remaining quantity, or zero
// if the buy side is empty.
func (b *OrderBook) GetBestBid() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if lv, ok := b.buys.Max(); ok {
		return lv.price
	}
	return decimal.Zero
}

// GetBestAsk returns the lowest sell price with remaining quantity, or zero
// if the sell side is empty.
func (b *OrderBook) GetBestAsk() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if lv, ok := b.sells.Min(); ok {
		return lv.price
	}
	return decimal.Zero
}

// GetSpread returns best_ask - best_bid (zero sides included, per
// GetBestBid/GetBestAsk contracts).
func (b *OrderBook) GetSpread() decimal.Decimal {
	return b.GetBestAsk().Sub(b.GetBestBid())
}

// FindOrder returns the resting order with the given ID, or nil.
func (b *OrderBook) FindOrder(id string) *model.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byID[id]
}

// GetBuyOrders returns every resting buy order, highest price first,
// preserving FIFO order within a level.
func (b *OrderBook) GetBuyOrders() []*model.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*model.Order
	b.buys.Reverse(func(lv *level) bool {
		out = append(out, lv.orders...)
		return true
	})
	return out
}

// GetSellOrders returns every resting sell order, lowest price first,
// preserving FIFO order within a level.
func (b *OrderBook) GetSellOrders() []*model.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*model.Order
	b.sells.Scan(func(lv *level) bool {
		out = append(out, lv.orders...)
		return true
	})
	return out
}

// PriceLevelView is one price level's aggregate for JSON snapshots.
type PriceLevelView struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// Snapshot is the JSON-ready view of a book, per spec.md §4.4 toJSON.
type Snapshot struct {
	Symbol   string           `json:"symbol"`
	Bids     []PriceLevelView `json:"bids"`
	Asks     []PriceLevelView `json:"asks"`
	BestBid  string           `json:"best_bid"`
	BestAsk  string           `json:"best_ask"`
	Spread   string           `json:"spread"`
}

// ToJSON builds the snapshot view. Quantity at each level is the sum of
// remaining quantities of every resting order there.
func (b *OrderBook) ToJSON() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var bids, asks []PriceLevelView
	b.buys.Reverse(func(lv *level) bool {
		bids = append(bids, PriceLevelView{Price: lv.price.String(), Quantity: lv.totalQuantity().String()})
		return true
	})
	b.sells.Scan(func(lv *level) bool {
		asks = append(asks, PriceLevelView{Price: lv.price.String(), Quantity: lv.totalQuantity().String()})
		return true
	})

	bestBid := decimal.Zero
	if lv, ok := b.buys.Max(); ok {
		bestBid = lv.price
	}
	bestAsk := decimal.Zero
	if lv, ok := b.sells.Min(); ok {
		bestAsk = lv.price
	}

	return Snapshot{
		Symbol:  b.Symbol,
		Bids:    bids,
		Asks:    asks,
		BestBid: bestBid.String(),
		BestAsk: bestAsk.String(),
		Spread:  bestAsk.Sub(bestBid).String(),
	}
}

func (b *OrderBook) String() string {
	return fmt.Sprintf("OrderBook{symbol:%s}", b.Symbol)
}
