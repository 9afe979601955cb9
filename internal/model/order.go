// Package model defines the core trading domain types: orders, trades, and
// the status/side/type enumerations the matcher and order book operate on.
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderType enumerates the order types the matcher can receive. STOP is
// part of the data model but is never passed to MatchOrder — the engine rejects
// it before it reaches the book.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeStop   OrderType = "STOP"
)

// OrderSide is BUY or SELL.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// Order is a resting or incoming order. Quantity is the REMAINING quantity:
// the matcher mutates it in place as fills occur, per the spec's data model
// (original quantity is tracked separately in OriginalQty so
// FilledQuantity and status stay consistent).
type Order struct {
	ID              string
	UserID          string
	Symbol          string
	Type            OrderType
	Side            OrderSide
	OriginalQty     decimal.Decimal
	Quantity        decimal.Decimal // remaining
	Price           decimal.Decimal // 0 for MARKET
	FilledQuantity  decimal.Decimal
	Status          OrderStatus
}

// New constructs a PENDING order. Price is forced to zero for MARKET orders,
// matching "Price irrelevant for MARKET (stored 0)".
func New(id, userID, symbol string, typ OrderType, side OrderSide, quantity, price decimal.Decimal) *Order {
	if typ == OrderTypeMarket {
		price = decimal.Zero
	}
	return &Order{
		ID:             id,
		UserID:         userID,
		Symbol:         symbol,
		Type:           typ,
		Side:           side,
		OriginalQty:    quantity,
		Quantity:       quantity,
		Price:          price,
		FilledQuantity: decimal.Zero,
		Status:         OrderStatusPending,
	}
}

// AddFill records a fill of qty against this order, decrementing the
// remaining Quantity and updating Status. It does not validate qty against
// remaining quantity — callers (the matcher) are responsible for only
// filling min(remaining, counterparty remaining).
func (o *Order) AddFill(qty decimal.Decimal) {
	o.FilledQuantity = o.FilledQuantity.Add(qty)
	o.Quantity = o.Quantity.Sub(qty)
	if o.Quantity.Sign() <= 0 {
		o.Quantity = decimal.Zero
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{id:%s symbol:%s type:%s side:%s qty:%s price:%s filled:%s status:%s}",
		o.ID, o.Symbol, o.Type, o.Side, o.Quantity, o.Price, o.FilledQuantity, o.Status)
}

// Trade is an immutable fill record produced by the matching engine.
type Trade struct {
	TradeID     uint64          `json:"trade_id"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	BuyUserID   string          `json:"buy_user_id"`
	SellUserID  string          `json:"sell_user_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TimestampMs int64           `json:"timestamp_ms"`
}

func (t *Trade) String() string {
	return fmt.Sprintf("Trade{id:%d symbol:%s qty:%s price:%s buy:%s sell:%s}",
		t.TradeID, t.Symbol, t.Quantity, t.Price, t.BuyOrderID, t.SellOrderID)
}
