package logging

import (
	"encoding/json"

	"github.com/orbitcex/matchengine/internal/model"
)

// TradeSink is the trade-callback sink that durably records every trade the
// matching engine emits, one JSON line per trade, per spec.md §4.11's
// "trade logger" leg of the post-fill fan-out.
type TradeSink struct {
	sink *Sink
}

// NewTradeSink wraps an already-constructed async file sink.
func NewTradeSink(sink *Sink) *TradeSink { return &TradeSink{sink: sink} }

// OnTrade satisfies the matching engine's TradeCallback signature.
func (t *TradeSink) OnTrade(trade *model.Trade) {
	line, err := json.Marshal(trade)
	if err != nil {
		return
	}
	t.sink.AddLog(string(line))
}

// executionRecord is one side (leg) of a trade's settlement, the
// "confirmation record" spec.md §4.11 lists alongside the execution sink.
type executionRecord struct {
	TradeID  uint64 `json:"trade_id"`
	OrderID  string `json:"order_id"`
	UserID   string `json:"user_id"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Ts       int64  `json:"ts"`
}

// ExecutionSink records one confirmation line per filled leg (buyer and
// seller) of every trade.
type ExecutionSink struct {
	sink *Sink
}

// NewExecutionSink wraps an already-constructed async file sink.
func NewExecutionSink(sink *Sink) *ExecutionSink { return &ExecutionSink{sink: sink} }

// OnTrade emits one confirmation record per leg.
func (e *ExecutionSink) OnTrade(trade *model.Trade) {
	e.emit(trade, trade.BuyOrderID, trade.BuyUserID, "BUY")
	e.emit(trade, trade.SellOrderID, trade.SellUserID, "SELL")
}

func (e *ExecutionSink) emit(trade *model.Trade, orderID, userID, side string) {
	rec := executionRecord{
		TradeID:  trade.TradeID,
		OrderID:  orderID,
		UserID:   userID,
		Symbol:   trade.Symbol,
		Side:     side,
		Quantity: trade.Quantity.String(),
		Price:    trade.Price.String(),
		Ts:       trade.TimestampMs,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	e.sink.AddLog(string(line))
}
