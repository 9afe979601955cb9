// Package ws implements the live trade broadcast sink: a fourth
// trade-callback consumer (alongside the trade logger, stats collector and
// execution sink) that fans each Trade out to subscribed websocket
// clients, grounded on the teacher's internal/trading/realtime broadcaster
// shape.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/orbitcex/matchengine/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Broadcaster fans out trades per symbol to any number of connected
// websocket clients. A client's slow consumption cannot block the matching
// engine: each subscriber has its own bounded outbound channel, and a full
// channel drops the message for that subscriber rather than blocking the
// publisher.
type Broadcaster struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{} // symbol -> set
}

// New constructs an empty broadcaster.
func New(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		logger:      logger,
		subscribers: make(map[string]map[*subscriber]struct{}),
	}
}

// OnTrade is the trade-callback sink signature: install with
// matching.Engine.SetTradeCallback (composed with the other sinks by the
// engine shell).
func (b *Broadcaster) OnTrade(t *model.Trade) {
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}

	b.mu.RLock()
	subs := b.subscribers[t.Symbol]
	targets := make([]*subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.send <- payload:
		default:
			// subscriber is behind; drop rather than block the matcher.
		}
	}
}

// ServeHTTP upgrades the connection and registers it as a subscriber for
// symbol until the connection closes.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request, symbol string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, 64)}
	b.mu.Lock()
	if b.subscribers[symbol] == nil {
		b.subscribers[symbol] = make(map[*subscriber]struct{})
	}
	b.subscribers[symbol][sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subscribers[symbol], sub)
		b.mu.Unlock()
		conn.Close()
	}()

	for payload := range sub.send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return nil
		}
	}
	return nil
}
