// Package engine wires every component (C1-C10) into the engine shell
// (C11): config load, lifecycle start/stop, the bus-subscriber's order
// pipeline, and the trade-callback fan-out, per spec.md §4.11.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orbitcex/matchengine/internal/bus"
	"github.com/orbitcex/matchengine/internal/cache"
	"github.com/orbitcex/matchengine/internal/config"
	"github.com/orbitcex/matchengine/internal/httpapi"
	"github.com/orbitcex/matchengine/internal/logging"
	"github.com/orbitcex/matchengine/internal/matching"
	"github.com/orbitcex/matchengine/internal/model"
	"github.com/orbitcex/matchengine/internal/stats"
	"github.com/orbitcex/matchengine/internal/validation"
	"github.com/orbitcex/matchengine/internal/ws"
	"github.com/orbitcex/matchengine/pkg/metrics"
)

// orderMessage is the deep-parsed shape of the bus's "order-requests"
// value, per spec.md §6 "Order message".
type orderMessage struct {
	ID       string  `json:"id"`
	UserID   string  `json:"userId"`
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// Shell owns every subsystem's lifecycle: initialize → start → (run) →
// stop, per spec.md §4.11.
type Shell struct {
	cfg    *config.Config
	logger *zap.Logger

	appSink  *logging.Sink
	appLog   *logging.AppLogger
	tradeLog *logging.Sink
	execLog  *logging.Sink

	tradeSink *logging.TradeSink
	execSink  *logging.ExecutionSink

	bus          bus.Bus
	engine       *matching.Engine
	validator    *validation.Validator
	statsc       *stats.Collector
	cacheImpl    cache.Cache
	broadcaster  *ws.Broadcaster
	httpSrv      *httpapi.Server
	server       *http.Server
	startingCash decimal.Decimal

	stopOnce sync.Once
	mu       sync.Mutex
	started  bool
}

// New constructs every component from cfg but starts nothing.
func New(cfg *config.Config) (*Shell, error) {
	zapLogger, err := logging.NewZapLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("engine: building logger: %w", err)
	}

	appSink := logging.NewSink(cfg.Logging.AppLogPath, cfg.Statistics.QueueCapacity)
	appLog := logging.NewAppLogger(appSink, logging.ParseLevel(cfg.Logging.Level), true)

	tradeLog := logging.NewSink(cfg.Logging.TradeLogPath, cfg.Statistics.QueueCapacity)
	execLog := logging.NewSink(cfg.Logging.ExecutionLogPath, cfg.Statistics.QueueCapacity)

	startingCash, err := decimal.NewFromString(cfg.Engine.DefaultStartingCash)
	if err != nil {
		return nil, fmt.Errorf("engine: parsing engine.default_starting_cash: %w", err)
	}
	matchEngine := matching.New(startingCash)

	limits, err := buildLimits(cfg.Validation)
	if err != nil {
		return nil, fmt.Errorf("engine: building validation limits: %w", err)
	}
	validator := validation.New(limits)

	timeframes := make([]stats.Timeframe, 0, len(cfg.Statistics.Timeframes))
	for _, tf := range cfg.Statistics.Timeframes {
		timeframes = append(timeframes, stats.Timeframe(tf))
	}
	statsCollector := stats.New(timeframes, cfg.Statistics.QueueCapacity)

	var ingressBus bus.Bus
	if len(cfg.Bus.Brokers) == 0 {
		ingressBus = bus.NewInMemoryBus()
	} else {
		kb, err := bus.NewKafkaBus(cfg.Bus.Brokers, "trading-engine-consumers", zapLogger)
		if err != nil {
			return nil, fmt.Errorf("engine: building ingress bus: %w", err)
		}
		ingressBus = kb
	}

	cacheImpl := cache.NewRedisCache(cfg.Cache.RedisAddress, zapLogger)
	broadcaster := ws.New(zapLogger)

	s := &Shell{
		cfg:          cfg,
		logger:       zapLogger,
		appSink:      appSink,
		appLog:       appLog,
		tradeLog:     tradeLog,
		execLog:      execLog,
		tradeSink:    logging.NewTradeSink(tradeLog),
		execSink:     logging.NewExecutionSink(execLog),
		bus:          ingressBus,
		engine:       matchEngine,
		validator:    validator,
		statsc:       statsCollector,
		cacheImpl:    cacheImpl,
		broadcaster:  broadcaster,
		startingCash: startingCash,
	}
	matchEngine.SetTradeCallback(s.onTrade)

	s.httpSrv = httpapi.New(httpapi.Deps{
		Logger:      zapLogger,
		Engine:      matchEngine,
		Bus:         ingressBus,
		Stats:       statsCollector,
		Cache:       cacheImpl,
		CacheTTL:    time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Broadcaster: broadcaster,
		Threads:     cfg.HTTP.Threads,
	})
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: s.httpSrv.Handler(),
	}

	return s, nil
}

func buildLimits(v config.ValidationConfig) (validation.Limits, error) {
	minQty, err := decimal.NewFromString(v.MinQty)
	if err != nil {
		return validation.Limits{}, err
	}
	maxQty, err := decimal.NewFromString(v.MaxQty)
	if err != nil {
		return validation.Limits{}, err
	}
	minPrice, err := decimal.NewFromString(v.MinPrice)
	if err != nil {
		return validation.Limits{}, err
	}
	maxPrice, err := decimal.NewFromString(v.MaxPrice)
	if err != nil {
		return validation.Limits{}, err
	}
	return validation.NewLimits(v.Symbols, minQty, maxQty, minPrice, maxPrice, v.MarketOpen), nil
}

// onTrade is the matching engine's single trade callback, fanning out to
// every sink spec.md §4.11 lists: trade logger, stats collector, execution
// sink, and (new, see SPEC_FULL.md §5) the websocket broadcaster.
func (s *Shell) onTrade(t *model.Trade) {
	s.tradeSink.OnTrade(t)

	if !s.statsc.Submit(t) {
		metrics.StatsDropped.Inc()
	}

	s.execSink.OnTrade(t)
	metrics.TradesExecuted.WithLabelValues(t.Symbol).Inc()
	metrics.StatsQueueDepth.Set(float64(s.statsc.GetQueueSize()))

	s.broadcaster.OnTrade(t)
}

// Start brings up every subsystem in spec.md §4.11's order: async loggers,
// HTTP, stats, bus connect, then subscribe.
func (s *Shell) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if err := s.appSink.Start(); err != nil {
		return fmt.Errorf("engine: starting app log sink: %w", err)
	}
	if err := s.tradeLog.Start(); err != nil {
		return fmt.Errorf("engine: starting trade log sink: %w", err)
	}
	if err := s.execLog.Start(); err != nil {
		return fmt.Errorf("engine: starting execution log sink: %w", err)
	}
	s.appLog.Info("async log sinks started")

	go func() {
		s.appLog.Info("http surface listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.appLog.Error("http surface stopped unexpectedly: %v", err)
		}
	}()

	if s.cfg.Statistics.Enabled {
		s.statsc.Start()
		s.appLog.Info("statistics collector started")
	}

	if err := s.bus.Connect(); err != nil {
		return fmt.Errorf("engine: connecting ingress bus: %w", err)
	}
	if err := s.bus.Subscribe("order-requests", s.processOrderFromQueue); err != nil {
		return fmt.Errorf("engine: subscribing order-requests: %w", err)
	}
	if err := s.bus.Subscribe("deposit-requests", s.processDepositFromQueue); err != nil {
		return fmt.Errorf("engine: subscribing deposit-requests: %w", err)
	}
	s.appLog.Info("subscribed to order-requests and deposit-requests")

	s.started = true
	return nil
}

// processOrderFromQueue is the bus subscriber callback: deep parse,
// validate, book lookup-or-create, addOrder, matchOrder. Parse and
// validation failures are logged and the message dropped — spec.md §4.11
// explicitly puts dead-lettering out of scope.
func (s *Shell) processOrderFromQueue(msg bus.Message) {
	order, err := parseOrder(msg.Value)
	if err != nil {
		s.logger.Warn("dropping unparseable order message", zap.String("key", msg.Key), zap.Error(err))
		return
	}
	if order.Type == model.OrderTypeStop {
		s.logger.Warn("dropping STOP order: not implemented in the core", zap.String("order_id", order.ID))
		return
	}
	if verr := s.validator.Validate(order); verr != nil {
		s.logger.Info("rejecting order", zap.String("order_id", order.ID), zap.String("kind", string(verr.Kind)), zap.String("reason", verr.Message))
		return
	}

	book := s.engine.GetOrderBook(order.Symbol)

	// LIMIT orders are parked in the book before matching so any unfilled
	// remainder rests there; MARKET orders are never parked (spec.md
	// §4.5.1: "unfilled remainder of a market order is discarded").
	if order.Type == model.OrderTypeLimit {
		if ok := book.AddOrder(order); !ok {
			s.logger.Warn("order rejected by order book", zap.String("order_id", order.ID))
			return
		}
	}

	metrics.OrdersProcessed.WithLabelValues(string(order.Side)).Inc()
	start := time.Now()
	s.engine.MatchOrder(order, book)
	metrics.OrderProcessingLatency.Observe(time.Since(start).Seconds())

	if order.Type == model.OrderTypeLimit {
		book.RemoveOrderIfExhausted(order)
	}
}

func parseOrder(raw []byte) (*model.Order, error) {
	var m orderMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.ID == "" || m.UserID == "" {
		return nil, fmt.Errorf("order message missing id/userId")
	}

	typ := model.OrderType(strings.ToUpper(m.Type))
	side := model.OrderSide(strings.ToUpper(m.Side))
	if side != model.OrderSideBuy && side != model.OrderSideSell {
		return nil, fmt.Errorf("order message has invalid side: %q", m.Side)
	}

	qty := decimal.NewFromFloat(m.Quantity)
	price := decimal.NewFromFloat(m.Price)

	return model.New(m.ID, m.UserID, m.Symbol, typ, side, qty, price), nil
}

// depositMessage is the deep-parsed shape of the bus's "deposit-requests"
// value, published by the HTTP edge after shallow-validating the amount is
// a well-formed decimal string.
type depositMessage struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

// processDepositFromQueue applies one deposit to the user registry. Cash
// mutation only ever happens here, on the single bus-subscriber goroutine,
// the same goroutine applyPostFillEffects runs on, so a deposit never races
// a fill's write to the same User fields.
func (s *Shell) processDepositFromQueue(msg bus.Message) {
	var m depositMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		s.logger.Warn("dropping unparseable deposit message", zap.Error(err))
		return
	}
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		s.logger.Warn("dropping deposit with non-decimal amount", zap.String("user_id", m.UserID), zap.String("amount", m.Amount))
		return
	}

	u := s.engine.Users().GetOrCreate(m.UserID, s.startingCash)
	if !u.Deposit(amount) {
		s.logger.Info("rejecting deposit", zap.String("user_id", m.UserID), zap.String("amount", m.Amount))
	}
}

// Stop reverses Start's order: stop HTTP, stop stats, disconnect bus, stop
// loggers. Safe to call more than once.
func (s *Shell) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			return
		}

		s.appLog.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
		s.httpSrv.Close()

		if s.cfg.Statistics.Enabled {
			s.statsc.Stop()
		}

		_ = s.bus.Close()

		s.appLog.Info("shutdown complete")
		s.appSink.Stop()
		s.tradeLog.Stop()
		s.execLog.Stop()
	})
}
