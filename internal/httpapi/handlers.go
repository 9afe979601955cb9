package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orbitcex/matchengine/internal/stats"
	"github.com/orbitcex/matchengine/pkg/metrics"
)

func errJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// handlePostOrder shallow-validates {userId, id} and publishes the raw
// body to the bus, per spec.md §4.9.
func (s *Server) handlePostOrder(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		errJSON(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req OrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		errJSON(c, http.StatusBadRequest, "malformed order payload")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		errJSON(c, http.StatusBadRequest, "missing required fields: userId, id")
		return
	}

	if err := s.bus.Publish("order-requests", req.UserID, body); err != nil {
		metrics.BusPublishErrors.Inc()
		s.logger.Error("failed to publish order", zap.Error(err))
		errJSON(c, http.StatusServiceUnavailable, "ingress bus unavailable")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "order_id": req.ID})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": true})
}

func (s *Server) handleOrderBook(c *gin.Context) {
	symbol := c.Param("symbol")
	book, ok := s.engine.LookupOrderBook(symbol)
	if !ok {
		errJSON(c, http.StatusNotFound, "unknown symbol: "+symbol)
		return
	}
	c.JSON(http.StatusOK, book.ToJSON())
}

func timeframeOrDefault(c *gin.Context) stats.Timeframe {
	tf := c.Param("timeframe")
	if tf == "" {
		return stats.Timeframe1m
	}
	return stats.Timeframe(tf)
}

func (s *Server) handleStatsSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	tf := timeframeOrDefault(c)

	snap, ok := s.statsc.GetStatsForSymbol(symbol)
	if !ok {
		errJSON(c, http.StatusNotFound, "no statistics for symbol: "+symbol)
		return
	}
	bucket, ok := snap.Buckets[tf]
	if !ok {
		errJSON(c, http.StatusNotFound, "timeframe not configured: "+string(tf))
		return
	}
	c.JSON(http.StatusOK, bucketView(symbol, tf, bucket))
}

func bucketView(symbol string, tf stats.Timeframe, b stats.Bucket) gin.H {
	return gin.H{
		"symbol":        symbol,
		"timeframe":     tf,
		"open":          b.Open.String(),
		"high":          b.High.String(),
		"low":           b.Low.String(),
		"close":         b.Close.String(),
		"volume":        b.Volume.String(),
		"dollar_volume": b.DollarVolume.String(),
		"trade_count":   b.TradeCount,
		"vwap":          b.VWAP().String(),
		"simple_return": b.SimpleReturn.String(),
		"volatility":    b.Volatility,
	}
}

func (s *Server) handleStatsAll(c *gin.Context) {
	all := s.statsc.GetAllStats()
	symbols := make(gin.H, len(all))
	for sym, inst := range all {
		views := make(gin.H, len(inst.Buckets))
		for tf, b := range inst.Buckets {
			views[string(tf)] = bucketView(sym, tf, b)
		}
		symbols[sym] = views
	}
	c.JSON(http.StatusOK, gin.H{"total_symbols": len(all), "symbols": symbols})
}

// handleStatsSummary computes market-wide aggregates over the 1m bucket of
// every symbol, per spec.md §4.9. The result is cached briefly since it
// recomputes over every tracked symbol on every call.
func (s *Server) handleStatsSummary(c *gin.Context) {
	const cacheKey = "stats:summary"
	if cached, ok := s.cache.Get(c.Request.Context(), cacheKey); ok {
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	all := s.statsc.GetAllStats()
	totalVolume := decimal.Zero
	totalDollarVolume := decimal.Zero
	var totalTrades uint64

	for _, inst := range all {
		b, ok := inst.Buckets[stats.Timeframe1m]
		if !ok {
			continue
		}
		totalVolume = totalVolume.Add(b.Volume)
		totalDollarVolume = totalDollarVolume.Add(b.DollarVolume)
		totalTrades += b.TradeCount
	}

	body := gin.H{
		"total_symbols":       len(all),
		"total_volume":        totalVolume.String(),
		"total_dollar_volume": totalDollarVolume.String(),
		"total_trade_count":   totalTrades,
	}
	if payload, err := json.Marshal(body); err == nil {
		s.cache.Set(c.Request.Context(), cacheKey, payload, s.cacheTTL)
	}
	c.JSON(http.StatusOK, body)
}

type leaderboardEntry struct {
	UserID      string `json:"user_id"`
	NetWorth    string `json:"net_worth"`
	CashBalance string `json:"cash_balance"`
	RealizedPnl string `json:"realized_pnl"`
}

// marketPricer resolves a mark price with the mid/best/avg fallback.
type marketPricer struct {
	engine interface{ MarkPrice(string) decimal.Decimal }
}

func (m *marketPricer) markPrice(symbol string, avgFallback decimal.Decimal) decimal.Decimal {
	p := m.engine.MarkPrice(symbol)
	if p.Sign() > 0 {
		return p
	}
	return avgFallback
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	const cacheKey = "leaderboard"
	if cached, ok := s.cache.Get(c.Request.Context(), cacheKey); ok {
		c.Data(http.StatusOK, "application/json", cached)
		return
	}

	pricer := &marketPricer{engine: s.engine}
	snaps := s.users().Snapshot()

	entries := make([]leaderboardEntry, 0, len(snaps))
	for _, u := range snaps {
		total := u.CashBalance
		for symbol, pos := range u.Positions {
			total = total.Add(pos.Quantity.Mul(pricer.markPrice(symbol, pos.AveragePrice)))
		}
		entries = append(entries, leaderboardEntry{
			UserID:      u.UserID,
			NetWorth:    total.String(),
			CashBalance: u.CashBalance.String(),
			RealizedPnl: u.RealizedPnl.String(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, _ := decimal.NewFromString(entries[i].NetWorth)
		b, _ := decimal.NewFromString(entries[j].NetWorth)
		return a.GreaterThan(b)
	})

	body := gin.H{"leaderboard": entries}
	if payload, err := json.Marshal(body); err == nil {
		s.cache.Set(c.Request.Context(), cacheKey, payload, s.cacheTTL)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handlePortfolio(c *gin.Context) {
	userID := c.Param("id")
	snap, ok := s.users().SnapshotOne(userID)
	if !ok {
		errJSON(c, http.StatusNotFound, "unknown user: "+userID)
		return
	}

	pricer := &marketPricer{engine: s.engine}
	positions := make(gin.H, len(snap.Positions))
	for symbol, pos := range snap.Positions {
		positions[symbol] = gin.H{
			"quantity":      pos.Quantity.String(),
			"average_price": pos.AveragePrice.String(),
			"mark_price":    pricer.markPrice(symbol, pos.AveragePrice).String(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      snap.UserID,
		"cash_balance": snap.CashBalance.String(),
		"realized_pnl": snap.RealizedPnl.String(),
		"positions":    positions,
	})
}

// handleDeposit shallow-validates the amount is a positive decimal string
// and publishes it to the bus rather than mutating the User directly: cash
// is only ever mutated by the single bus-subscriber goroutine that also
// runs applyPostFillEffects, so a deposit goes through the same pipeline a
// fill does instead of racing it (spec.md §9 option (b), the engine's
// single-writer model).
func (s *Server) handleDeposit(c *gin.Context) {
	userID := c.Param("id")
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errJSON(c, http.StatusBadRequest, "amount is required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		errJSON(c, http.StatusBadRequest, "amount must be a decimal string")
		return
	}
	if amount.Sign() <= 0 {
		errJSON(c, http.StatusBadRequest, "amount must be positive")
		return
	}

	payload, err := json.Marshal(struct {
		UserID string `json:"user_id"`
		Amount string `json:"amount"`
	}{UserID: userID, Amount: amount.String()})
	if err != nil {
		errJSON(c, http.StatusInternalServerError, "failed to encode deposit")
		return
	}

	if err := s.bus.Publish("deposit-requests", userID, payload); err != nil {
		metrics.BusPublishErrors.Inc()
		s.logger.Error("failed to publish deposit", zap.Error(err))
		errJSON(c, http.StatusServiceUnavailable, "ingress bus unavailable")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "user_id": userID})
}

func (s *Server) handleWSTrades(c *gin.Context) {
	symbol := c.Param("symbol")
	if s.broadcaster == nil {
		errJSON(c, http.StatusServiceUnavailable, "websocket broadcast disabled")
		return
	}
	if err := s.broadcaster.ServeHTTP(c.Writer, c.Request, symbol); err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
