// Package httpapi implements the HTTP surface (C9) on top of gin,
// grounded on the teacher's api/server.go wiring (cors, gin middleware,
// promhttp) trimmed to the routes spec.md §4.9 and SPEC_FULL.md §5
// enumerate.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/orbitcex/matchengine/internal/bus"
	"github.com/orbitcex/matchengine/internal/cache"
	"github.com/orbitcex/matchengine/internal/matching"
	"github.com/orbitcex/matchengine/internal/portfolio"
	"github.com/orbitcex/matchengine/internal/stats"
	"github.com/orbitcex/matchengine/internal/workerpool"
	"github.com/orbitcex/matchengine/internal/ws"
)

// Server is the engine's HTTP surface.
type Server struct {
	router *gin.Engine

	logger      *zap.Logger
	engine      *matching.Engine
	bus         bus.Bus
	statsc      *stats.Collector
	cache       cache.Cache
	cacheTTL    time.Duration
	broadcaster *ws.Broadcaster
	validate    *validator.Validate
	pool        *workerpool.Pool
}

// Deps bundles Server's constructor dependencies.
type Deps struct {
	Logger      *zap.Logger
	Engine      *matching.Engine
	Bus         bus.Bus
	Stats       *stats.Collector
	Cache       cache.Cache
	CacheTTL    time.Duration
	Broadcaster *ws.Broadcaster

	// Threads bounds how many requests the thread-pool middleware lets run
	// concurrently, mirroring the C3 thread pool the spec's HTTP acceptor
	// dispatches accepted connections to. 0 disables the middleware and
	// leaves concurrency to net/http's own per-connection goroutines.
	Threads int
}

// New builds the gin engine and registers every route.
func New(d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if d.Logger != nil {
		router.Use(ginzap.Ginzap(d.Logger, time.RFC3339, true))
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	cacheTTL := d.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}

	var pool *workerpool.Pool
	if d.Threads > 0 {
		pool = workerpool.New(d.Threads)
	}

	s := &Server{
		router:      router,
		logger:      d.Logger,
		engine:      d.Engine,
		bus:         d.Bus,
		statsc:      d.Stats,
		cache:       d.Cache,
		cacheTTL:    cacheTTL,
		broadcaster: d.Broadcaster,
		validate:    validator.New(),
		pool:        pool,
	}
	if pool != nil {
		router.Use(s.threadPoolMiddleware)
	}
	s.registerRoutes()
	return s
}

// threadPoolMiddleware runs the rest of the handler chain on a thread-pool
// worker, bounding the number of requests handled concurrently to Threads,
// and blocks the accepting goroutine until that worker finishes.
func (s *Server) threadPoolMiddleware(c *gin.Context) {
	done := make(chan struct{})
	err := s.pool.Submit(func() {
		defer close(done)
		c.Next()
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "server overloaded"})
		return
	}
	<-done
}

// Close stops the thread pool, letting already-queued requests finish, per
// the C3 "let already-queued tasks finish" shutdown policy.
func (s *Server) Close() {
	if s.pool != nil {
		s.pool.Stop()
	}
}

// Handler returns the underlying http.Handler, for tests and for
// *http.Server wiring in the engine shell.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.POST("/order", s.handlePostOrder)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.GET("/orderbook/:symbol", s.handleOrderBook)
	v1.GET("/stats/all", s.handleStatsAll)
	v1.GET("/stats/summary", s.handleStatsSummary)
	v1.GET("/stats/:symbol", s.handleStatsSymbol)
	v1.GET("/stats/:symbol/:timeframe", s.handleStatsSymbol)
	v1.GET("/leaderboard", s.handleLeaderboard)
	v1.GET("/users/:id/portfolio", s.handlePortfolio)
	v1.POST("/users/:id/deposit", s.handleDeposit)

	s.router.GET("/ws/trades/:symbol", s.handleWSTrades)
}

func (s *Server) users() *portfolio.Registry { return s.engine.Users() }
