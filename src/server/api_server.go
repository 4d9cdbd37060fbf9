package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"portfolio-dashboard/src/cache"
	"portfolio-dashboard/src/logger"
	"portfolio-dashboard/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Collaborators
// -----------------------------------------------------------------------------

type Refresher interface {
	RefreshPortfolioCache(ctx context.Context) models.MCoordinatorSummary
	StartRefresh(ctx context.Context) bool
	IsRunning() bool
}

type Reprocessor interface {
	Reprocess(ctx context.Context, force bool) models.MReprocessResult
	ProcessUploads(ctx context.Context, signature string) (models.MReprocessResult, bool, error)
}

type ChangeReporter interface {
	CheckForChanges() (models.MFileChanges, error)
}

type Valuator interface {
	Valuate(ctx context.Context) ([]models.MHoldingValuation, error)
}

// Services groups what the routes read from and drive.
type Services struct {
	Prices    *cache.PriceCache
	History   *cache.HistoricalCache
	Refresher Refresher
	Pipeline  Reprocessor
	Changes   ChangeReporter
	Valuator  Valuator
}

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config   *models.MConfig
	Logger   *logger.Logger
	Services Services
	Hub      *Hub

	engine     *gin.Engine
	httpServer *http.Server

	// Background refreshes started by POST /api/refresh use this context.
	baseCtx context.Context
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, services Services, log *logger.Logger) *APIServer {
	if log == nil {
		log = logger.NewLogger(cfg, "APIServer")
	}
	if strings.ToUpper(cfg.LogLevel) != "DEBUG" && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:   cfg,
		Logger:   log,
		Services: services,
		Hub:      NewHub(log.Named("Hub")),
		engine:   gin.New(),
		baseCtx:  context.Background(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/price/:symbol", s.getPrice)
	api.GET("/history/:symbol", s.getHistory)
	api.POST("/refresh", s.postRefresh)
	api.POST("/reprocess", s.postReprocess)
	api.POST("/uploads/:signature/process", s.postProcessUploads)
	api.GET("/file-changes", s.getFileChanges)
	api.GET("/holdings/valuation", s.getValuation)
	api.GET("/health", s.getHealth)

	api.GET("/cache/stats", s.getCacheStats)
	api.DELETE("/cache", s.deleteCache)
	api.POST("/cache/clear-old", s.postClearOld)
	api.DELETE("/cache/:symbol", s.deleteSymbol)

	s.engine.GET("/ws", s.Hub.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start runs the hub and serves HTTP until Stop. It returns nil on a clean stop.
func (s *APIServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.baseCtx = ctx
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Logger.Info("Starting server on %s", addr)

	go s.Hub.Run()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop(ctx context.Context) error {
	s.Hub.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// -----------------------------------------------------------------------------

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
