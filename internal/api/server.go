package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
	database "github.com/CEOBancoBrasileiro/fm4-api-backend/internal/db"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/live"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scraper"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/storage"
)

type Server struct {
	cfg     *config.Config
	db      *database.Client
	storage *storage.Client
	scraper *scraper.Scraper
	orch    *live.Orchestrator // nil outside the sync process
	router  *gin.Engine
}

// New builds the HTTP surface. orch may be nil: read-only API deployments
// have no orchestrator, and /status says so.
func New(cfg *config.Config, db *database.Client, store *storage.Client, scr *scraper.Scraper, orch *live.Orchestrator) *Server {
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		db:      db,
		storage: store,
		scraper: scr,
		orch:    orch,
		router:  gin.Default(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// CORS Configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}

	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	// Health Check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "fm4-api-backend"})
	})

	// API Group
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/broadcasts", s.GetBroadcasts)
		v1.GET("/broadcast/:programKey/:day", s.GetBroadcastDetail)
		v1.GET("/items/search", s.SearchItems)
		v1.GET("/programs", s.GetProgramKeys)
		v1.GET("/stats", s.GetStats)
		v1.GET("/status", s.GetSyncStatus)
		v1.GET("/images/:key", s.GetImage)

		// Sync triggers
		v1.POST("/scrape/:programKey/:day", s.TriggerScrape)
		v1.POST("/scrape/recent", s.TriggerRecentScrape)
		v1.POST("/scrape/historical", s.TriggerHistoricalScrape)
		v1.POST("/discover", s.TriggerDiscovery)
		v1.POST("/cleanup", s.TriggerCleanup)
	}
}

// Start runs the server on the configured port
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}
