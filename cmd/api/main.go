package main

import (
	"log"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/api"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
	database "github.com/CEOBancoBrasileiro/fm4-api-backend/internal/db"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/feed"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/images"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scheduler"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scraper"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/storage"
)

// Standalone API deployment: read accessors and manual sync triggers,
// no orchestrator and no scheduled jobs (those live in cmd/sync).
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting FM4 API Server...")

	// 1. Setup Configuration
	cfg := config.Load()

	// 2. Initialize Infrastructure
	db := database.New(cfg)
	db.AutoMigrate()

	store := storage.New(cfg)
	feedClient := feed.New(cfg)

	imgs := images.New(cfg, db, feedClient, store)
	scr := scraper.New(cfg, db, feedClient, imgs, scheduler.RealClock{})
	scraper.RegisterMetrics()

	// 3. Start Server
	srv := api.New(cfg, db, store, scr, nil)

	log.Printf("🚀 API Server starting on %s", cfg.Server.Port)
	if err := srv.Start(cfg.Server.Port); err != nil {
		log.Fatalf("❌ Server failed to start: %v", err)
	}
}
