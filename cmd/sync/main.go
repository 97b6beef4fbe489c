package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/api"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/config"
	database "github.com/CEOBancoBrasileiro/fm4-api-backend/internal/db"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/feed"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/images"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/live"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scheduler"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/scraper"
	"github.com/CEOBancoBrasileiro/fm4-api-backend/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting FM4 Sync Worker...")

	// 1. Setup Configuration
	cfg := config.Load()

	// 2. Initialize Infrastructure
	db := database.New(cfg)
	db.AutoMigrate()

	store := storage.New(cfg)
	feedClient := feed.New(cfg)

	// 3. Wire the sync engine
	clock := scheduler.RealClock{}
	imgs := images.New(cfg, db, feedClient, store)
	scr := scraper.New(cfg, db, feedClient, imgs, clock)
	orch := live.New(cfg, db, feedClient, scr, imgs, clock)

	// 4. Setup Metrics
	scraper.RegisterMetrics()
	live.RegisterMetrics()
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/metrics", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(cfg.Server.MetricsPort, nil); err != nil {
			log.Printf("⚠️ Metrics server error: %v", err)
		}
	}()

	// 5. HTTP surface (read accessors, triggers, orchestrator status)
	srv := api.New(cfg, db, store, scr, orch)
	go func() {
		log.Printf("🚀 API listening on %s", cfg.Server.Port)
		if err := srv.Start(cfg.Server.Port); err != nil {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	// 6. Schedule the sync jobs
	manager := scheduler.NewManager()
	manager.Add("live-poll", time.Duration(cfg.Sync.LiveInterval)*time.Second, true, func() error {
		orch.Tick()
		return nil
	})
	manager.Add("backup-scrape", time.Duration(cfg.Sync.BackupInterval)*time.Minute, false, scr.ScrapeRecentBroadcasts)
	manager.Add("historical-scrape", 24*time.Hour, false, func() error {
		return scr.ScrapeHistoricalBroadcasts(cfg.Sync.HistoricalDays)
	})
	manager.Add("discover-programs", 24*time.Hour, true, func() error {
		_, err := scr.DiscoverProgramKeys()
		return err
	})
	manager.Add("cleanup", 24*time.Hour, false, scr.CleanupOldBroadcasts)

	stop := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down...")
		close(stop)
	}()

	manager.Run(stop)
}
