package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sitmon/internal/api"
	"sitmon/internal/broadcast"
	"sitmon/internal/cache"
	"sitmon/internal/config"
	"sitmon/internal/gdelt"
	"sitmon/internal/ingest"
	"sitmon/internal/models"
	"sitmon/internal/poller"
	"sitmon/internal/storage"

	_ "sitmon/docs"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize cache for upstream responses
	cacheManager := cache.NewManager(cfg.CacheTTL)

	// Initialize persistent storage
	store, err := storage.NewStorage(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	// Seed query profiles (upsert by name, never duplicated)
	if err := store.SeedProfiles(seedProfiles(cfg)); err != nil {
		log.Fatal("Failed to seed query profiles:", err)
	}

	// Clean up old articles based on retention policy
	log.Printf("Cleaning up articles older than %v", cfg.ArticleRetention)
	if err := store.CleanupOldArticles(cfg.ArticleRetention); err != nil {
		log.Printf("Warning: failed to cleanup old articles: %v", err)
	}

	// Initialize broadcast hub for live observers
	hub := broadcast.NewHub()

	// Initialize GDELT feed client
	client := gdelt.NewClient(cacheManager, gdelt.Options{
		DocURL:         cfg.GdeltDocURL,
		GeoURL:         cfg.GdeltGeoURL,
		CacheTTL:       cfg.CacheTTL,
		MaxArticles:    cfg.MaxArticles,
		MaxGeoPoints:   cfg.MaxGeoPoints,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
	})

	// Initialize refresh coordinator
	ingestor := ingest.New(store, client, hub)

	// Perform initial refresh cycle to establish status
	log.Printf("Starting initial refresh cycle...")
	if result, err := ingestor.Refresh(""); err != nil {
		log.Printf("Warning: initial refresh failed: %v", err)
	} else if !result.Skipped {
		log.Printf("Initial refresh cycle completed at %s", result.RefreshedAt)
	}

	// Initialize background poller
	backgroundPoller := poller.New(ingestor, cfg.PollInterval)
	backgroundPoller.Start()

	// Initialize API server
	server := api.NewServer(store, ingestor, hub, backgroundPoller, cfg)

	log.Printf("Starting situation monitor server on port %d", cfg.Port)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Feed cache TTL: %v", cfg.CacheTTL)
	log.Printf("Article retention: %v", cfg.ArticleRetention)
	log.Printf("Background refresh interval: %v", cfg.PollInterval)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Create a context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start signal handler in goroutine
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping services...")
		backgroundPoller.Stop()
		cancel() // Cancel the context to stop the server
	}()

	// Start the server with context for graceful shutdown
	if err := server.StartWithContext(ctx); err != nil && err != context.Canceled {
		log.Fatal("Failed to start server:", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("Warning: failed to close storage: %v", err)
	}
}

func seedProfiles(cfg *config.Config) []models.QueryProfile {
	seeds := make([]models.QueryProfile, 0, len(cfg.Profiles))
	for _, profile := range cfg.Profiles {
		seeds = append(seeds, models.QueryProfile{
			Name:        profile.Name,
			QueryString: profile.Query,
			Timespan:    profile.Timespan,
			Filters: models.FilterState{
				Language:      "all",
				SourceCountry: "all",
				TopN:          100,
			},
		})
	}
	return seeds
}
