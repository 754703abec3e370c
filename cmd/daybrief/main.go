package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"daybrief/internal/config"
	"daybrief/internal/database"
	"daybrief/internal/feed"
	"daybrief/internal/ingest"
	"daybrief/internal/scheduler"
	"daybrief/internal/server"
)

var (
	// Version will be set during build
	Version = "dev"

	// Command line flags
	port    = flag.Int("port", 0, "Port to run the server on (default: 8080 or DAYBRIEF_PORT)")
	dbPath  = flag.String("db", "", "Path to database file (default: data/daybrief.db or DAYBRIEF_DB_PATH)")
	version = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("daybrief version %s\n", Version)
		return
	}

	logger := log.New(os.Stdout, "daybrief: ", log.LstdFlags|log.Lshortfile)

	// Get base configuration from environment
	cfg := config.GetConfig()

	// Override with command line flags if provided
	if *port > 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger.Printf("Starting daybrief v%s", Version)
	logger.Printf("Port: %d", cfg.Port)
	logger.Printf("Database: %s", cfg.DBPath)
	logger.Printf("Daily fetch at %s UTC", cfg.FetchAtUTC)
	if cfg.AdminToken == "" {
		logger.Printf("Warning: DAYBRIEF_ADMIN_TOKEN not set, admin endpoints are disabled")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDB(cfg.DBPath, database.DefaultConfig())
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	client := feed.NewClient(cfg.UserAgent, cfg.RequestTimeout)
	ingester := ingest.New(db, logger, client, ingest.Config{
		MinWords:        cfg.MinWords,
		MaxItemsPerFeed: cfg.MaxItemsPerFeed,
	})

	sched := scheduler.New(ingester, logger)
	if err := sched.Start(cfg.FetchAtUTC); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Catch up today's slot on startup in case the daily run was missed
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		slot := ingest.SlotDate(time.Now())
		if _, err := ingester.IngestSlot(ctx, slot, 0); err != nil {
			logger.Printf("Startup fill for %s failed: %v", slot, err)
		}
	}()

	srv := server.NewServer(db, logger, ingester, server.Config{
		Addr:         cfg.GetAddress(),
		AdminToken:   cfg.AdminToken,
		PreviewWords: cfg.PreviewWords,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	case sig := <-sigCh:
		logger.Printf("Received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
	}
}
