package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/TaranshG/Receipt-Identifer/internal/app"
	"github.com/TaranshG/Receipt-Identifer/internal/config"
	"github.com/TaranshG/Receipt-Identifer/internal/logger"
	"github.com/TaranshG/Receipt-Identifer/internal/notionsync"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	notionToken := flag.String("notion-token", "", "Notion API token (overrides config)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := app.Logger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if *notionToken != "" {
		cfg.Notion.Token = *notionToken
	}
	if *notionDBID != "" {
		cfg.Notion.DatabaseID = *notionDBID
	}
	if cfg.Notion.Token == "" {
		log.Fatal().Msg("Error: --notion-token or RECEIPTID_NOTION_TOKEN is required")
	}
	if cfg.Notion.DatabaseID == "" {
		log.Fatal().Msg("Error: --notion-db-id or RECEIPTID_NOTION_DATABASE_ID is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("backend", cfg.Store.Backend).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open proof store")
	}
	defer store.Close()

	notionClient := notionsync.NewProofDatabase(cfg.Notion.Token)

	stats, err := notionsync.SyncProofs(ctx, store, notionClient, cfg.Notion.DatabaseID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d failed.\n",
		stats.Created, stats.Updated, stats.Archived, stats.Failed)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
