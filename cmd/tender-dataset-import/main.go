package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joelkehle/tender-advisor/internal/app"
	"github.com/joelkehle/tender-advisor/internal/config"
	"github.com/joelkehle/tender-advisor/internal/dataset"
)

func main() {
	configPath := flag.String("config", "", "Optional config file (yaml, toml or json)")
	dbPath := flag.String("db", "", "SQLite snapshot path (overrides search.sqlite_path)")
	query := flag.String("q", "", "Only import rows matching this full-text query")
	batch := flag.Int("batch", 100, "Rows per datastore request")
	maxRows := flag.Int("max-rows", 0, "Stop after this many rows (0 imports everything)")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	path := *dbPath
	if path == "" {
		path = cfg.Search.SQLitePath
	}
	if path == "" {
		path = "./data/awards.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("create snapshot dir: %v", err)
	}

	store, err := dataset.Open(path, cfg.RecordFields())
	if err != nil {
		log.Fatalf("open snapshot (%s): %v", path, err)
	}
	defer store.Close()

	src := app.NewDatastore(cfg.Search, nil)
	defer src.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("tender-dataset-import starting resource=%s db=%s", cfg.Search.ResourceID, path)
	stats, err := dataset.Import(ctx, src, store, dataset.ImportOptions{
		ResourceID: cfg.Search.ResourceID,
		Query:      *query,
		BatchSize:  *batch,
		MaxRows:    *maxRows,
	})
	if err != nil {
		log.Fatalf("import: %v", err)
	}
	log.Printf("tender-dataset-import done pages=%d rows=%d total=%d duration=%s", stats.Pages, stats.Rows, stats.Total, stats.Duration)
}
