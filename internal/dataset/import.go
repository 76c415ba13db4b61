package dataset

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/joelkehle/tender-advisor/internal/tenderanalysis"
)

const (
	MetaResourceID = "resource_id"
	MetaImportedAt = "imported_at"
	MetaRowCount   = "row_count"

	defaultBatchSize = 100
)

// PageFetcher is satisfied by *tenderanalysis.DatastoreSource.
type PageFetcher interface {
	Page(ctx context.Context, query string, offset, limit int) ([]tenderanalysis.Record, int, error)
}

type ImportOptions struct {
	ResourceID string
	Query      string
	BatchSize  int
	// MaxRows stops the import early; zero imports everything.
	MaxRows int
	Clock   func() time.Time
}

type ImportStats struct {
	Pages    int
	Rows     int
	Total    int
	Duration time.Duration
}

func Import(ctx context.Context, src PageFetcher, store *Store, opts ImportOptions) (ImportStats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	start := opts.Clock()
	var stats ImportStats
	for {
		limit := opts.BatchSize
		if opts.MaxRows > 0 && opts.MaxRows-stats.Rows < limit {
			limit = opts.MaxRows - stats.Rows
		}
		if limit <= 0 {
			break
		}
		page, total, err := src.Page(ctx, opts.Query, stats.Rows, limit)
		if err != nil {
			return stats, fmt.Errorf("fetch offset=%d: %w", stats.Rows, err)
		}
		stats.Total = total
		if len(page) == 0 {
			break
		}
		n, err := store.Upsert(ctx, page, opts.Clock())
		if err != nil {
			return stats, err
		}
		stats.Pages++
		stats.Rows += n
		log.Printf("tender-dataset-import page=%d rows=%d total=%d", stats.Pages, stats.Rows, total)
		if stats.Rows >= total {
			break
		}
	}
	stats.Duration = opts.Clock().Sub(start)

	count, err := store.Count(ctx)
	if err != nil {
		return stats, err
	}
	for key, value := range map[string]string{
		MetaResourceID: opts.ResourceID,
		MetaImportedAt: opts.Clock().UTC().Format(time.RFC3339),
		MetaRowCount:   strconv.Itoa(count),
	} {
		if err := store.SetMeta(ctx, key, value); err != nil {
			return stats, fmt.Errorf("set %s: %w", key, err)
		}
	}
	return stats, nil
}
