// import loads a DOI-to-URL CSV export into Postgres in resumable batches.
// Progress is checkpointed after every committed batch, so a killed run can
// be continued with --resume as long as the file has not changed.
//
// Usage:
//
//	import --file=doi_urls.csv
//	import --file=doi_urls.csv --resume
//	import --file=doi_urls.csv --batch-size=5000 --init-tables
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/doi-atlas/backend/internal/config"
	"github.com/doi-atlas/backend/internal/domain"
	"github.com/doi-atlas/backend/internal/importer"
	"github.com/doi-atlas/backend/internal/repository/postgres"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()

	var (
		filePath   = flag.String("file", "", "path to the CSV file to import (required)")
		batchSize  = flag.Int("batch-size", cfg.Import.BatchSize, "rows per transaction")
		resume     = flag.Bool("resume", false, "continue an interrupted run for this file")
		initTables = flag.Bool("init-tables", false, "create the schema before importing")
		noProgress = flag.Bool("no-progress", false, "disable the progress bar")
	)
	flag.Parse()

	if *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if *initTables {
		if err := postgres.CreateSchema(ctx, pool); err != nil {
			log.Fatalf("Schema creation failed: %v", err)
		}
		log.Println("Schema applied")
	}

	var bar *progressbar.ProgressBar
	opts := importer.Options{
		BatchSize: *batchSize,
		Resume:    *resume,
	}
	if !*noProgress {
		opts.Progress = func(processed, total int64) {
			if bar == nil {
				bar = progressbar.NewOptions64(total,
					progressbar.OptionSetDescription("importing"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowIts(),
					progressbar.OptionSetItsString("rows"),
					progressbar.OptionThrottle(200*time.Millisecond),
					progressbar.OptionOnCompletion(func() { fmt.Println() }),
				)
			}
			bar.Set64(processed)
		}
	}

	imp := importer.New(
		postgres.NewImportRunRepository(pool),
		postgres.NewURLRepository(pool),
		postgres.NewLookupRepository(pool),
		opts,
	)

	stats, err := imp.Run(ctx, *filePath)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Printf("Import interrupted; re-run with --resume to continue run %s", stats.RunID)
		case errors.Is(err, domain.ErrFingerprintMismatch):
			log.Fatalf("File changed since the interrupted run: %v", err)
		default:
			log.Fatalf("Import failed: %v", err)
		}
		os.Exit(1)
	}

	printReport(stats)
}

func printReport(s *importer.Stats) {
	fmt.Println()
	fmt.Println("Import complete")
	fmt.Printf("  run:        %s", s.RunID)
	if s.Resumed {
		fmt.Print(" (resumed)")
	}
	fmt.Println()
	fmt.Printf("  rows read:  %d of %d\n", s.RowsRead, s.TotalRows)
	fmt.Printf("  accepted:   %d (%d inserted, %d updated)\n", s.Accepted, s.Inserted, s.Updated)
	fmt.Printf("  rejected:   %d\n", s.Rejected)
	for _, reason := range sortedReasons(s.Reasons) {
		fmt.Printf("    %-22s %d\n", reason, s.Reasons[reason])
	}
	fmt.Printf("  batches:    %d\n", s.Batches)
	fmt.Printf("  lookups:    %d hits, %d misses, %d cached values\n", s.CacheHits, s.CacheMisses, s.CacheSize)
	fmt.Printf("  elapsed:    %s (%.0f rows/sec)\n", s.Elapsed.Round(time.Millisecond), s.RowsPerSecond)
}

func sortedReasons(reasons map[string]int64) []string {
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
