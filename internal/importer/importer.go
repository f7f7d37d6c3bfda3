// Package importer drives the resumable batch import pipeline: it streams
// CSV batches, normalizes rows against the lookup cache, hands batches to
// the store, and advances the run checkpoint after every committed batch.
package importer

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/doi-atlas/backend/internal/csvsource"
	"github.com/doi-atlas/backend/internal/domain"
)

// RejectCSVParse marks rows the CSV reader could not frame.
const RejectCSVParse = "csv_parse_error"

// BatchStore applies one normalized batch and advances the run watermark
// (rows processed + last batch id) inside a single transaction, so the
// checkpoint can never disagree with what is durably stored.
type BatchStore interface {
	ApplyBatch(ctx context.Context, runID string, batchID int, rowsDelta int64, records []*domain.URLRecord) (domain.WriteResult, error)
}

// Options tunes one importer invocation. The CLI/env layer produces these.
type Options struct {
	BatchSize int
	Resume    bool
	// Progress, if set, is called after every batch with rows processed so
	// far (across resumes) and the file's total row count.
	Progress func(processed, total int64)
}

// Importer is the single sequential worker for one source file. Writes and
// watermark advances stay in lock-step; parallelize across files, never
// across batches of one run.
type Importer struct {
	runs  domain.ImportRunRepository
	store BatchStore
	cache *LookupCache
	opts  Options
}

func New(runs domain.ImportRunRepository, store BatchStore, lookups domain.LookupRepository, opts Options) *Importer {
	return &Importer{
		runs:  runs,
		store: store,
		cache: NewLookupCache(lookups),
		opts:  opts,
	}
}

// Run imports the file at csvPath to completion, resuming a prior
// in_progress run when Options.Resume is set and the file fingerprint
// still matches. The returned Stats cover this invocation only.
func (imp *Importer) Run(ctx context.Context, csvPath string) (*Stats, error) {
	start := time.Now()

	src, err := csvsource.Open(csvPath, imp.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	for _, required := range []string{ColDOI, ColURL} {
		if !src.HasColumn(required) {
			return nil, fmt.Errorf("%w: source is missing required column %q", domain.ErrConfig, required)
		}
	}

	hash, err := Fingerprint(csvPath)
	if err != nil {
		return nil, err
	}
	totalRows, err := src.TotalRows()
	if err != nil {
		return nil, err
	}

	run, resumed, err := imp.openRun(ctx, csvPath, hash, totalRows)
	if err != nil {
		return nil, err
	}
	if resumed {
		log.Printf("resuming run %s at row %d/%d (batch %d)", run.ID, run.RowsProcessed, run.TotalRows, run.LastBatchID)
	} else {
		log.Printf("starting run %s: %s (%d rows)", run.ID, csvPath, totalRows)
	}

	stats := newStats(run.ID, totalRows, resumed)
	if err := imp.cache.Preload(ctx); err != nil {
		return stats, imp.fail(ctx, run, stats, start, err)
	}

	it, err := src.Batches(run.RowsProcessed)
	if err != nil {
		return stats, imp.fail(ctx, run, stats, start, err)
	}
	defer it.Close()

	normalizer := NewNormalizer(imp.cache)
	processed := run.RowsProcessed
	batchID := run.LastBatchID

	for {
		if ctx.Err() != nil {
			if cancelErr := imp.runs.Cancel(ctx, run.ID); cancelErr != nil {
				log.Printf("run %s: cancel checkpoint failed: %v", run.ID, cancelErr)
			}
			stats.finish(imp.cache.Stats(), time.Since(start))
			return stats, ctx.Err()
		}

		framingRejects := it.Rejected()
		batch, err := it.Next()
		if err == io.EOF {
			// Malformed rows at the tail of the file still consumed records;
			// advance the watermark past them so a completed run accounts
			// for every data row.
			if trailing := it.Rejected() - framingRejects; trailing > 0 {
				batchID++
				if _, err := imp.store.ApplyBatch(ctx, run.ID, batchID, trailing, nil); err != nil {
					return stats, imp.fail(ctx, run, stats, start, err)
				}
				for i := int64(0); i < trailing; i++ {
					stats.reject(RejectCSVParse)
				}
				processed += trailing
				stats.RowsRead += trailing
				if imp.opts.Progress != nil {
					imp.opts.Progress(processed, totalRows)
				}
			}
			break
		}
		if err != nil {
			return stats, imp.fail(ctx, run, stats, start, err)
		}
		framingRejects = it.Rejected() - framingRejects

		records := make([]*domain.URLRecord, 0, len(batch))
		for _, row := range batch {
			rec, reason, err := normalizer.Normalize(ctx, row)
			if err != nil {
				return stats, imp.fail(ctx, run, stats, start, err)
			}
			if reason != "" {
				stats.reject(reason)
				continue
			}
			records = append(records, rec)
		}
		for i := int64(0); i < framingRejects; i++ {
			stats.reject(RejectCSVParse)
		}

		// Framing rejects consumed a CSV record each, so they count toward
		// the resume offset just like accepted and rejected rows.
		rowsDelta := int64(len(batch)) + framingRejects
		batchID++

		result, err := imp.store.ApplyBatch(ctx, run.ID, batchID, rowsDelta, records)
		if err != nil {
			err = fmt.Errorf("batch %d (rows %d-%d): %w", batchID, processed+1, processed+rowsDelta, err)
			return stats, imp.fail(ctx, run, stats, start, err)
		}

		processed += rowsDelta
		stats.RowsRead += rowsDelta
		stats.Accepted += int64(len(records))
		stats.Inserted += result.Inserted
		stats.Updated += result.Updated
		stats.Batches++

		if imp.opts.Progress != nil {
			imp.opts.Progress(processed, totalRows)
		}
	}

	if err := imp.runs.Complete(ctx, run.ID); err != nil {
		return stats, imp.fail(ctx, run, stats, start, fmt.Errorf("%w: complete run: %v", domain.ErrWrite, err))
	}
	stats.finish(imp.cache.Stats(), time.Since(start))
	log.Printf("run %s complete: %d read, %d accepted, %d rejected, %d inserted, %d updated (%.0f rows/sec)",
		run.ID, stats.RowsRead, stats.Accepted, stats.Rejected, stats.Inserted, stats.Updated, stats.RowsPerSecond)
	return stats, nil
}

// openRun decides fresh-start vs resume. A fingerprint mismatch on resume
// is surfaced, never silently continued past: the caller decides whether
// to restart without --resume or to abort. Failed and cancelled runs are
// terminal, so resuming one starts a new run that takes over the prior
// run's watermark instead of advancing the old record.
func (imp *Importer) openRun(ctx context.Context, csvPath, hash string, totalRows int64) (*domain.ImportRun, bool, error) {
	var prior *domain.ImportRun
	if imp.opts.Resume {
		var err error
		prior, err = imp.runs.FindResumable(ctx, csvPath, hash)
		if err != nil {
			return nil, false, fmt.Errorf("%w: find resumable run: %v", domain.ErrWrite, err)
		}
		if prior != nil {
			if prior.FileHash != hash {
				return nil, false, fmt.Errorf("%w: run %s recorded %.12s…, file is now %.12s…",
					domain.ErrFingerprintMismatch, prior.ID, prior.FileHash, hash)
			}
			if prior.Status == domain.RunInProgress {
				return prior, true, nil
			}
		}
	}

	run := &domain.ImportRun{
		ID:        uuid.New().String(),
		FilePath:  csvPath,
		FileHash:  hash,
		TotalRows: totalRows,
		Status:    domain.RunInProgress,
		StartTime: time.Now(),
	}
	resumed := false
	if prior != nil {
		run.RowsProcessed = prior.RowsProcessed
		run.LastBatchID = prior.LastBatchID
		resumed = true
	}
	if err := imp.runs.Start(ctx, run); err != nil {
		return nil, false, fmt.Errorf("%w: start run: %v", domain.ErrWrite, err)
	}
	return run, resumed, nil
}

func (imp *Importer) fail(ctx context.Context, run *domain.ImportRun, stats *Stats, start time.Time, cause error) error {
	if err := imp.runs.Fail(ctx, run.ID, cause.Error()); err != nil {
		log.Printf("run %s: recording failure also failed: %v", run.ID, err)
	}
	stats.finish(imp.cache.Stats(), time.Since(start))
	return cause
}
