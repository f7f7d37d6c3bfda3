package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doi-atlas/backend/internal/domain"
)

// terminalWriteTimeout bounds the Complete/Fail/Cancel updates. These run
// on their own context so a cancelled caller context cannot prevent the
// final status from being recorded.
const terminalWriteTimeout = 10 * time.Second

const runColumns = `import_id, csv_file_path, csv_file_hash, total_rows,
	processed_rows, last_batch_id, status, start_time, end_time, error_message`

type ImportRunRepository struct {
	db *pgxpool.Pool
}

func NewImportRunRepository(db *pgxpool.Pool) *ImportRunRepository {
	return &ImportRunRepository{db: db}
}

func (r *ImportRunRepository) Start(ctx context.Context, run *domain.ImportRun) error {
	query := `
		INSERT INTO import_progress (import_id, csv_file_path, csv_file_hash, total_rows,
			processed_rows, last_batch_id, status, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		run.ID, run.FilePath, run.FileHash, run.TotalRows,
		run.RowsProcessed, run.LastBatchID, run.Status, run.StartTime)
	return err
}

// FindResumable returns the most recent run whose watermark can seed a
// resume: an in_progress run (continued in place) or a failed/cancelled one
// (taken over by a new run). Matching by hash as well as path lets a
// renamed but unchanged file pick up its old checkpoint.
func (r *ImportRunRepository) FindResumable(ctx context.Context, filePath, fileHash string) (*domain.ImportRun, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM import_progress
		WHERE (csv_file_path = $1 OR csv_file_hash = $2)
		  AND status IN ($3, $4, $5)
		ORDER BY start_time DESC
		LIMIT 1
	`, runColumns)

	run, err := r.scanRun(r.db.QueryRow(ctx, query, filePath, fileHash,
		domain.RunInProgress, domain.RunFailed, domain.RunCancelled))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *ImportRunRepository) GetByID(ctx context.Context, id string) (*domain.ImportRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM import_progress WHERE import_id = $1`, runColumns)

	run, err := r.scanRun(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *ImportRunRepository) List(ctx context.Context, limit int) ([]*domain.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM import_progress ORDER BY start_time DESC LIMIT $1`, runColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.ImportRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Complete, Fail and Cancel take the caller context only for interface
// symmetry; the underlying update always gets its own deadline so the
// terminal status lands even during shutdown.
//
// Complete also reconciles total_rows with processed_rows: the total comes
// from a physical line count, which overcounts when quoted fields contain
// embedded newlines, and a finished run has consumed every record there is.
func (r *ImportRunRepository) Complete(ctx context.Context, id string) error {
	tctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	tag, err := r.db.Exec(tctx, `
		UPDATE import_progress
		SET status = $2, end_time = now(), total_rows = processed_rows, updated_at = now()
		WHERE import_id = $1 AND status = $3
	`, id, domain.RunCompleted, domain.RunInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("run %s is not in progress", id)
	}
	return nil
}

func (r *ImportRunRepository) Fail(ctx context.Context, id, message string) error {
	return r.finish(id, domain.RunFailed, &message)
}

func (r *ImportRunRepository) Cancel(ctx context.Context, id string) error {
	return r.finish(id, domain.RunCancelled, nil)
}

func (r *ImportRunRepository) scanRun(row pgx.Row) (*domain.ImportRun, error) {
	run := &domain.ImportRun{}
	err := row.Scan(
		&run.ID, &run.FilePath, &run.FileHash, &run.TotalRows,
		&run.RowsProcessed, &run.LastBatchID, &run.Status,
		&run.StartTime, &run.EndTime, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// advanceRun moves the watermark forward inside the batch transaction.
// The status guard means a run that was failed or cancelled concurrently
// cannot keep advancing.
func advanceRun(ctx context.Context, tx pgx.Tx, runID string, batchID int, rowsDelta int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE import_progress
		SET processed_rows = processed_rows + $2,
		    last_batch_id = $3,
		    updated_at = now()
		WHERE import_id = $1 AND status = $4
	`, runID, rowsDelta, batchID, domain.RunInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("run %s is not in progress", runID)
	}
	return nil
}

func (r *ImportRunRepository) finish(runID, status string, errorMessage *string) error {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE import_progress
		SET status = $2, end_time = now(), error_message = $3, updated_at = now()
		WHERE import_id = $1 AND status = $4
	`, runID, status, errorMessage, domain.RunInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("run %s is not in progress", runID)
	}
	return nil
}
