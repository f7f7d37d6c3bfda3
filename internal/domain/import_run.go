package domain

import (
	"context"
	"time"
)

// Import run statuses. A run leaves in_progress exactly once; terminal
// states are never advanced again.
const (
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
	RunFailed     = "failed"
	RunCancelled  = "cancelled"
)

// ImportRun is one attempt to load one source file. The watermark is
// (RowsProcessed, LastBatchID): everything up to and including LastBatchID
// is durably applied.
type ImportRun struct {
	ID            string     `json:"import_id"`
	FilePath      string     `json:"csv_file_path"`
	FileHash      string     `json:"csv_file_hash"`
	TotalRows     int64      `json:"total_rows"`
	RowsProcessed int64      `json:"processed_rows"`
	LastBatchID   int        `json:"last_batch_id"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
}

// ImportRunRepository persists run checkpoint state. Advance is not part of
// this interface: the watermark moves inside the same transaction as the
// batch write (see importer.BatchStore).
type ImportRunRepository interface {
	Start(ctx context.Context, run *ImportRun) error
	// FindResumable matches on path or content hash, so a renamed but
	// byte-identical file still resumes as the same logical import. It
	// considers failed and cancelled runs as well as in_progress ones;
	// terminal runs seed a new run's watermark rather than being reopened.
	FindResumable(ctx context.Context, filePath, fileHash string) (*ImportRun, error)
	GetByID(ctx context.Context, id string) (*ImportRun, error)
	List(ctx context.Context, limit int) ([]*ImportRun, error)
	Complete(ctx context.Context, runID string) error
	Fail(ctx context.Context, runID string, message string) error
	Cancel(ctx context.Context, runID string) error
}
