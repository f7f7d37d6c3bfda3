package domain

import "errors"

// Error taxonomy for the import pipeline. Row-level format problems are
// counted and skipped; everything below aborts at least the current batch.
var (
	// ErrFormat: the source file (or a region of it) cannot be framed as
	// delimited text. Fatal when it affects the header or the whole file.
	ErrFormat = errors.New("malformed input file")

	// ErrFileNotFound: the source path does not exist or is unreadable.
	ErrFileNotFound = errors.New("source file not found")

	// ErrLookup: the backing store failed while resolving a lookup value.
	ErrLookup = errors.New("lookup resolution failed")

	// ErrWrite: the backing store failed during a bulk upsert.
	ErrWrite = errors.New("bulk write failed")

	// ErrFingerprintMismatch: resume was requested but the file content
	// changed since the checkpointed run started. Never auto-recovered.
	ErrFingerprintMismatch = errors.New("source file changed since checkpoint")

	// ErrConfig: invalid batch size, missing required columns, or an
	// unreachable destination, detected before any row is processed.
	ErrConfig = errors.New("invalid import configuration")
)
