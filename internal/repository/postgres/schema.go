package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the lookup tables, the main doi_urls table and
// the import checkpoint table. All statements are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS license (
		id SERIAL PRIMARY KEY,
		value TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS oa_status (
		id SERIAL PRIMARY KEY,
		value TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS host_type (
		id SERIAL PRIMARY KEY,
		value TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS work_type (
		id SERIAL PRIMARY KEY,
		value TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS doi_urls (
		id BIGSERIAL PRIMARY KEY,
		doi TEXT NOT NULL,
		url TEXT NOT NULL,
		pdf_url TEXT,
		openalex_id BIGINT,
		title TEXT,
		publication_year INTEGER,
		location_type CHAR(1) NOT NULL CHECK (location_type IN ('p', 'a', 'b')),
		version TEXT,
		license_id INTEGER REFERENCES license(id),
		host_type_id INTEGER REFERENCES host_type(id),
		oa_status_id INTEGER REFERENCES oa_status(id),
		is_oa BOOLEAN DEFAULT FALSE,
		work_type_id INTEGER REFERENCES work_type(id),
		is_retracted BOOLEAN DEFAULT FALSE,
		url_quality_score INTEGER DEFAULT 50,
		last_verified TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now(),
		CONSTRAINT unique_doi_url UNIQUE (doi, url)
	)`,
	`CREATE TABLE IF NOT EXISTS import_progress (
		import_id TEXT PRIMARY KEY,
		csv_file_path TEXT NOT NULL,
		csv_file_hash TEXT NOT NULL,
		total_rows BIGINT NOT NULL,
		processed_rows BIGINT DEFAULT 0,
		last_batch_id INTEGER DEFAULT 0,
		status TEXT DEFAULT 'in_progress',
		start_time TIMESTAMPTZ DEFAULT now(),
		end_time TIMESTAMPTZ,
		error_message TEXT,
		created_at TIMESTAMPTZ DEFAULT now(),
		updated_at TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_doi_urls_doi ON doi_urls(doi)`,
	`CREATE INDEX IF NOT EXISTS idx_doi_urls_openalex_id ON doi_urls(openalex_id) WHERE openalex_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_doi_urls_year ON doi_urls(publication_year) WHERE publication_year IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_import_progress_file_path ON import_progress(csv_file_path)`,
	`CREATE INDEX IF NOT EXISTS idx_import_progress_status ON import_progress(status)`,
}

// CreateSchema applies the full schema. Safe to run repeatedly.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
