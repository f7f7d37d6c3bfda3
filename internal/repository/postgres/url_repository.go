package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doi-atlas/backend/internal/domain"
)

// urlColumns is the COPY/INSERT column order for doi_urls writes.
var urlColumns = []string{
	"doi", "url", "pdf_url", "openalex_id", "title", "publication_year",
	"location_type", "version", "license_id", "host_type_id", "oa_status_id",
	"is_oa", "work_type_id", "is_retracted", "url_quality_score",
}

// upsertQuery merges the staged batch into doi_urls. COALESCE keeps the
// existing value whenever the incoming one is null, so a re-import can
// enrich a row but never blank out pdf_url or other optional fields.
// (xmax = 0) distinguishes fresh inserts from conflict updates.
const upsertQuery = `
	INSERT INTO doi_urls (
		doi, url, pdf_url, openalex_id, title, publication_year,
		location_type, version, license_id, host_type_id, oa_status_id,
		is_oa, work_type_id, is_retracted, url_quality_score
	)
	SELECT
		doi, url, pdf_url, openalex_id, title, publication_year,
		location_type, version, license_id, host_type_id, oa_status_id,
		is_oa, work_type_id, is_retracted, url_quality_score
	FROM batch_doi_urls
	ON CONFLICT (doi, url) DO UPDATE SET
		pdf_url = COALESCE(EXCLUDED.pdf_url, doi_urls.pdf_url),
		openalex_id = COALESCE(EXCLUDED.openalex_id, doi_urls.openalex_id),
		title = COALESCE(EXCLUDED.title, doi_urls.title),
		publication_year = COALESCE(EXCLUDED.publication_year, doi_urls.publication_year),
		location_type = EXCLUDED.location_type,
		version = COALESCE(EXCLUDED.version, doi_urls.version),
		license_id = COALESCE(EXCLUDED.license_id, doi_urls.license_id),
		host_type_id = COALESCE(EXCLUDED.host_type_id, doi_urls.host_type_id),
		oa_status_id = COALESCE(EXCLUDED.oa_status_id, doi_urls.oa_status_id),
		is_oa = EXCLUDED.is_oa,
		work_type_id = EXCLUDED.work_type_id,
		is_retracted = EXCLUDED.is_retracted,
		url_quality_score = EXCLUDED.url_quality_score,
		updated_at = now()
	RETURNING (xmax = 0) AS inserted
`

// URLRepository is the bulk writer and read side for doi_urls.
type URLRepository struct {
	db *pgxpool.Pool
}

func NewURLRepository(db *pgxpool.Pool) *URLRepository {
	return &URLRepository{db: db}
}

// ApplyBatch stages the batch via COPY, merges it into doi_urls and
// advances the run watermark, all in one transaction. Either the whole
// batch and its checkpoint land together or neither does, which is what
// makes re-running an interrupted batch safe.
func (r *URLRepository) ApplyBatch(ctx context.Context, runID string, batchID int, rowsDelta int64, records []*domain.URLRecord) (domain.WriteResult, error) {
	var result domain.WriteResult

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: begin: %v", domain.ErrWrite, err)
	}
	defer tx.Rollback(ctx)

	if len(records) > 0 {
		result, err = upsertBatch(ctx, tx, records)
		if err != nil {
			return domain.WriteResult{}, fmt.Errorf("%w: %v", domain.ErrWrite, err)
		}
	}
	if err := advanceRun(ctx, tx, runID, batchID, rowsDelta); err != nil {
		return domain.WriteResult{}, fmt.Errorf("%w: advance watermark: %v", domain.ErrWrite, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.WriteResult{}, fmt.Errorf("%w: commit batch %d: %v", domain.ErrWrite, batchID, err)
	}
	return result, nil
}

func upsertBatch(ctx context.Context, tx pgx.Tx, records []*domain.URLRecord) (domain.WriteResult, error) {
	var result domain.WriteResult

	records = dedupeByNaturalKey(records)

	_, err := tx.Exec(ctx, `
		CREATE TEMP TABLE batch_doi_urls ON COMMIT DROP AS
		SELECT `+columnList()+` FROM doi_urls WHERE false
	`)
	if err != nil {
		return result, fmt.Errorf("create staging table: %v", err)
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.DOI, rec.URL, rec.PDFURL, rec.OpenAlexID, rec.Title,
			rec.PublicationYear, string(rec.LocationType), rec.Version,
			rec.LicenseID, rec.HostTypeID, rec.OAStatusID, rec.IsOA,
			rec.WorkTypeID, rec.IsRetracted, rec.QualityScore,
		})
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"batch_doi_urls"}, urlColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return result, fmt.Errorf("copy into staging table: %v", err)
	}
	if n != int64(len(rows)) {
		return result, fmt.Errorf("staged %d of %d rows", n, len(rows))
	}

	merged, err := tx.Query(ctx, upsertQuery)
	if err != nil {
		return result, fmt.Errorf("merge batch: %v", err)
	}
	defer merged.Close()
	for merged.Next() {
		var inserted bool
		if err := merged.Scan(&inserted); err != nil {
			return result, fmt.Errorf("scan merge result: %v", err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	return result, merged.Err()
}

// dedupeByNaturalKey collapses records sharing (doi, url) within a batch;
// the last occurrence wins. Postgres rejects an INSERT that touches the
// same conflict target twice, so this is required, not cosmetic.
func dedupeByNaturalKey(records []*domain.URLRecord) []*domain.URLRecord {
	index := make(map[string]int, len(records))
	out := make([]*domain.URLRecord, 0, len(records))
	for _, rec := range records {
		key := rec.DOI + "\x00" + rec.URL
		if i, ok := index[key]; ok {
			out[i] = rec
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}

func columnList() string {
	s := urlColumns[0]
	for _, c := range urlColumns[1:] {
		s += ", " + c
	}
	return s
}

// GetByDOI returns every stored URL for a DOI with lookup foreign keys
// joined back to text, best quality first.
func (r *URLRepository) GetByDOI(ctx context.Context, doi string) ([]*domain.ResolvedURL, error) {
	query := `
		SELECT d.doi, d.url, d.pdf_url, d.openalex_id, d.title, d.publication_year,
		       d.location_type, d.version, l.value, h.value, o.value,
		       d.is_oa, w.value, d.is_retracted, d.url_quality_score
		FROM doi_urls d
		LEFT JOIN license l ON l.id = d.license_id
		LEFT JOIN host_type h ON h.id = d.host_type_id
		LEFT JOIN oa_status o ON o.id = d.oa_status_id
		LEFT JOIN work_type w ON w.id = d.work_type_id
		WHERE d.doi = $1
		ORDER BY d.url_quality_score DESC, d.url
	`

	rows, err := r.db.Query(ctx, query, doi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ResolvedURL
	for rows.Next() {
		rec := &domain.ResolvedURL{}
		var locationType string
		err := rows.Scan(
			&rec.DOI, &rec.URL, &rec.PDFURL, &rec.OpenAlexID, &rec.Title,
			&rec.PublicationYear, &locationType, &rec.Version, &rec.License,
			&rec.HostType, &rec.OAStatus, &rec.IsOA, &rec.WorkType,
			&rec.IsRetracted, &rec.QualityScore,
		)
		if err != nil {
			return nil, err
		}
		if locationType != "" {
			rec.LocationType = domain.LocationTypeLabel(locationType[0])
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// CountRecords returns the doi_urls row count, used by the health surface.
func (r *URLRepository) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM doi_urls`).Scan(&count)
	return count, err
}
