package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/doi-atlas/backend/internal/domain"
)

var ErrDOINotFound = errors.New("doi not found")

// LookupUsecase serves the read side: resolve a DOI to its known URLs and
// report on import runs.
type LookupUsecase struct {
	urls domain.URLReader
	runs domain.ImportRunRepository
}

func NewLookupUsecase(urls domain.URLReader, runs domain.ImportRunRepository) *LookupUsecase {
	return &LookupUsecase{urls: urls, runs: runs}
}

// LookupResult is the API response for a DOI lookup. BestURL is the
// highest-quality URL and is duplicated out of URLs for convenience.
type LookupResult struct {
	DOI     string                `json:"doi"`
	BestURL string                `json:"best_url"`
	URLs    []*domain.ResolvedURL `json:"urls"`
}

// ResolveDOI normalizes the query the same way the importer normalizes
// incoming rows, so "https://doi.org/10.1234/X" and "10.1234/x" hit the
// same record.
func (u *LookupUsecase) ResolveDOI(ctx context.Context, rawDOI string) (*LookupResult, error) {
	doi := canonicalDOI(rawDOI)
	if doi == "" {
		return nil, ErrDOINotFound
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	urls, err := u.urls.GetByDOI(ctx, doi)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrDOINotFound
	}

	return &LookupResult{
		DOI:     doi,
		BestURL: urls[0].URL,
		URLs:    urls,
	}, nil
}

// StatsResult summarizes the corpus for the health/stats endpoint.
type StatsResult struct {
	TotalURLs int64 `json:"total_urls"`
}

func (u *LookupUsecase) Stats(ctx context.Context) (*StatsResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	count, err := u.urls.CountRecords(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsResult{TotalURLs: count}, nil
}

func (u *LookupUsecase) ListImports(ctx context.Context, limit int) ([]*domain.ImportRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return u.runs.List(ctx, limit)
}

func (u *LookupUsecase) GetImport(ctx context.Context, id string) (*domain.ImportRun, error) {
	return u.runs.GetByID(ctx, id)
}

// canonicalDOI lowercases and strips resolver prefixes, mirroring what the
// import pipeline stores.
func canonicalDOI(raw string) string {
	doi := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(doi, prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(doi)
}
