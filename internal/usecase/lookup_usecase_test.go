package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/doi-atlas/backend/internal/domain"
)

type fakeURLReader struct {
	byDOI map[string][]*domain.ResolvedURL
	count int64
}

func (f *fakeURLReader) GetByDOI(ctx context.Context, doi string) ([]*domain.ResolvedURL, error) {
	return f.byDOI[doi], nil
}

func (f *fakeURLReader) CountRecords(ctx context.Context) (int64, error) {
	return f.count, nil
}

func TestResolveDOINormalizesQuery(t *testing.T) {
	reader := &fakeURLReader{byDOI: map[string][]*domain.ResolvedURL{
		"10.1234/abc": {
			{DOI: "10.1234/abc", URL: "https://example.org/best", QualityScore: 90},
			{DOI: "10.1234/abc", URL: "https://example.org/other", QualityScore: 50},
		},
	}}
	u := NewLookupUsecase(reader, nil)

	queries := []string{
		"10.1234/abc",
		"10.1234/ABC",
		"  10.1234/abc  ",
		"https://doi.org/10.1234/abc",
		"http://dx.doi.org/10.1234/abc",
		"doi:10.1234/abc",
	}
	for _, q := range queries {
		result, err := u.ResolveDOI(context.Background(), q)
		if err != nil {
			t.Errorf("ResolveDOI(%q): %v", q, err)
			continue
		}
		if result.DOI != "10.1234/abc" {
			t.Errorf("ResolveDOI(%q).DOI = %q", q, result.DOI)
		}
		if result.BestURL != "https://example.org/best" {
			t.Errorf("ResolveDOI(%q).BestURL = %q", q, result.BestURL)
		}
		if len(result.URLs) != 2 {
			t.Errorf("ResolveDOI(%q) returned %d urls, want 2", q, len(result.URLs))
		}
	}
}

func TestResolveDOINotFound(t *testing.T) {
	u := NewLookupUsecase(&fakeURLReader{byDOI: map[string][]*domain.ResolvedURL{}}, nil)

	for _, q := range []string{"10.9999/nope", "", "   "} {
		_, err := u.ResolveDOI(context.Background(), q)
		if !errors.Is(err, ErrDOINotFound) {
			t.Errorf("ResolveDOI(%q) err = %v, want ErrDOINotFound", q, err)
		}
	}
}

func TestStats(t *testing.T) {
	u := NewLookupUsecase(&fakeURLReader{count: 42}, nil)

	stats, err := u.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalURLs != 42 {
		t.Errorf("TotalURLs = %d, want 42", stats.TotalURLs)
	}
}
