package domain

import (
	"context"
	"time"
)

// Location type codes stored in doi_urls.location_type.
const (
	LocationPrimary   = 'p'
	LocationAlternate = 'a'
	LocationBestOA    = 'b'
)

// DefaultQualityScore is assigned when the source provides no score.
// The score is advisory and only used for ranking lookup results.
const DefaultQualityScore = 50

// URLRecord is one (doi, url) mapping with its normalized metadata.
// The (DOI, URL) pair is the natural key; ID is the surrogate assigned
// by the database.
type URLRecord struct {
	ID              int64      `json:"id"`
	DOI             string     `json:"doi"`
	URL             string     `json:"url"`
	PDFURL          *string    `json:"pdf_url,omitempty"`
	OpenAlexID      *int64     `json:"openalex_id,omitempty"`
	Title           *string    `json:"title,omitempty"`
	PublicationYear *int       `json:"publication_year,omitempty"`
	LocationType    byte       `json:"-"`
	Version         *string    `json:"version,omitempty"`
	LicenseID       *int       `json:"-"`
	HostTypeID      *int       `json:"-"`
	OAStatusID      *int       `json:"-"`
	IsOA            bool       `json:"is_oa"`
	WorkTypeID      *int       `json:"-"`
	IsRetracted     bool       `json:"is_retracted"`
	QualityScore    int        `json:"url_quality_score"`
	LastVerified    *time.Time `json:"last_verified,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ResolvedURL is a URLRecord with its lookup foreign keys joined back to
// their text values, as served by the read API.
type ResolvedURL struct {
	DOI             string  `json:"doi"`
	URL             string  `json:"url"`
	PDFURL          *string `json:"pdf_url,omitempty"`
	OpenAlexID      *int64  `json:"openalex_id,omitempty"`
	Title           *string `json:"title,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	LocationType    string  `json:"location_type"`
	Version         *string `json:"version,omitempty"`
	License         *string `json:"license,omitempty"`
	HostType        *string `json:"host_type,omitempty"`
	OAStatus        *string `json:"oa_status,omitempty"`
	IsOA            bool    `json:"is_oa"`
	WorkType        *string `json:"work_type,omitempty"`
	IsRetracted     bool    `json:"is_retracted"`
	QualityScore    int     `json:"url_quality_score"`
}

// WriteResult reports how a batch upsert landed.
type WriteResult struct {
	Inserted int64
	Updated  int64
}

// URLReader is the read side used by the lookup API.
type URLReader interface {
	GetByDOI(ctx context.Context, doi string) ([]*ResolvedURL, error)
	CountRecords(ctx context.Context) (int64, error)
}

// LocationTypeLabel converts a stored location code back to its text form.
func LocationTypeLabel(code byte) string {
	switch code {
	case LocationAlternate:
		return "alternate"
	case LocationBestOA:
		return "best_oa"
	default:
		return "primary"
	}
}
