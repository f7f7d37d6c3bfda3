package importer

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/doi-atlas/backend/internal/csvsource"
	"github.com/doi-atlas/backend/internal/domain"
)

// Recognized input columns. doi and url are required; everything else is
// optional and tolerated when missing.
const (
	ColDOI          = "doi"
	ColURL          = "url"
	ColPDFURL       = "pdf_url"
	ColOpenAlexID   = "openalex_id"
	ColTitle        = "title"
	ColYear         = "publication_year"
	ColLocationType = "location_type"
	ColVersion      = "version"
	ColLicense      = "license"
	ColHostType     = "host_type"
	ColOAStatus     = "oa_status"
	ColIsOA         = "is_oa"
	ColWorkType     = "work_type"
	ColIsRetracted  = "is_retracted"
)

// Reject reasons surfaced in the statistics breakdown.
const (
	RejectMissingDOI      = "missing_doi"
	RejectInvalidURL      = "invalid_url"
	RejectInvalidLocation = "invalid_location_type"
)

// OpenAlex ids arrive as bare integers, "W"-prefixed codes, or full URLs
// like https://openalex.org/W1982051859; only the digit run is stored.
var openAlexIDPattern = regexp.MustCompile(`^[A-Za-z]*([0-9]+)$`)

// Normalizer turns one raw CSV row into a storage-ready URLRecord,
// resolving free-text category fields through the lookup cache.
type Normalizer struct {
	cache   *LookupCache
	maxYear int
}

func NewNormalizer(cache *LookupCache) *Normalizer {
	return &Normalizer{cache: cache, maxYear: time.Now().Year() + 1}
}

// Normalize returns either a record, or a non-empty reject reason, or an
// error. Errors only come from the lookup store and abort the batch;
// rejects are counted and processing continues.
func (n *Normalizer) Normalize(ctx context.Context, row csvsource.Row) (*domain.URLRecord, string, error) {
	doi := normalizeDOI(row[ColDOI])
	if doi == "" {
		return nil, RejectMissingDOI, nil
	}

	rawURL := strings.TrimSpace(row[ColURL])
	if !isAbsoluteURL(rawURL) {
		return nil, RejectInvalidURL, nil
	}

	locationType, ok := normalizeLocationType(row[ColLocationType])
	if !ok {
		return nil, RejectInvalidLocation, nil
	}

	rec := &domain.URLRecord{
		DOI:             doi,
		URL:             rawURL,
		PDFURL:          optionalString(row[ColPDFURL]),
		OpenAlexID:      extractOpenAlexID(row[ColOpenAlexID]),
		Title:           optionalString(row[ColTitle]),
		PublicationYear: n.parseYear(row[ColYear]),
		LocationType:    locationType,
		Version:         optionalString(row[ColVersion]),
		IsOA:            parseBool(row[ColIsOA]),
		IsRetracted:     parseBool(row[ColIsRetracted]),
		QualityScore:    domain.DefaultQualityScore,
	}

	var err error
	if rec.LicenseID, err = n.resolve(ctx, domain.LookupLicense, row[ColLicense]); err != nil {
		return nil, "", err
	}
	if rec.HostTypeID, err = n.resolve(ctx, domain.LookupHostType, row[ColHostType]); err != nil {
		return nil, "", err
	}
	if rec.OAStatusID, err = n.resolve(ctx, domain.LookupOAStatus, row[ColOAStatus]); err != nil {
		return nil, "", err
	}
	if rec.WorkTypeID, err = n.resolve(ctx, domain.LookupWorkType, row[ColWorkType]); err != nil {
		return nil, "", err
	}

	return rec, "", nil
}

func (n *Normalizer) resolve(ctx context.Context, category domain.LookupCategory, value string) (*int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	id, err := n.cache.Resolve(ctx, category, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (n *Normalizer) parseYear(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1000 || year > n.maxYear {
		return nil
	}
	return &year
}

// normalizeDOI lowercases, trims, and strips a doi.org prefix if present.
func normalizeDOI(s string) string {
	doi := strings.ToLower(strings.TrimSpace(s))
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	return doi
}

func isAbsoluteURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// normalizeLocationType collapses a location label into its stored code.
// Empty defaults to primary; any other unknown label rejects the row.
func normalizeLocationType(s string) (byte, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "primary", "p":
		return domain.LocationPrimary, true
	case "alternate", "a":
		return domain.LocationAlternate, true
	case "best_oa", "b":
		return domain.LocationBestOA, true
	}
	return 0, false
}

// extractOpenAlexID pulls the numeric work id out of whatever form the
// field arrived in. Unextractable values become null, never a reject.
func extractOpenAlexID(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	m := openAlexIDPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true
	}
	return false
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
