package domain

import "context"

// LookupCategory names one of the four normalized text dimensions. The
// value doubles as the backing table name.
type LookupCategory string

const (
	LookupLicense  LookupCategory = "license"
	LookupOAStatus LookupCategory = "oa_status"
	LookupHostType LookupCategory = "host_type"
	LookupWorkType LookupCategory = "work_type"
)

// LookupCategories lists every category, in preload order.
var LookupCategories = []LookupCategory{
	LookupLicense, LookupOAStatus, LookupHostType, LookupWorkType,
}

// Valid reports whether c names a known lookup table. Category values are
// interpolated into SQL, so repositories must reject anything else.
func (c LookupCategory) Valid() bool {
	switch c {
	case LookupLicense, LookupOAStatus, LookupHostType, LookupWorkType:
		return true
	}
	return false
}

// LookupRepository backs the importer's in-memory lookup cache.
type LookupRepository interface {
	// LoadAll returns every (value, id) pair in the category's table.
	LoadAll(ctx context.Context, category LookupCategory) (map[string]int, error)
	// GetOrCreate inserts the value if absent and returns its id either
	// way, in a single atomic statement.
	GetOrCreate(ctx context.Context, category LookupCategory, value string) (int, error)
}
