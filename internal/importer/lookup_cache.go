package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/doi-atlas/backend/internal/domain"
)

// LookupCache maps (category, text value) pairs to their surrogate keys,
// backed by the lookup tables. Entries are never evicted during a run.
// Single writer per run; the cache is not safe for concurrent use.
type LookupCache struct {
	store  domain.LookupRepository
	values map[domain.LookupCategory]map[string]int
	hits   int64
	misses int64
}

// CacheStats is a snapshot of cache effectiveness counters.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

func NewLookupCache(store domain.LookupRepository) *LookupCache {
	values := make(map[domain.LookupCategory]map[string]int, len(domain.LookupCategories))
	for _, c := range domain.LookupCategories {
		values[c] = make(map[string]int)
	}
	return &LookupCache{store: store, values: values}
}

// Preload pulls every existing (value, id) pair for all categories into
// memory, so steady-state resolution is pure map lookups.
func (c *LookupCache) Preload(ctx context.Context) error {
	for _, category := range domain.LookupCategories {
		pairs, err := c.store.LoadAll(ctx, category)
		if err != nil {
			return fmt.Errorf("%w: preload %s: %v", domain.ErrLookup, category, err)
		}
		for value, id := range pairs {
			c.values[category][value] = id
		}
	}
	return nil
}

// Resolve returns the surrogate key for a category value, creating the row
// on first encounter. The text is trimmed; resolving an empty value is a
// caller bug and returns an error.
func (c *LookupCache) Resolve(ctx context.Context, category domain.LookupCategory, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("%w: empty value for category %s", domain.ErrLookup, category)
	}

	if id, ok := c.values[category][text]; ok {
		c.hits++
		return id, nil
	}

	c.misses++
	id, err := c.store.GetOrCreate(ctx, category, text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", domain.ErrLookup, category, text, err)
	}
	c.values[category][text] = id
	return id, nil
}

// Stats returns hit/miss counters and the total number of cached entries.
func (c *LookupCache) Stats() CacheStats {
	size := 0
	for _, m := range c.values {
		size += len(m)
	}
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: size}
}
