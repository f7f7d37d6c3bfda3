package importer

import "time"

// Stats summarizes one importer invocation. It is returned to the caller
// and not persisted beyond the run record.
type Stats struct {
	RunID   string
	Resumed bool

	TotalRows int64 // data rows in the file
	RowsRead  int64 // rows consumed by this invocation
	Accepted  int64
	Rejected  int64
	Reasons   map[string]int64

	Inserted int64
	Updated  int64
	Batches  int

	CacheHits   int64
	CacheMisses int64
	CacheSize   int

	Elapsed       time.Duration
	RowsPerSecond float64
}

func newStats(runID string, totalRows int64, resumed bool) *Stats {
	return &Stats{
		RunID:     runID,
		TotalRows: totalRows,
		Resumed:   resumed,
		Reasons:   make(map[string]int64),
	}
}

func (s *Stats) reject(reason string) {
	s.Rejected++
	s.Reasons[reason]++
}

func (s *Stats) finish(cache CacheStats, elapsed time.Duration) {
	s.CacheHits = cache.Hits
	s.CacheMisses = cache.Misses
	s.CacheSize = cache.Size
	s.Elapsed = elapsed
	if elapsed > 0 {
		s.RowsPerSecond = float64(s.RowsRead) / elapsed.Seconds()
	}
}
