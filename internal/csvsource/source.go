// Package csvsource streams a delimited text file as fixed-size batches of
// header-keyed rows, using constant memory regardless of file size.
package csvsource

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/doi-atlas/backend/internal/domain"
)

// Row is one data row keyed by header column name.
type Row map[string]string

// delimiter candidates, in order of likelihood.
var delimiters = []rune{',', '\t', ';', '|'}

const sampleSize = 8192

// Source describes an openable CSV file. It is cheap to construct and
// restartable: every call to Batches opens a fresh read of the file.
type Source struct {
	path      string
	batchSize int
	delimiter rune
	columns   []string

	totalRows   int64
	rowsCounted bool
}

// Open validates the file, detects the delimiter and reads the header.
func Open(path string, batchSize int) (*Source, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrConfig, batchSize)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sample := make([]byte, sampleSize)
	n, err := f.Read(sample)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sample = sample[:n]
	if len(bytes.TrimSpace(sample)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrFormat, path)
	}

	delim, err := detectDelimiter(sample)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}
	r := newReader(f, delim)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read header of %s: %v", domain.ErrFormat, path, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	return &Source{path: path, batchSize: batchSize, delimiter: delim, columns: columns}, nil
}

// Path returns the source file path.
func (s *Source) Path() string { return s.path }

// Columns returns the trimmed header row.
func (s *Source) Columns() []string { return s.columns }

// Delimiter returns the detected field delimiter.
func (s *Source) Delimiter() rune { return s.delimiter }

// HasColumn reports whether the header contains the named column.
func (s *Source) HasColumn(name string) bool {
	for _, c := range s.columns {
		if c == name {
			return true
		}
	}
	return false
}

// TotalRows counts data rows (lines minus the header) with a raw line scan,
// not a CSV parse. The result is cached; callers such as the progress
// tracker reuse it instead of re-scanning.
//
// The count is physical lines, so a quoted field containing embedded
// newlines overcounts by one per embedded newline. Treat the figure as an
// upper-bound estimate for progress display; run completion reconciles the
// stored total against the records actually consumed.
func (s *Source) TotalRows() (int64, error) {
	if s.rowsCounted {
		return s.totalRows, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	var lines int64
	br := bufio.NewReaderSize(f, 1<<20)
	lastByte := byte('\n')
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			lastByte = chunk[len(chunk)-1]
			if lastByte == '\n' {
				lines++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil && err != bufio.ErrBufferFull {
			return 0, fmt.Errorf("count lines in %s: %w", s.path, err)
		}
	}
	if lastByte != '\n' {
		lines++ // final line without trailing newline
	}

	s.totalRows = lines - 1 // header
	if s.totalRows < 0 {
		s.totalRows = 0
	}
	s.rowsCounted = true
	return s.totalRows, nil
}

// Batches opens a fresh iteration over the file, skipping the first
// skipRows data rows. Skipped rows are read to keep file position correct
// but are never materialized as Rows.
func (s *Source) Batches(skipRows int64) (*Iterator, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrFileNotFound, s.path)
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}

	r := newReader(f, s.delimiter)
	if _, err := r.Read(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: cannot read header of %s: %v", domain.ErrFormat, s.path, err)
	}

	it := &Iterator{src: s, f: f, r: r}
	for skipped := int64(0); skipped < skipRows; skipped++ {
		if _, err := r.Read(); err != nil {
			if err == io.EOF {
				break
			}
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				f.Close()
				return nil, fmt.Errorf("%w: skipping to row %d in %s: %v", domain.ErrFormat, skipRows, s.path, err)
			}
			// A malformed skipped row was already counted as rejected by
			// the run that produced the checkpoint.
		}
	}
	return it, nil
}

// Iterator yields batches of rows in file order.
type Iterator struct {
	src      *Source
	f        *os.File
	r        *csv.Reader
	rejected int64
	done     bool
}

// Next returns the next batch, or io.EOF when the file is exhausted. The
// final batch may be short. Rows that fail CSV framing are counted via
// Rejected and skipped rather than aborting the iteration.
func (it *Iterator) Next() ([]Row, error) {
	if it.done {
		return nil, io.EOF
	}

	batch := make([]Row, 0, it.src.batchSize)
	for len(batch) < it.src.batchSize {
		record, err := it.r.Read()
		if err == io.EOF {
			it.done = true
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				it.rejected++
				continue
			}
			it.done = true
			return nil, fmt.Errorf("%w: %v", domain.ErrFormat, err)
		}
		batch = append(batch, it.toRow(record))
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// Rejected returns how many rows failed CSV framing so far.
func (it *Iterator) Rejected() int64 { return it.rejected }

// Close releases the underlying file.
func (it *Iterator) Close() error { return it.f.Close() }

func (it *Iterator) toRow(record []string) Row {
	row := make(Row, len(it.src.columns))
	for i, col := range it.src.columns {
		if i < len(record) {
			row[col] = record[i]
		} else {
			row[col] = ""
		}
	}
	return row
}

func newReader(f *os.File, delim rune) *csv.Reader {
	r := csv.NewReader(bufio.NewReaderSize(f, 1<<20))
	r.Comma = delim
	r.FieldsPerRecord = -1 // ragged rows are padded or truncated per header
	// Strict quoting: rows with broken quoting surface as parse errors,
	// which the iterator counts as rejected instead of aborting.
	return r
}

// detectDelimiter picks the candidate whose per-line count is consistent
// across the sampled lines. Ties go to the earlier candidate; if no
// candidate is consistent, the highest total count wins.
func detectDelimiter(sample []byte) (rune, error) {
	lines := strings.Split(string(sample), "\n")
	// Drop the trailing partial line unless it is the only one.
	if len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	var sampled []string
	for _, l := range lines {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			sampled = append(sampled, l)
		}
		if len(sampled) == 10 {
			break
		}
	}
	if len(sampled) == 0 {
		return 0, fmt.Errorf("%w: no content to sample", domain.ErrFormat)
	}

	bestConsistent := rune(0)
	bestConsistentCount := 0
	for _, d := range delimiters {
		first := strings.Count(sampled[0], string(d))
		if first == 0 {
			continue
		}
		consistent := true
		for _, l := range sampled[1:] {
			// Quoted fields can shift counts; exact match is only required
			// on unquoted lines.
			if strings.ContainsRune(l, '"') {
				continue
			}
			if strings.Count(l, string(d)) != first {
				consistent = false
				break
			}
		}
		if consistent && first > bestConsistentCount {
			bestConsistent = d
			bestConsistentCount = first
		}
	}
	if bestConsistent != 0 {
		return bestConsistent, nil
	}

	// Fallback: highest total occurrence.
	best := rune(0)
	bestTotal := 0
	for _, d := range delimiters {
		total := strings.Count(strings.Join(sampled, "\n"), string(d))
		if total > bestTotal {
			best = d
			bestTotal = total
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("%w: could not detect a delimiter", domain.ErrFormat)
	}
	return best, nil
}
