package csvsource

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/doi-atlas/backend/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    rune
	}{
		{
			name:    "comma",
			content: "doi,url\n10.1/a,https://x.org/a\n10.1/b,https://x.org/b\n",
			want:    ',',
		},
		{
			name:    "tab",
			content: "doi\turl\n10.1/a\thttps://x.org/a\n",
			want:    '\t',
		},
		{
			name:    "semicolon",
			content: "doi;url\n10.1/a;https://x.org/a\n",
			want:    ';',
		},
		{
			name:    "pipe",
			content: "doi|url\n10.1/a|https://x.org/a\n",
			want:    '|',
		},
		{
			name: "comma wins over semicolons inside values",
			content: "doi,url,title\n" +
				"10.1/a,https://x.org/a,alpha; beta\n" +
				"10.1/b,https://x.org/b,plain\n",
			want: ',',
		},
		{
			name:    "quoted lines do not break consistency",
			content: "doi,url,title\n\"10.1/a\",\"https://x.org/a\",\"one, two, three\"\n10.1/b,https://x.org/b,plain\n",
			want:    ',',
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(writeFile(t, "in.csv", tt.content), 100)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if src.Delimiter() != tt.want {
				t.Errorf("delimiter = %q, want %q", src.Delimiter(), tt.want)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.csv"), 100)
		if !errors.Is(err, domain.ErrFileNotFound) {
			t.Errorf("err = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := Open(writeFile(t, "empty.csv", ""), 100)
		if !errors.Is(err, domain.ErrFormat) {
			t.Errorf("err = %v, want ErrFormat", err)
		}
	})

	t.Run("whitespace only", func(t *testing.T) {
		_, err := Open(writeFile(t, "blank.csv", "\n  \n"), 100)
		if !errors.Is(err, domain.ErrFormat) {
			t.Errorf("err = %v, want ErrFormat", err)
		}
	})

	t.Run("bad batch size", func(t *testing.T) {
		_, err := Open(writeFile(t, "in.csv", "doi,url\n"), 0)
		if !errors.Is(err, domain.ErrConfig) {
			t.Errorf("err = %v, want ErrConfig", err)
		}
	})
}

func TestHeaderAndColumns(t *testing.T) {
	src, err := Open(writeFile(t, "in.csv", " doi , url ,title\n10.1/a,https://x.org/a,T\n"), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := []string{"doi", "url", "title"}
	got := src.Columns()
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !src.HasColumn("doi") || src.HasColumn("missing") {
		t.Error("HasColumn misreported header membership")
	}
}

func TestTotalRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int64
	}{
		{"trailing newline", "doi,url\na,b\nc,d\n", 2},
		{"no trailing newline", "doi,url\na,b\nc,d", 2},
		{"header only", "doi,url\n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(writeFile(t, "in.csv", tt.content), 10)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			got, err := src.TotalRows()
			if err != nil {
				t.Fatalf("TotalRows: %v", err)
			}
			if got != tt.want {
				t.Errorf("TotalRows = %d, want %d", got, tt.want)
			}
			// Cached second call must agree.
			again, _ := src.TotalRows()
			if again != got {
				t.Errorf("cached TotalRows = %d, want %d", again, got)
			}
		})
	}
}

func TestBatching(t *testing.T) {
	content := "doi,url\n"
	for _, r := range []string{"a", "b", "c", "d", "e"} {
		content += "10.1/" + r + ",https://x.org/" + r + "\n"
	}
	src, err := Open(writeFile(t, "in.csv", content), 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := src.Batches(0)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	defer it.Close()

	var sizes []int
	var dois []string
	for {
		batch, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		sizes = append(sizes, len(batch))
		for _, row := range batch {
			dois = append(dois, row["doi"])
		}
	}

	wantSizes := []int{2, 2, 1}
	if len(sizes) != len(wantSizes) {
		t.Fatalf("batch sizes = %v, want %v", sizes, wantSizes)
	}
	for i := range wantSizes {
		if sizes[i] != wantSizes[i] {
			t.Errorf("batch %d size = %d, want %d", i, sizes[i], wantSizes[i])
		}
	}
	if dois[0] != "10.1/a" || dois[4] != "10.1/e" {
		t.Errorf("rows out of order: %v", dois)
	}

	// Iterator stays exhausted.
	if _, err := it.Next(); err != io.EOF {
		t.Errorf("Next after EOF = %v, want io.EOF", err)
	}
}

func TestBatchesSkipRows(t *testing.T) {
	content := "doi,url\n"
	for _, r := range []string{"a", "b", "c", "d"} {
		content += "10.1/" + r + ",https://x.org/" + r + "\n"
	}
	src, err := Open(writeFile(t, "in.csv", content), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := src.Batches(2)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	defer it.Close()

	batch, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch) != 2 || batch[0]["doi"] != "10.1/c" {
		t.Errorf("after skipping 2 rows, first row = %v", batch[0])
	}

	// Skipping past the end yields a clean EOF, not an error.
	it2, err := src.Batches(100)
	if err != nil {
		t.Fatalf("Batches past end: %v", err)
	}
	defer it2.Close()
	if _, err := it2.Next(); err != io.EOF {
		t.Errorf("Next past end = %v, want io.EOF", err)
	}
}

func TestRaggedRows(t *testing.T) {
	content := "doi,url,title\n" +
		"10.1/a,https://x.org/a\n" + // short row, title padded empty
		"10.1/b,https://x.org/b,T,extra\n" // long row, extra dropped
	src, err := Open(writeFile(t, "in.csv", content), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := src.Batches(0)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	defer it.Close()

	batch, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("got %d rows, want 2", len(batch))
	}
	if batch[0]["title"] != "" {
		t.Errorf("short row title = %q, want empty", batch[0]["title"])
	}
	if batch[1]["title"] != "T" {
		t.Errorf("long row title = %q, want T", batch[1]["title"])
	}
}

func TestMalformedRowsCountedNotFatal(t *testing.T) {
	// The middle row has a bare quote mid-field, which fails CSV framing.
	content := "doi,url\n" +
		"10.1/a,https://x.org/a\n" +
		"10.1/b\"ad,https://x.org/b\n" +
		"10.1/c,https://x.org/c\n"
	src, err := Open(writeFile(t, "in.csv", content), 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	it, err := src.Batches(0)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	defer it.Close()

	var rows int
	for {
		batch, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows += len(batch)
	}
	if got := rows + int(it.Rejected()); got != 3 {
		t.Errorf("rows %d + rejected %d = %d, want 3 records consumed", rows, it.Rejected(), got)
	}
}
