package splitter

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func init() {
	// Suppress logs during testing
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name         string
		chunkSize    int
		chunkOverlap int
		wantErr      string
	}{
		{name: "valid", chunkSize: 1000, chunkOverlap: 200},
		{name: "zero overlap", chunkSize: 100, chunkOverlap: 0},
		{name: "zero size", chunkSize: 0, chunkOverlap: 0, wantErr: "chunk size must be > 0"},
		{name: "negative size", chunkSize: -5, chunkOverlap: 0, wantErr: "chunk size must be > 0"},
		{name: "negative overlap", chunkSize: 100, chunkOverlap: -1, wantErr: "chunk overlap must be >= 0 and < chunk size"},
		{name: "overlap equals size", chunkSize: 100, chunkOverlap: 100, wantErr: "chunk overlap must be >= 0 and < chunk size"},
		{name: "overlap exceeds size", chunkSize: 100, chunkOverlap: 150, wantErr: "chunk overlap must be >= 0 and < chunk size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.chunkSize, tt.chunkOverlap)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New(%d, %d) returned unexpected error: %v", tt.chunkSize, tt.chunkOverlap, err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("New(%d, %d) error = %v, want %q", tt.chunkSize, tt.chunkOverlap, err, tt.wantErr)
			}
		})
	}
}

func mustSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := New(size, overlap)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", size, overlap, err)
	}
	return s
}

func TestSplit_TwoHeadings(t *testing.T) {
	s := mustSplitter(t, 1000, 200)

	doc := "# Intro\nWelcome text.\n\n## Details\nMore text here."
	chunks := s.Split(doc)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	first := chunks[0]
	if first.Text != "Welcome text." {
		t.Errorf("first chunk text = %q", first.Text)
	}
	if first.Metadata.TitlePath != "Intro" {
		t.Errorf("first title_path = %q, want %q", first.Metadata.TitlePath, "Intro")
	}
	if len(first.Metadata.ParentHeaders) != 0 {
		t.Errorf("first parent_headers = %v, want none", first.Metadata.ParentHeaders)
	}
	if first.Metadata.ParentSummary != "" {
		t.Errorf("first parent_summary = %q, want empty", first.Metadata.ParentSummary)
	}
	if first.Metadata.ChunkIndex != 0 {
		t.Errorf("first chunk_index = %d, want 0", first.Metadata.ChunkIndex)
	}
	if first.Metadata.Context != "Intro\nWelcome text." {
		t.Errorf("first context = %q", first.Metadata.Context)
	}

	second := chunks[1]
	if second.Metadata.TitlePath != "Intro > Details" {
		t.Errorf("second title_path = %q, want %q", second.Metadata.TitlePath, "Intro > Details")
	}
	if second.Metadata.ParentSummary != "Intro" {
		t.Errorf("second parent_summary = %q, want %q", second.Metadata.ParentSummary, "Intro")
	}
	if !reflect.DeepEqual(second.Metadata.ParentHeaders, []string{"Intro"}) {
		t.Errorf("second parent_headers = %v, want [Intro]", second.Metadata.ParentHeaders)
	}
	if second.Metadata.Header1 != "Intro" || second.Metadata.Header2 != "Details" {
		t.Errorf("second headers = %q / %q", second.Metadata.Header1, second.Metadata.Header2)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s := mustSplitter(t, 50, 10)

	doc := "# One\nSome text that is long enough to be split into several chunks. " +
		"It keeps going with more and more words until the size limit is passed.\n\n" +
		"## Two\nShort tail."
	a := s.Split(doc)
	b := s.Split(doc)

	if !reflect.DeepEqual(a, b) {
		t.Fatal("splitting the same document twice produced different chunks")
	}
}

func TestSplit_TitlePathInvariant(t *testing.T) {
	s := mustSplitter(t, 1000, 0)

	doc := "# A\ntop\n## B\nmid\n### C\ndeep\n#### D\ndeeper"
	for _, ch := range s.Split(doc) {
		var parts []string
		for lvl := 1; lvl <= 6; lvl++ {
			if h := ch.Metadata.Header(lvl); h != "" {
				parts = append(parts, h)
			}
		}
		want := strings.Join(parts, " > ")
		if ch.Metadata.TitlePath != want {
			t.Errorf("title_path = %q, want join of headers %q", ch.Metadata.TitlePath, want)
		}
		// Own heading must not appear among the parents.
		for _, p := range ch.Metadata.ParentHeaders {
			if p == parts[len(parts)-1] {
				t.Errorf("parent_headers %v contains own heading %q", ch.Metadata.ParentHeaders, p)
			}
		}
	}
}

func TestSplit_HeadingReset(t *testing.T) {
	s := mustSplitter(t, 1000, 0)

	doc := "# A\nunder a\n## B\nunder b\n# C\nunder c\n## D\nunder d"
	chunks := s.Split(doc)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}

	last := chunks[3]
	if last.Metadata.TitlePath != "C > D" {
		t.Errorf("title_path = %q, want %q", last.Metadata.TitlePath, "C > D")
	}
	for _, p := range last.Metadata.ParentHeaders {
		if p == "B" {
			t.Errorf("stale heading B leaked into parent_headers %v", last.Metadata.ParentHeaders)
		}
	}
	if !reflect.DeepEqual(last.Metadata.ParentHeaders, []string{"C"}) {
		t.Errorf("parent_headers = %v, want [C]", last.Metadata.ParentHeaders)
	}
}

func TestSplit_NoHeadings(t *testing.T) {
	s := mustSplitter(t, 1000, 0)

	chunks := s.Split("just some plain text without any headings")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	ch := chunks[0]
	if ch.Metadata.TitlePath != "" {
		t.Errorf("title_path = %q, want empty", ch.Metadata.TitlePath)
	}
	if ch.Text != "just some plain text without any headings" {
		t.Errorf("text = %q", ch.Text)
	}
	if ch.Metadata.ChunkIndex != 0 {
		t.Errorf("chunk_index = %d, want 0", ch.Metadata.ChunkIndex)
	}
}

func TestSplit_EmptyDocument(t *testing.T) {
	s := mustSplitter(t, 1000, 0)
	if got := s.Split(""); len(got) != 0 {
		t.Fatalf("expected no chunks for empty document, got %d", len(got))
	}
	if got := s.Split("   \n\n  "); len(got) != 0 {
		t.Fatalf("expected no chunks for blank document, got %d", len(got))
	}
}

func TestSplit_StripsHTML(t *testing.T) {
	s := mustSplitter(t, 1000, 0)

	doc := "# Title\nHello <b>world</b> and <a href=\"x\">a link</a>   with    spaces"
	chunks := s.Split(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	want := "Hello world and a link with spaces"
	if chunks[0].Text != want {
		t.Errorf("text = %q, want %q", chunks[0].Text, want)
	}
}

func TestSplit_HeadingInsideFence(t *testing.T) {
	s := mustSplitter(t, 1000, 0)

	doc := "# Real\nbefore\n```\n# not a heading\n```\nafter"
	chunks := s.Split(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata.TitlePath != "Real" {
		t.Errorf("title_path = %q, want %q", chunks[0].Metadata.TitlePath, "Real")
	}
	if !strings.Contains(chunks[0].Text, "not a heading") {
		t.Errorf("fenced content missing from text %q", chunks[0].Text)
	}
}

func TestSplitFile_Provenance(t *testing.T) {
	s := mustSplitter(t, 1000, 200)

	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	content := "# Intro\nWelcome text.\n\n## Details\nMore text here."
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	chunks, err := s.SplitFile(path)
	if err != nil {
		t.Fatalf("SplitFile: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	for _, ch := range chunks {
		if ch.Metadata.Source != path {
			t.Errorf("source = %q, want %q", ch.Metadata.Source, path)
		}
		if ch.Metadata.FileName != "guide.md" {
			t.Errorf("file_name = %q, want guide.md", ch.Metadata.FileName)
		}
	}
	if chunks[0].Metadata.FullContext != "guide > Intro" {
		t.Errorf("full_context = %q, want %q", chunks[0].Metadata.FullContext, "guide > Intro")
	}
	if chunks[1].Metadata.FullContext != "guide > Intro > Details" {
		t.Errorf("full_context = %q, want %q", chunks[1].Metadata.FullContext, "guide > Intro > Details")
	}
}

func TestSplitFile_TitleAlreadyHasFileBase(t *testing.T) {
	s := mustSplitter(t, 1000, 200)

	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	if err := os.WriteFile(path, []byte("# guide\nbody text"), 0o644); err != nil {
		t.Fatal(err)
	}

	chunks, err := s.SplitFile(path)
	if err != nil {
		t.Fatalf("SplitFile: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata.FullContext != "guide" {
		t.Errorf("full_context = %q, want %q (no file prefix added)", chunks[0].Metadata.FullContext, "guide")
	}
}

func TestSplitFile_Missing(t *testing.T) {
	s := mustSplitter(t, 1000, 200)
	if _, err := s.SplitFile(filepath.Join(t.TempDir(), "nope.md")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
