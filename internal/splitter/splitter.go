package splitter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lmarsden/marksearch/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts Markdown documents into chunks that carry their heading
// context. Sections larger than ChunkSize are sub-split by a recursive
// separator cascade with ChunkOverlap characters shared across boundaries.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// New validates the sizing parameters and returns a Splitter.
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be > 0")
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, errors.New("chunk overlap must be >= 0 and < chunk size")
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// section is a run of text under one heading, together with the heading
// chain active at that point in the document.
type section struct {
	level int // 0 for text before the first heading
	meta  models.ChunkMeta
	body  string
}

// headerSections splits a document on ATX headings. Headings inside code
// fences do not split. Each section's metadata holds the heading text active
// at every level at that point; a heading at level L clears levels deeper
// than L so stale titles never leak into later sections.
func headerSections(text string) []section {
	var (
		sections []section
		active   [7]string
		level    int
		body     []string
		inFence  bool
		started  bool
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if !started && content == "" {
			return
		}
		sec := section{level: level, body: content}
		for i := 1; i <= level; i++ {
			if active[i] != "" {
				sec.meta.SetHeader(i, active[i])
			}
		}
		sections = append(sections, sec)
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			body = append(body, line)
			continue
		}
		if !inFence {
			if m := headingRe.FindStringSubmatch(trimmed); m != nil {
				flush()
				started = true
				level = len(m[1])
				active[level] = strings.TrimSpace(m[2])
				for i := level + 1; i <= 6; i++ {
					active[i] = ""
				}
				continue
			}
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// Split cuts a Markdown document into chunks. The pass is deterministic and
// single-shot; callers needing a re-split call again.
func (s *Splitter) Split(text string) []models.Chunk {
	var chunks []models.Chunk
	for _, sec := range headerSections(text) {
		clean := stripTags(sec.body)
		if clean == "" {
			continue
		}

		meta := sec.meta
		meta.TitlePath = titlePath(&meta)
		meta.ParentHeaders = parentHeaders(&meta, sec.level)
		meta.FullContext = meta.TitlePath
		if len(meta.ParentHeaders) > 0 {
			meta.ParentSummary = strings.Join(meta.ParentHeaders, " > ")
		}

		if len([]rune(clean)) > s.chunkSize {
			for i, sub := range s.splitRecursive(clean, separators) {
				m := meta
				m.ParentHeaders = append([]string(nil), meta.ParentHeaders...)
				m.ChunkIndex = i
				m.Context = renderContext(&m, sub)
				chunks = append(chunks, models.Chunk{Text: sub, Metadata: m})
			}
		} else {
			meta.ChunkIndex = 0
			meta.Context = renderContext(&meta, clean)
			chunks = append(chunks, models.Chunk{Text: clean, Metadata: meta})
		}
	}
	return chunks
}

// SplitFile reads and splits a Markdown file, then stamps file provenance
// onto every chunk. The file's base name becomes the top of full_context
// when the title path does not already start with it.
func (s *Splitter) SplitFile(path string) ([]models.Chunk, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown file: %w", err)
	}

	fileName := filepath.Base(path)
	fileBase := strings.TrimSuffix(fileName, filepath.Ext(fileName))

	chunks := s.Split(string(b))
	for i := range chunks {
		m := &chunks[i].Metadata
		m.Source = path
		m.FileName = fileName
		if m.TitlePath != "" && !strings.HasPrefix(m.TitlePath, fileBase) {
			m.FullContext = fileBase + " > " + m.TitlePath
		}
	}

	log.Debug().Str("path", path).Int("chunks", len(chunks)).Msg("split markdown file")
	return chunks, nil
}

// titlePath joins the cleaned heading texts present on the section, in
// level order 1 through 6.
func titlePath(m *models.ChunkMeta) string {
	var parts []string
	for i := 1; i <= 6; i++ {
		if h := m.Header(i); h != "" {
			parts = append(parts, stripTags(h))
		}
	}
	return strings.Join(parts, " > ")
}

// parentHeaders returns the cleaned ancestor titles strictly above the
// section's own level.
func parentHeaders(m *models.ChunkMeta, level int) []string {
	parents := []string{}
	for i := 1; i < level; i++ {
		if h := m.Header(i); h != "" {
			parents = append(parents, stripTags(h))
		}
	}
	return parents
}

func renderContext(m *models.ChunkMeta, text string) string {
	if m.ParentSummary != "" {
		return m.ParentSummary + " > " + m.TitlePath + "\n" + text
	}
	return m.TitlePath + "\n" + text
}
