package splitter

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// separators is the cascade tried in order when a section outgrows the
// chunk size: paragraph breaks, line breaks, CJK and Latin sentence
// enders, spaces, then individual characters.
var separators = []string{"\n\n", "\n", "。", "！", "？", ".", "!", "?", " ", ""}

// splitRecursive cuts text into pieces no larger than the chunk size using
// the first separator in seps that occurs in the text, recursing with the
// remaining separators on pieces that are still too large. Separators are
// preserved in the output.
func (s *Splitter) splitRecursive(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	rest := []string{}
	for i, sp := range seps {
		if sp == "" {
			sep = ""
			break
		}
		if strings.Contains(text, sp) {
			sep = sp
			rest = seps[i+1:]
			break
		}
	}

	var final []string
	var good []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if len([]rune(piece)) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergePieces(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitRecursive(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergePieces(good)...)
	}
	return final
}

// splitKeepSeparator splits text on sep, attaching each separator to the
// start of the piece that follows it. An empty separator splits into runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		runes := []rune(text)
		out := make([]string, 0, len(runes))
		for _, r := range runes {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		if sep+p != "" {
			out = append(out, sep+p)
		}
	}
	return out
}

// mergePieces packs already-small pieces into chunks near the chunk size,
// carrying the last pieces totalling at most the overlap into the next
// chunk.
func (s *Splitter) mergePieces(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, p := range pieces {
		n := len([]rune(p))
		if total+n > s.chunkSize && len(current) > 0 {
			if total > s.chunkSize {
				log.Warn().Int("size", total).Int("chunk_size", s.chunkSize).Msg("produced a chunk larger than requested")
			}
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= len([]rune(current[0]))
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
