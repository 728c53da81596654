// Package chunker splits document text into bounded, overlapping segments
// ready for embedding. Splitting is hierarchical: it prefers paragraph
// boundaries, then line breaks, then sentence ends, then words, and only
// falls back to hard character cuts when a single word exceeds the budget.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in bytes.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of trailing bytes repeated at the start
	// of the following chunk.
	DefaultOverlap = 150
)

// separators are tried coarsest-first. The empty separator means a hard cut.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Split breaks text into chunks of at most chunkSize bytes, each chunk after
// the first prefixed with the trailing overlap bytes of its predecessor.
// Empty or whitespace-only text yields nil. Text that already fits in one
// chunk is returned as-is. The size bound is soft: a piece with no usable
// boundary may slightly exceed it.
func Split(text string, chunkSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	// Each segment gets the overlap prepended, so segments are built against
	// the remaining budget to keep the final chunks within chunkSize.
	budget := chunkSize - overlap
	segments := split(text, budget, separators)

	chunks := make([]string, 0, len(segments))
	for i, seg := range segments {
		if i > 0 && overlap > 0 {
			seg = tail(chunks[i-1], overlap) + seg
		}
		chunks = append(chunks, seg)
	}
	return chunks
}

// split recursively partitions text into pieces of at most limit bytes,
// then merges adjacent small pieces back up to the limit.
func split(text string, limit int, seps []string) []string {
	if len(text) <= limit {
		return []string{text}
	}

	// Pick the coarsest separator that actually occurs in the text.
	sep := ""
	rest := seps
	for len(rest) > 0 {
		s := rest[0]
		rest = rest[1:]
		if s == "" || strings.Contains(text, s) {
			sep = s
			break
		}
	}
	if sep == "" {
		return hardSplit(text, limit)
	}

	var pieces []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if len(part) > limit {
			pieces = append(pieces, split(part, limit, rest)...)
		} else {
			pieces = append(pieces, part)
		}
	}
	return merge(pieces, limit)
}

// merge joins adjacent pieces as long as the result stays within limit.
func merge(pieces []string, limit int) []string {
	var out []string
	var b strings.Builder
	for _, p := range pieces {
		if b.Len() > 0 && b.Len()+len(p) > limit {
			out = append(out, b.String())
			b.Reset()
		}
		b.WriteString(p)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// hardSplit cuts text every limit bytes, never inside a multi-byte rune.
func hardSplit(text string, limit int) []string {
	if limit < utf8.UTFMax {
		limit = utf8.UTFMax
	}
	var out []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// tail returns the last n bytes of s, extended backwards to a rune boundary.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	return s[start:]
}
