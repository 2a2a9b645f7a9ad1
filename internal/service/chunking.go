package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls document splitting for ingestion.
type ChunkConfig struct {
	MaxChars int
	MinChars int
	Overlap  int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 512,
		MinChars: 128,
		Overlap:  64,
	}
}

// SplitDocument splits raw document text into retrievable chunks. Blank
// lines delimit candidate chunks; candidates over the size limit are split
// again at sentence or word boundaries with a fixed overlap between
// adjacent pieces so context is not lost at the cut.
func SplitDocument(text string, cfg ChunkConfig) []string {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}

	var chunks []string
	for _, para := range splitParagraphs(text) {
		runes := []rune(para)
		if len(runes) <= cfg.MaxChars {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, splitOversized(runes, cfg)...)
	}
	return chunks
}

// splitParagraphs cuts text on blank-line boundaries, trimming whitespace
// and dropping empty results.
func splitParagraphs(text string) []string {
	var paras []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		para := strings.TrimSpace(strings.Join(current, "\n"))
		if para != "" {
			paras = append(paras, para)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return paras
}

// splitOversized windows over one oversized paragraph, cutting at the best
// available natural boundary (sentence end, then word break, then a hard
// cut) and starting each subsequent piece cfg.Overlap runes before the
// previous cut.
func splitOversized(runes []rune, cfg ChunkConfig) []string {
	chunks := make([]string, 0, 4)
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			end = findCut(runes, end, minCut)
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

// findCut scans backward from end toward minCut for a sentence terminator,
// then for any whitespace, falling back to the hard limit.
func findCut(runes []rune, end, minCut int) int {
	for i := end; i > minCut; i-- {
		if isSentenceEnd(runes, i-1) {
			return i
		}
	}
	for i := end; i > minCut; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
	default:
		return false
	}
	return i+1 >= len(runes) || unicode.IsSpace(runes[i+1])
}
