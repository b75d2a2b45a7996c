package stage

import (
	"regexp"
	"strings"
)

const (
	chunkMaxLen    = 500
	chunkOverlap   = 50
	chunkMinLen    = 50
	sentenceMinLen = 20
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Chunk splits content into sentence-aligned pieces of at most ~500 chars.
// Each new chunk starts with the last 50 chars of the previous one, and
// chunks of 50 chars or fewer are dropped.
func Chunk(content string) []string {
	var sentences []string
	for _, s := range sentenceSplit.Split(content, -1) {
		if len(strings.TrimSpace(s)) > sentenceMinLen {
			sentences = append(sentences, strings.TrimSpace(s))
		}
	}

	var (
		chunks  []string
		current string
	)
	for _, s := range sentences {
		candidate := current + s + ". "
		if len(candidate) > chunkMaxLen && len(current) > 0 {
			chunks = append(chunks, strings.TrimSpace(current))
			tail := current
			if len(tail) > chunkOverlap {
				tail = tail[len(tail)-chunkOverlap:]
			}
			current = tail + s + ". "
			continue
		}
		current = candidate
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	out := chunks[:0]
	for _, c := range chunks {
		if len(c) > chunkMinLen {
			out = append(out, c)
		}
	}
	return out
}
