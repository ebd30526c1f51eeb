package ai

import (
	"context"
	"strings"
)

// Chunking defaults for map-reduce summarization.
const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 400
)

// MapReduceSummarizer summarizes text of arbitrary length. Short text goes
// straight to the provider; long text is chunked with overlap, each chunk is
// summarized, duplicate chunk summaries are dropped, and the concatenation
// is reduced again until it fits under the threshold.
type MapReduceSummarizer struct {
	provider  SummarizerService
	threshold int
	chunkSize int
	overlap   int
}

// NewMapReduceSummarizer wraps a provider with chunked summarization above
// threshold characters.
func NewMapReduceSummarizer(provider SummarizerService, threshold int) *MapReduceSummarizer {
	if threshold <= 0 {
		threshold = 6000
	}
	return &MapReduceSummarizer{
		provider:  provider,
		threshold: threshold,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
}

// Summarize produces one summary for text of any length.
func (m *MapReduceSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	// Bounded number of reduce rounds; each round shrinks the input.
	for round := 0; round < 5; round++ {
		if len(text) <= m.threshold {
			return m.provider.Summarize(ctx, text)
		}

		chunks := Chunk(text, m.chunkSize, m.overlap)
		summaries := make([]string, 0, len(chunks))
		seen := make(map[string]struct{})
		for _, chunk := range chunks {
			s, err := m.provider.Summarize(ctx, chunk)
			if err != nil {
				return "", err
			}
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			// Overlapping chunks can produce identical summaries.
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			summaries = append(summaries, s)
		}
		text = strings.Join(summaries, "\n")
	}
	return m.provider.Summarize(ctx, text)
}

// Chunk splits text into fixed-size rune windows with the given overlap.
// Boundaries fall on rune starts so multi-byte characters are never split.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 4
	}

	runes := []rune(text)
	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
