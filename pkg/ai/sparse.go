package ai

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"mailatlas-backend/internal/ingest/domain"
)

// SparseEncoder produces deterministic sparse vectors for lexical matching.
// Tokens are hashed into a fixed index space; weights are log-scaled term
// frequencies, L2-normalized. The same text always yields the same vector,
// which keeps sparse upserts idempotent.
type SparseEncoder struct{}

// NewSparseEncoder creates a sparse encoder.
func NewSparseEncoder() *SparseEncoder {
	return &SparseEncoder{}
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {}, "you": {},
	"this": {}, "have": {}, "i": {}, "we": {},
}

// Encode converts text into index/weight pairs. Empty or stopword-only text
// yields an empty vector.
func (e *SparseEncoder) Encode(text string) domain.SparseVector {
	counts := make(map[uint32]float64)
	for _, token := range tokenize(text) {
		if len(token) < 2 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		counts[hashToken(token)]++
	}
	if len(counts) == 0 {
		return domain.SparseVector{}
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	var norm float64
	for i, idx := range indices {
		w := 1 + math.Log(counts[idx])
		values[i] = float32(w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range values {
		values[i] = float32(float64(values[i]) / norm)
	}

	return domain.SparseVector{Indices: indices, Values: values}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(token))
	return h.Sum32()
}
