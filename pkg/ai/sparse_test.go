package ai

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseEncoder_Deterministic(t *testing.T) {
	enc := NewSparseEncoder()
	a := enc.Encode("quarterly budget review meeting")
	b := enc.Encode("quarterly budget review meeting")
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.Indices)
}

func TestSparseEncoder_IndicesSortedAndNormalized(t *testing.T) {
	enc := NewSparseEncoder()
	v := enc.Encode("alpha beta gamma alpha alpha beta")

	require.Len(t, v.Indices, 3)
	assert.True(t, sort.SliceIsSorted(v.Indices, func(i, j int) bool {
		return v.Indices[i] < v.Indices[j]
	}))

	var norm float64
	for _, w := range v.Values {
		norm += float64(w) * float64(w)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestSparseEncoder_RepeatedTermsWeighHeavier(t *testing.T) {
	enc := NewSparseEncoder()
	v := enc.Encode("alpha alpha alpha beta")
	require.Len(t, v.Indices, 2)

	weights := map[uint32]float32{}
	for i, idx := range v.Indices {
		weights[idx] = v.Values[i]
	}
	assert.Greater(t, weights[hashToken("alpha")], weights[hashToken("beta")])
}

func TestSparseEncoder_FiltersNoise(t *testing.T) {
	enc := NewSparseEncoder()

	assert.Empty(t, enc.Encode("").Indices)
	assert.Empty(t, enc.Encode("the and of a").Indices, "stopword-only text yields no vector")
	assert.Empty(t, enc.Encode("x y z").Indices, "single-char tokens are dropped")

	v := enc.Encode("The Budget AND the budget")
	assert.Len(t, v.Indices, 1, "case folds, stopwords drop")
}
