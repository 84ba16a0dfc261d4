package resolve

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Similarity scores two strings on a 0-1 scale. The fuzzy tier is pluggable
// so the scoring algorithm can be swapped or tested in isolation.
type Similarity interface {
	Score(a, b string) float64
}

// LevenshteinSimilarity is the default metric: normalized edit distance.
type LevenshteinSimilarity struct {
	metric *metrics.Levenshtein
}

func NewLevenshteinSimilarity() *LevenshteinSimilarity {
	m := metrics.NewLevenshtein()
	m.CaseSensitive = false
	return &LevenshteinSimilarity{metric: m}
}

func (s *LevenshteinSimilarity) Score(a, b string) float64 {
	return strutil.Similarity(a, b, s.metric)
}
