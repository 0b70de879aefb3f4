package resolver

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// DefaultMinScore discards weak fuzzy matches.
const DefaultMinScore = 0.35

// Scorer rates how well a normalized target matches a normalized query,
// from 0 (unrelated) to 1 (every query word found verbatim).
type Scorer interface {
	Score(query, target string) float64
}

// wordSource adapts a word list to fuzzy.Source.
type wordSource []string

func (w wordSource) String(i int) string { return w[i] }
func (w wordSource) Len() int            { return len(w) }

// FuzzyScorer matches each query word as a subsequence of some target word
// and averages per-word coverage. Contiguous matches count fully,
// scattered ones at a discount.
type FuzzyScorer struct{}

func (FuzzyScorer) Score(query, target string) float64 {
	qWords := strings.Fields(query)
	tWords := wordSource(strings.Fields(target))
	if len(qWords) == 0 || len(tWords) == 0 {
		return 0
	}

	var total float64
	for _, q := range qWords {
		best := 0.0
		for _, m := range fuzzy.FindFrom(q, tWords) {
			word := tWords[m.Index]
			cov := float64(len([]rune(q))) / float64(len([]rune(word)))
			if !contiguous(m.MatchedIndexes) {
				cov *= 0.6
			}
			if cov > best {
				best = cov
			}
		}
		total += best
	}
	return total / float64(len(qWords))
}

func contiguous(idx []int) bool {
	for i := 1; i < len(idx); i++ {
		if idx[i] != idx[i-1]+1 {
			return false
		}
	}
	return true
}

// PositionScorer is the fallback heuristic: substring presence, weighted by
// how early in the target it appears.
type PositionScorer struct{}

func (PositionScorer) Score(query, target string) float64 {
	if query == "" || target == "" {
		return 0
	}
	if pos := strings.Index(target, query); pos >= 0 {
		return 1 - 0.5*float64(pos)/float64(len(target))
	}

	words := strings.Fields(query)
	var total float64
	for _, w := range words {
		if pos := strings.Index(target, w); pos >= 0 {
			total += 1 - 0.5*float64(pos)/float64(len(target))
		}
	}
	return total / float64(len(words))
}
