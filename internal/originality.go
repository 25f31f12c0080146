package internal

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// OriginalityGuard rejects posts that are near copies of recent ones.
type OriginalityGuard struct {
	maxSimilarity float64
	dmp           *diffmatchpatch.DiffMatchPatch
}

func NewOriginalityGuard(maxSimilarity float64) *OriginalityGuard {
	return &OriginalityGuard{
		maxSimilarity: maxSimilarity,
		dmp:           diffmatchpatch.New(),
	}
}

// Similarity is 1 minus the edit distance normalised by the longer text.
func (g *OriginalityGuard) Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}

	diffs := g.dmp.DiffMain(a, b, false)
	dist := g.dmp.DiffLevenshtein(diffs)
	sim := 1 - float64(dist)/float64(longest)
	return min(max(sim, 0), 1)
}

// Check returns false and the offending similarity when candidate is too
// close to any of recent.
func (g *OriginalityGuard) Check(candidate string, recent []*Post) (bool, float64) {
	if g == nil || g.maxSimilarity <= 0 {
		return true, 0
	}
	var worst float64
	for _, p := range recent {
		if s := g.Similarity(candidate, p.Content); s > worst {
			worst = s
		}
	}
	return worst < g.maxSimilarity, worst
}
