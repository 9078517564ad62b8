// Package align matches expected practice words to recognized speech words.
//
// Alignment is a word-level edit distance where the substitution cost is
// derived from character-level similarity, so "mapel" lines up with
// "m'appelle" instead of being treated as an unrelated insertion. The
// backtracked path yields exactly one entry per expected word, in expected
// order; extra recognized words are consumed silently. This ordering is what
// lets feedback walk the expected sentence in reading order.
package align

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Substitution cost tiers, keyed by character-level similarity percent.
const (
	simCostFree = 80 // words this similar substitute for free
	simCostHalf = 50 // plausible mispronunciations cost half
)

// Pair maps one expected word to at most one recognized word.
type Pair struct {
	// Expected is the display-form expected word.
	Expected string
	// Matched is the recognized word aligned to Expected, "" when the
	// expected word found no counterpart.
	Matched string
	// MatchedIndex is the index into the recognized word sequence, -1 when
	// unmatched.
	MatchedIndex int
}

// Similarity returns the character-level similarity of two strings as a
// percentage. Equal strings always score 100, including two empty strings.
func Similarity(a, b string) int {
	if a == b {
		return 100
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 100
	}
	dist := matchr.Levenshtein(a, b)
	return int(float64(maxLen-dist)/float64(maxLen)*100 + 0.5)
}

func substCost(a, b string) float64 {
	switch sim := Similarity(a, b); {
	case sim >= simCostFree:
		return 0
	case sim >= simCostHalf:
		return 0.5
	default:
		return 1
	}
}

// Words aligns expected words against recognized words.
//
// expected carries the display forms shown to the learner; compare carries
// the matching comparison forms used for similarity (both must have equal
// length). The result has exactly len(expected) entries in expected order.
func Words(expected, compare, recognized []string) []Pair {
	m, n := len(expected), len(recognized)
	if len(compare) != m {
		panic("align: expected and compare word counts differ")
	}

	dp := make([][]float64, m+1)
	for i := range dp {
		dp[i] = make([]float64, n+1)
	}
	for i := 1; i <= m; i++ {
		dp[i][0] = float64(i)
	}
	for j := 1; j <= n; j++ {
		dp[0][j] = float64(j)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := substCost(compare[i-1], recognized[j-1])
			best := dp[i-1][j-1] + cost
			if d := dp[i-1][j] + 1; d < best {
				best = d
			}
			if d := dp[i][j-1] + 1; d < best {
				best = d
			}
			dp[i][j] = best
		}
	}

	// Backtrack from the corner; prepend-by-append then reverse is avoided
	// by filling the slice right to left.
	pairs := make([]Pair, m)
	idx := m - 1
	i, j := m, n
	for i > 0 || j > 0 {
		if i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+substCost(compare[i-1], recognized[j-1]) {
			pairs[idx] = Pair{Expected: expected[i-1], Matched: recognized[j-1], MatchedIndex: j - 1}
			idx--
			i--
			j--
			continue
		}
		if i > 0 && dp[i][j] == dp[i-1][j]+1 {
			pairs[idx] = Pair{Expected: expected[i-1], Matched: "", MatchedIndex: -1}
			idx--
			i--
			continue
		}
		// Insertion: recognized word with no expected counterpart.
		j--
	}
	return pairs
}
