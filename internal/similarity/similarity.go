// Package similarity implements the keyword-overlap heuristic used to match
// newly asked questions against mined channel history. It is deliberately
// lenient: short chat messages rephrase the same question in many ways, so
// partial and near-identical keyword matches count alongside exact ones.
package similarity

import (
	"strings"
	"unicode"
)

// editDistanceSkip is returned for token pairs too long to be worth
// comparing; it always fails the near-identical test.
const editDistanceSkip = 1 << 20

const maxEditDistanceLen = 10

// partial matches accept tokens within this edit distance of each other.
const partialDistance = 2

func isWordRune(r rune) bool {
	if r >= '가' && r <= '힣' {
		return true
	}
	return (r >= 'a' && r <= 'z') || unicode.IsDigit(r)
}

// Tokenize lowercases the text, strips everything but word characters and
// whitespace, and drops single-rune tokens.
func Tokenize(text string) []string {
	lowered := strings.ToLower(text)
	mapped := strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, lowered)

	var tokens []string
	for _, field := range strings.Fields(mapped) {
		if len([]rune(field)) > 1 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// EditDistance is the Levenshtein distance over runes. Tokens longer than
// ten runes are never near-identical in practice, so the quadratic table is
// skipped for them.
func EditDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) > maxEditDistanceLen || len(rb) > maxEditDistanceLen {
		return editDistanceSkip
	}

	dp := make([][]int, len(ra)+1)
	for i := range dp {
		dp[i] = make([]int, len(rb)+1)
		dp[i][0] = i
	}
	for j := 0; j <= len(rb); j++ {
		dp[0][j] = j
	}

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			dp[i][j] = minInt(
				dp[i-1][j]+1,
				minInt(dp[i][j-1]+1, dp[i-1][j-1]+cost),
			)
		}
	}

	return dp[len(ra)][len(rb)]
}

// Score rates how similar two texts are, in [0,1]. Exact keyword overlap
// counts double; containment or a small edit distance counts once. The sum
// is normalized against the richer side's vocabulary.
func Score(text1, text2 string) float64 {
	keywords1 := unique(Tokenize(text1))
	keywords2 := unique(Tokenize(text2))

	if len(keywords1) == 0 || len(keywords2) == 0 {
		return 0
	}

	set2 := make(map[string]bool, len(keywords2))
	for _, k := range keywords2 {
		set2[k] = true
	}

	exactMatches := 0
	for _, k := range keywords1 {
		if set2[k] {
			exactMatches++
		}
	}

	partialMatches := 0
	for _, k1 := range keywords1 {
		for _, k2 := range keywords2 {
			if strings.Contains(k1, k2) || strings.Contains(k2, k1) || EditDistance(k1, k2) <= partialDistance {
				partialMatches++
				break
			}
		}
	}

	maxKeywords := len(keywords1)
	if len(keywords2) > maxKeywords {
		maxKeywords = len(keywords2)
	}

	score := (float64(exactMatches)*2 + float64(partialMatches)) / (float64(maxKeywords) * 2)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func unique(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
