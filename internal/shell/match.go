package shell

import (
	"strings"
	"unicode"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

// minSimilarity is how close typed text must be to an option text.
const minSimilarity = 0.8

// matchOption resolves typed option text, tolerating small typos.
// It fails when no option or more than one option is close enough.
func matchOption(input string, options []entities.Option) (string, bool) {
	typed := normalize(input)
	if typed == "" {
		return "", false
	}

	bestID, best, ties := "", 0.0, 0
	for _, o := range options {
		score := similarity(typed, normalize(o.Text))
		switch {
		case score > best:
			bestID, best, ties = o.ID, score, 1
		case score == best:
			ties++
		}
	}

	if best < minSimilarity || ties > 1 {
		return "", false
	}
	return bestID, true
}

// normalize lowercases s, drops punctuation and collapses whitespace.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(ra, rb))/float64(longest)
}

// editDistance is the Levenshtein distance, computed with two rows.
func editDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
