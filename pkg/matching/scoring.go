package matching

import (
	"strings"
)

// Scorer provides the string and set comparison algorithms used by Similarity
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// Levenshtein returns the edit distance ratio between two strings.
// Returns a similarity score between 0.0 and 1.0, measured in runes.
func (s *Scorer) Levenshtein(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshteinDistance(ra, rb))/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings in runes
func (s *Scorer) LevenshteinDistance(a, b string) int {
	return levenshteinDistance([]rune(a), []rune(b))
}

func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// two rows are enough
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(row[j-1]+1, prevRow[j]+1, prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// Jaccard returns |A ∩ B| / |A ∪ B| over the distinct values of a and b.
// Two empty sets are identical.
func (s *Scorer) Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// SequenceSimilarity compares two token sequences by their longest common subsequence:
// 2·LCS / (|a| + |b|). Order matters but insertions only cost their own length.
func (s *Scorer) SequenceSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	lcs := s.LCSLength(a, b)
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

// LCSLength returns the length of the longest common subsequence of two token sequences
func (s *Scorer) LCSLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				row[j] = prevRow[j-1] + 1
			} else {
				row[j] = max(row[j-1], prevRow[j])
			}
		}
		row, prevRow = prevRow, row
	}
	return prevRow[len(b)]
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
