package fuzzy

import "strings"

// Typo-tolerant matching for thread search. Matching is case-insensitive and
// word-based: a query hits when it is contained in a field, prefixes a word,
// or sits within the edit-distance threshold of one.

// LevenshteinDistance is the minimum number of single-rune edits turning s1
// into s2.
func LevenshteinDistance(s1, s2 string) int {
	s1 = normalize(s1)
	s2 = normalize(s2)
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	r1 := []rune(s1)
	r2 := []rune(s2)

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// Threshold picks an edit-distance tolerance scaled to the query length.
func Threshold(query string) int {
	switch {
	case len(query) <= 3:
		return 1
	case len(query) >= 8:
		return 3
	}
	return 2
}

// Match reports whether query fuzzy-matches text within threshold edits.
func Match(query, text string, threshold int) bool {
	query = normalize(query)
	text = normalize(text)
	if query == "" || text == "" {
		return false
	}
	if strings.Contains(text, query) {
		return true
	}
	for _, word := range strings.Fields(text) {
		if strings.HasPrefix(word, query) {
			return true
		}
		if LevenshteinDistance(query, word) <= threshold {
			return true
		}
	}
	return false
}

// MatchAny reports whether query matches any of the fields.
func MatchAny(query string, threshold int, fields ...string) bool {
	for _, field := range fields {
		if Match(query, field, threshold) {
			return true
		}
	}
	return false
}

// Score ranks how well query fits the fields. Earlier fields weigh more, so
// callers pass them in priority order (subject, then participants, then
// snippet). Zero means no match.
func Score(query string, fields ...string) float64 {
	query = normalize(query)
	if query == "" {
		return 0
	}

	score := 0.0
	weight := 100.0
	for _, field := range fields {
		field = normalize(field)
		if field == "" {
			weight *= 0.7
			continue
		}
		if strings.Contains(field, query) {
			score += weight
			if containsWord(field, query) {
				score += weight / 2
			}
		} else {
			for _, word := range strings.Fields(field) {
				if strings.HasPrefix(word, query) {
					score += weight * 0.4
					continue
				}
				if dist := LevenshteinDistance(query, word); dist <= 2 {
					score += weight*0.5 - float64(dist)*weight*0.15
				}
			}
		}
		weight *= 0.7
	}
	return score
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsWord(text, query string) bool {
	for _, word := range strings.Fields(text) {
		if word == query {
			return true
		}
	}
	return false
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
