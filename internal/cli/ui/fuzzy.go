package ui

import (
	"sort"
	"strings"
)

const (
	maxSuggestionDistance = 3
	maxSuggestions        = 3
)

// FindSimilar returns up to three candidates within Levenshtein distance 3
// of target, closest first. Matching is case-insensitive. Used for "did you
// mean" hints on driver and property names.
func FindSimilar(target string, candidates []string) []string {
	type scored struct {
		value    string
		distance int
	}

	var matches []scored
	lowered := strings.ToLower(target)
	for _, candidate := range candidates {
		dist := levenshtein(lowered, strings.ToLower(candidate))
		if dist <= maxSuggestionDistance {
			matches = append(matches, scored{candidate, dist})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	result := make([]string, 0, maxSuggestions)
	for i := 0; i < len(matches) && i < maxSuggestions; i++ {
		result = append(result, matches[i].value)
	}
	return result
}

// levenshtein is the minimum number of single-character edits between two
// strings.
func levenshtein(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(s2)]
}
