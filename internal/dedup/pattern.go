package dedup

import "strings"

// Pattern scores contribute at most 0.40 of the duplicate total.
const (
	patternExactBase    = 0.40
	patternNormalized   = 0.35
	patternEditOne      = 0.35
	patternEditTwo      = 0.30
	patternContainment  = 0.25
	patternCandidateMin = 0.20
)

var brandSuffixes = []string{"store", "shop", "direct", "global", "official"}

// brandName normalizes the leading domain label for pattern comparison:
// storefront suffixes and separators are stripped.
func brandName(domainName string) string {
	base, _, _ := strings.Cut(strings.ToLower(domainName), ".")
	for _, suffix := range brandSuffixes {
		if trimmed, ok := strings.CutSuffix(base, suffix); ok && trimmed != "" {
			base = trimmed
			break
		}
	}
	return stripSeparators(base)
}

func stripSeparators(s string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(s)
}

// PatternScore compares two domain names and returns a similarity score in
// [0, 0.40]. Exact base matches on different TLDs score highest; fuzzy and
// containment matches score lower.
func PatternScore(a, b string) float64 {
	baseA, baseB := brandName(a), brandName(b)

	if baseA == baseB && tld(a) != tld(b) {
		return patternExactBase
	}

	labelA, _, _ := strings.Cut(strings.ToLower(a), ".")
	labelB, _, _ := strings.Cut(strings.ToLower(b), ".")
	if stripSeparators(labelA) == stripSeparators(labelB) {
		return patternNormalized
	}

	switch levenshtein(baseA, baseB) {
	case 1:
		return patternEditOne
	case 2:
		return patternEditTwo
	}

	if baseA != "" && baseB != "" &&
		(strings.Contains(baseA, baseB) || strings.Contains(baseB, baseA)) {
		return patternContainment
	}
	return 0
}

func tld(domainName string) string {
	parts := strings.Split(domainName, ".")
	return parts[len(parts)-1]
}

// levenshtein computes the edit distance with a rolling single row.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	curr := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		curr[0] = i + 1
		for j := 0; j < len(b); j++ {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}
			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// fuzzyMatch converts edit distance into a similarity in [0, 1].
func fuzzyMatch(a, b string) float64 {
	a = strings.TrimSpace(strings.ToLower(a))
	b = strings.TrimSpace(strings.ToLower(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	maxLen := max(len(a), len(b))
	sim := 1 - float64(levenshtein(a, b))/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// jaccard computes word-set similarity between two texts.
func jaccard(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	intersection := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}
