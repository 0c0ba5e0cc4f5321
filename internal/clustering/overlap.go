package clustering

import (
	"strings"
	"unicode"
)

const minTitleTokenLength = 3

// titleOverlap is the Jaccard overlap of the significant (longer than two
// characters) lowercased title words.
func titleOverlap(left, right string) float64 {
	leftSet := titleTokenSet(left)
	rightSet := titleTokenSet(right)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	intersection := 0
	for token := range leftSet {
		if _, ok := rightSet[token]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(leftSet) + len(rightSet) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func titleTokenSet(title string) map[string]struct{} {
	parts := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(parts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if len([]rune(part)) < minTitleTokenLength {
			continue
		}
		set[part] = struct{}{}
	}
	return set
}
