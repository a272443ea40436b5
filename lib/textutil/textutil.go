package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return name
}

// MostSimilar returns the index of the candidate closest to name by
// Jaro-Winkler similarity (after normalization) and its similarity. The index
// is -1 if there are no candidates.
func MostSimilar(name string, candidates []string) (int, float64) {
	name = NormalizeName(name)

	index := -1
	var mostSimilarity float64
	for i, candidate := range candidates {
		similarity := matchr.JaroWinkler(name, NormalizeName(candidate), false)
		if index < 0 || similarity > mostSimilarity {
			index = i
			mostSimilarity = similarity
		}
	}
	return index, mostSimilarity
}
