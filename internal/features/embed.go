package features

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"horse.fit/newsfeed/internal/news"
)

// Embedding layout. Dims outside these ranges stay zero.
const (
	keywordDimsStart = 0
	keywordDimsMax   = 100
	entityDimsStart  = 100
	shapeDimsStart   = 200
)

var sentenceTerminators = regexp.MustCompile(`[.!?]+`)

// Embed builds the deterministic feature vector for text. The result is
// L2-normalized unless its raw magnitude is zero, in which case the zero
// vector is returned.
func Embed(text string) []float64 {
	return embedWith(text, ExtractKeywords(text), ExtractEntities(text))
}

func embedWith(text string, keywords []string, entities []NamedEntity) []float64 {
	vector := make([]float64, news.EmbeddingDimensions)
	length := utf8.RuneCountInString(text)
	if length == 0 {
		return vector
	}
	lower := strings.ToLower(text)

	for i, keyword := range keywords {
		if i >= keywordDimsMax {
			break
		}
		vector[keywordDimsStart+i] = float64(strings.Count(lower, keyword)) / float64(length)
	}

	for i, label := range entityLabels {
		count := 0
		for _, entity := range entities {
			if entity.Label == label {
				count++
			}
		}
		vector[entityDimsStart+i] = float64(count) / float64(max(len(entities), 1))
	}

	sentences := len(sentenceTerminators.FindAllStringIndex(text, -1))
	vector[shapeDimsStart] = math.Min(float64(length)/1000, 1)
	vector[shapeDimsStart+1] = float64(sentences) / 100
	vector[shapeDimsStart+2] = (float64(length) / float64(max(sentences, 1))) / 1000

	return normalize(vector)
}

func normalize(vector []float64) []float64 {
	var sum float64
	for _, v := range vector {
		sum += v * v
	}
	magnitude := math.Sqrt(sum)
	if magnitude == 0 {
		return vector
	}
	for i := range vector {
		vector[i] /= magnitude
	}
	return vector
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector has zero magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsDegenerate reports whether v cannot take part in similarity search.
func IsDegenerate(v []float64) bool {
	if len(v) != news.EmbeddingDimensions {
		return true
	}
	for _, value := range v {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return true
		}
	}
	for _, value := range v {
		if value != 0 {
			return false
		}
	}
	return true
}
