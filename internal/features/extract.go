package features

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

type EntityLabel string

const (
	LabelPerson   EntityLabel = "PERSON"
	LabelOrg      EntityLabel = "ORG"
	LabelLocation EntityLabel = "LOCATION"
	LabelMoney    EntityLabel = "MONEY"
)

// entityLabels fixes the embedding slot of each label.
var entityLabels = []EntityLabel{LabelPerson, LabelOrg, LabelLocation, LabelMoney}

const (
	personConfidence   = 0.8
	orgConfidence      = 0.7
	locationConfidence = 0.9
	moneyConfidence    = 0.8

	maxKeywords      = 10
	minKeywordLength = 4
)

type NamedEntity struct {
	Text       string      `json:"text"`
	Label      EntityLabel `json:"label"`
	Confidence float64     `json:"confidence"`
}

// Features is everything extracted from one article text.
type Features struct {
	Entities  []NamedEntity
	Keywords  []string
	Embedding []float64
}

var (
	personPattern = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Prof|President|Minister|PM|CEO|Director)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	orgPattern    = regexp.MustCompile(`\b[A-Z][a-z]*(?:\s+[A-Z][a-z]*)*\s+(?:Ltd|Limited|Corp|Corporation|Inc|Company|Group|Bank|Authority|Commission|Ministry|Department|University|Institute|Agency|Association)\b`)
	moneyPattern  = regexp.MustCompile(`(?i)(?:\b(?:rs|usd|eur)\.?|[₹$€])\s*\d[\d,]*(?:\.\d+)?(?:\s*(?:crore|lakh|million|billion|thousand)\b)?`)
	nonWordASCII  = regexp.MustCompile(`[^A-Za-z0-9_\s]`)
)

var gazetteer = []string{
	"India", "Delhi", "Mumbai", "Bangalore", "Chennai", "Kolkata", "Hyderabad", "Pune", "Ahmedabad",
	"Maharashtra", "Gujarat", "Karnataka", "Tamil Nadu", "West Bengal", "Rajasthan", "Punjab",
	"United States", "USA", "China", "Pakistan", "Bangladesh", "Sri Lanka", "Nepal",
	"New York", "London", "Tokyo", "Singapore", "Dubai", "Hong Kong",
}

type gazetteerEntry struct {
	name    string
	pattern *regexp.Regexp
}

var gazetteerPatterns = func() []gazetteerEntry {
	entries := make([]gazetteerEntry, 0, len(gazetteer))
	for _, name := range gazetteer {
		entries = append(entries, gazetteerEntry{
			name:    name,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}
	return entries
}()

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "of": {}, "with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "can": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "it": {}, "we": {}, "they": {}, "me": {}, "him": {}, "her": {},
	"us": {}, "them": {},
}

// Extract runs entity, keyword and embedding extraction over text.
func Extract(text string) Features {
	entities := ExtractEntities(text)
	keywords := ExtractKeywords(text)
	return Features{
		Entities:  entities,
		Keywords:  keywords,
		Embedding: embedWith(text, keywords, entities),
	}
}

// ExtractEntities matches the four rule-based entity categories. Matches are
// collapsed per label, case-insensitively, keeping the first spelling seen.
// Locations take the gazetteer spelling.
func ExtractEntities(text string) []NamedEntity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var entities []NamedEntity
	seen := make(map[EntityLabel]map[string]struct{}, len(entityLabels))
	add := func(label EntityLabel, value string, confidence float64) {
		value = strings.Join(strings.Fields(value), " ")
		if value == "" {
			return
		}
		bucket := seen[label]
		if bucket == nil {
			bucket = make(map[string]struct{})
			seen[label] = bucket
		}
		key := strings.ToLower(value)
		if _, ok := bucket[key]; ok {
			return
		}
		bucket[key] = struct{}{}
		entities = append(entities, NamedEntity{Text: value, Label: label, Confidence: confidence})
	}

	for _, match := range personPattern.FindAllString(text, -1) {
		add(LabelPerson, match, personConfidence)
	}
	for _, match := range orgPattern.FindAllString(text, -1) {
		add(LabelOrg, match, orgConfidence)
	}
	for _, entry := range gazetteerPatterns {
		if entry.pattern.MatchString(text) {
			add(LabelLocation, entry.name, locationConfidence)
		}
	}
	for _, match := range moneyPattern.FindAllString(text, -1) {
		add(LabelMoney, match, moneyConfidence)
	}
	return entities
}

// ExtractKeywords returns up to ten non-stop-word tokens longer than three
// characters, most frequent first. Ties keep first-occurrence order.
func ExtractKeywords(text string) []string {
	cleaned := nonWordASCII.ReplaceAllString(strings.ToLower(text), " ")
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return nil
	}

	counts := make(map[string]int, len(words))
	order := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < minKeywordLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}

// Locations returns the LOCATION entity texts in extraction order.
func Locations(entities []NamedEntity) []string {
	var out []string
	for _, entity := range entities {
		if entity.Label == LabelLocation {
			out = append(out, entity.Text)
		}
	}
	return out
}
