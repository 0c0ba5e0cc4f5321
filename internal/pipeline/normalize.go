package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
}

var clickbaitPhrases = []string{
	"shocking",
	"unbelievable",
	"you won't believe",
	"amazing",
	"incredible",
}

const (
	baseQuality          = 0.5
	clickbaitPenalty     = 0.2
	shortQuestionPenalty = 0.1
	shortQuestionLength  = 50
	longContentBonus     = 0.2
	longContentLength    = 500
	authorBonus          = 0.1
)

// collapseSpace trims s and folds whitespace runs into single spaces,
// dropping control characters.
func collapseSpace(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// stripMarkup returns the visible text of an HTML fragment.
func stripMarkup(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return collapseSpace(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return collapseSpace(raw)
	}
	doc.Find("script, style, noscript").Remove()
	return collapseSpace(doc.Text())
}

// normalizeURL canonicalizes raw for dedup: lowercased scheme and host,
// default ports, fragments and tracking parameters removed, query sorted.
func normalizeURL(raw string) (canonical string, host string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ""
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ""
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ""
	}

	parsed.Host = strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = parsed.Host + ":" + port
		}
	}

	parsed.Fragment = ""
	path := strings.TrimSpace(parsed.EscapedPath())
	if path == "" {
		path = "/"
	}
	path = strings.ReplaceAll(path, "//", "/")
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	parsed.Path = path
	parsed.RawPath = ""

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		reordered := url.Values{}
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			for _, value := range values {
				reordered.Add(key, value)
			}
		}
		parsed.RawQuery = reordered.Encode()
	} else {
		parsed.RawQuery = ""
	}

	return parsed.String(), parsed.Hostname()
}

// sourceDomain is the host a NewsSource is keyed on.
func sourceDomain(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

// qualityScore is the ingestion-time heuristic from title, content and byline.
func qualityScore(title, content, author string) float64 {
	score := baseQuality
	lowerTitle := strings.ToLower(title)
	for _, phrase := range clickbaitPhrases {
		if strings.Contains(lowerTitle, phrase) {
			score -= clickbaitPenalty
			break
		}
	}
	if strings.Contains(title, "?") && utf8.RuneCountInString(title) < shortQuestionLength {
		score -= shortQuestionPenalty
	}
	if utf8.RuneCountInString(content) > longContentLength {
		score += longContentBonus
	}
	if strings.TrimSpace(author) != "" {
		score += authorBonus
	}
	return math.Max(0, math.Min(1, score))
}

func contentHash(title, canonicalURL string) string {
	sum := sha256.Sum256([]byte(title + canonicalURL))
	return hex.EncodeToString(sum[:])
}

// featureText is the text the extractor runs on.
func featureText(title, description, content string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{title, description, content} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}
