package sources

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"horse.fit/newsfeed/internal/news"
)

type Store interface {
	// ApplySourceTrust upserts a source by domain and reports whether it was created.
	ApplySourceTrust(ctx context.Context, trust news.SourceTrust) (bool, error)
}

// File is the YAML document accepted by `sources apply`.
type File struct {
	Sources []Entry `yaml:"sources"`
}

type Entry struct {
	Domain     string   `yaml:"domain"`
	Name       string   `yaml:"name"`
	TrustScore *float64 `yaml:"trust_score"`
	TrustLevel string   `yaml:"trust_level"`
	Active     *bool    `yaml:"active"`
}

type ApplyResult struct {
	Created int
	Updated int
}

func LoadFile(path string) ([]news.SourceTrust, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a sources document. A missing trust_level is
// derived from trust_score; a missing active flag means active.
func Load(r io.Reader) ([]news.SourceTrust, error) {
	var doc File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode sources yaml: %w", err)
	}

	out := make([]news.SourceTrust, 0, len(doc.Sources))
	seen := make(map[string]int, len(doc.Sources))
	for i, entry := range doc.Sources {
		trust, err := entry.toTrust()
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		if prev, dup := seen[trust.Domain]; dup {
			return nil, fmt.Errorf("sources[%d]: domain %s already listed at sources[%d]", i, trust.Domain, prev)
		}
		seen[trust.Domain] = i
		out = append(out, trust)
	}
	return out, nil
}

func (e Entry) toTrust() (news.SourceTrust, error) {
	domain := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e.Domain)), "www.")
	if domain == "" {
		return news.SourceTrust{}, fmt.Errorf("domain is required")
	}
	if e.TrustScore == nil {
		return news.SourceTrust{}, fmt.Errorf("domain %s: trust_score is required", domain)
	}
	score := *e.TrustScore
	if score < 0 || score > 1 {
		return news.SourceTrust{}, fmt.Errorf("domain %s: trust_score %.3f outside [0,1]", domain, score)
	}

	level := news.TrustLevelForScore(score)
	if raw := strings.TrimSpace(e.TrustLevel); raw != "" {
		parsed, err := news.ParseTrustLevel(raw)
		if err != nil {
			return news.SourceTrust{}, fmt.Errorf("domain %s: %w", domain, err)
		}
		level = parsed
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return news.SourceTrust{
		Domain:     domain,
		Name:       strings.TrimSpace(e.Name),
		TrustScore: score,
		TrustLevel: level,
		IsActive:   active,
	}, nil
}

func Apply(ctx context.Context, store Store, logger zerolog.Logger, trusts []news.SourceTrust) (ApplyResult, error) {
	var result ApplyResult
	for _, trust := range trusts {
		created, err := store.ApplySourceTrust(ctx, trust)
		if err != nil {
			return result, news.Retryable("apply source trust", fmt.Errorf("domain=%s: %w", trust.Domain, err))
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		logger.Info().
			Str("domain", trust.Domain).
			Float64("trust_score", trust.TrustScore).
			Str("trust_level", string(trust.TrustLevel)).
			Bool("created", created).
			Msg("source trust applied")
	}
	return result, nil
}
