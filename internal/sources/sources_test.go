package sources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/newsfeed/internal/memstore"
	"horse.fit/newsfeed/internal/news"
)

const sample = `
sources:
  - domain: www.NDTV.com
    name: NDTV
    trust_score: 0.85
  - domain: thehindu.com
    trust_score: 0.95
    trust_level: high
  - domain: rumours.example
    trust_score: 0.2
    active: false
`

func TestLoadDerivesLevelAndDefaults(t *testing.T) {
	t.Parallel()

	trusts, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(trusts) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(trusts))
	}

	ndtv := trusts[0]
	if ndtv.Domain != "ndtv.com" || ndtv.Name != "NDTV" || ndtv.TrustLevel != news.TrustHigh || !ndtv.IsActive {
		t.Fatalf("unexpected ndtv entry: %+v", ndtv)
	}
	if trusts[1].TrustLevel != news.TrustHigh {
		t.Fatalf("explicit trust_level must win, got %s", trusts[1].TrustLevel)
	}
	if trusts[2].TrustLevel != news.TrustLow || trusts[2].IsActive {
		t.Fatalf("unexpected inactive entry: %+v", trusts[2])
	}
}

func TestLoadRejectsBadEntries(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing domain": "sources:\n  - trust_score: 0.5\n",
		"missing score":  "sources:\n  - domain: a.com\n",
		"score range":    "sources:\n  - domain: a.com\n    trust_score: 1.5\n",
		"bad level":      "sources:\n  - domain: a.com\n    trust_score: 0.5\n    trust_level: gold\n",
		"duplicate":      "sources:\n  - domain: a.com\n    trust_score: 0.5\n  - domain: www.a.com\n    trust_score: 0.6\n",
		"unknown field":  "sources:\n  - domain: a.com\n    trust_score: 0.5\n    colour: red\n",
	}
	for name, doc := range cases {
		if _, err := Load(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadEmptyDocument(t *testing.T) {
	t.Parallel()

	trusts, err := Load(strings.NewReader(""))
	if err != nil || len(trusts) != 0 {
		t.Fatalf("expected empty result, got %v %v", trusts, err)
	}
}

type failingStore struct{}

func (failingStore) ApplySourceTrust(context.Context, news.SourceTrust) (bool, error) {
	return false, errors.New("connection refused")
}

func TestApplyCountsCreatedAndUpdated(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	trusts, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()
	first, err := Apply(ctx, store, zerolog.Nop(), trusts)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if first.Created != 3 || first.Updated != 0 {
		t.Fatalf("unexpected first apply: %+v", first)
	}
	second, err := Apply(ctx, store, zerolog.Nop(), trusts[:1])
	if err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if second.Created != 0 || second.Updated != 1 {
		t.Fatalf("unexpected second apply: %+v", second)
	}

	if _, err := Apply(ctx, failingStore{}, zerolog.Nop(), trusts); !news.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
