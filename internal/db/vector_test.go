package db

import (
	"math"
	"strings"
	"testing"
)

func TestVectorLiteralRoundTrip(t *testing.T) {
	t.Parallel()

	in := []float64{0, 0.25, -1, 0.1234567}
	literal := toVectorLiteral(in)
	if !strings.HasPrefix(literal, "[0,0.25,-1,") || !strings.HasSuffix(literal, "]") {
		t.Fatalf("unexpected literal: %q", literal)
	}

	out, err := parseVectorLiteral(literal)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(out[i]-in[i]) > 1e-6 {
			t.Fatalf("component %d: got %f want %f", i, out[i], in[i])
		}
	}
}

func TestParseVectorLiteralRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"0.1,0.2", "[0.1,abc]", "{0.1}"} {
		if _, err := parseVectorLiteral(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	out, err := parseVectorLiteral("")
	if err != nil || out != nil {
		t.Fatalf("expected nil vector for empty input, got %v %v", out, err)
	}
}

func TestNullableVectorLiteral(t *testing.T) {
	t.Parallel()

	if nullableVectorLiteral(nil) != nil {
		t.Fatalf("expected nil literal for empty vector")
	}
	if got := nullableVectorLiteral([]float64{1}); got == nil || *got != "[1]" {
		t.Fatalf("unexpected literal: %v", got)
	}
}

func TestClusterColumnListMatchesScanOrder(t *testing.T) {
	t.Parallel()

	cols := clusterColumnList()
	if len(cols) != 21 {
		t.Fatalf("expected 21 cluster columns, got %d", len(cols))
	}
	if cols[0] != "c.cluster_id::text" || cols[len(cols)-1] != "c.updated_at" {
		t.Fatalf("unexpected column bounds: %q .. %q", cols[0], cols[len(cols)-1])
	}
}

func TestListClustersQueryUsesDollarPlaceholders(t *testing.T) {
	t.Parallel()

	q, args, err := psql.Select("c.cluster_id").
		From("feed.story_clusters c").
		Where("c.status = ?", "active").
		Where("c.category = ?", "politics").
		ToSql()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(q, "$1") || !strings.Contains(q, "$2") || strings.Contains(q, "?") {
		t.Fatalf("unexpected placeholders in %q", q)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("unexpected escape: %q", got)
	}
}

func TestResolveGormLogLevel(t *testing.T) {
	t.Parallel()

	if resolveGormLogLevel("debug", "production") != resolveGormLogLevel("trace", "production") {
		t.Fatalf("debug and trace should map to the same gorm level")
	}
	if resolveGormLogLevel("bogus", "local") == resolveGormLogLevel("bogus", "production") {
		t.Fatalf("unknown level should depend on the environment")
	}
}
