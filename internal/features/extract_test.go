package features

import (
	"math"
	"reflect"
	"testing"

	"horse.fit/newsfeed/internal/news"
)

func TestExtractEntitiesCategories(t *testing.T) {
	t.Parallel()

	text := "President Joe Biden met officials from the Reserve Bank in New delhi and India. " +
		"Acme Corporation pledged Rs 500 crore and $12.5 million to the fund."
	entities := ExtractEntities(text)

	found := map[EntityLabel][]string{}
	for _, entity := range entities {
		found[entity.Label] = append(found[entity.Label], entity.Text)
	}

	if !reflect.DeepEqual(found[LabelPerson], []string{"President Joe Biden"}) {
		t.Fatalf("unexpected persons: %#v", found[LabelPerson])
	}
	if !reflect.DeepEqual(found[LabelOrg], []string{"Reserve Bank", "Acme Corporation"}) {
		t.Fatalf("unexpected orgs: %#v", found[LabelOrg])
	}
	if !reflect.DeepEqual(found[LabelLocation], []string{"India", "Delhi"}) {
		t.Fatalf("unexpected locations: %#v", found[LabelLocation])
	}
	if !reflect.DeepEqual(found[LabelMoney], []string{"Rs 500 crore", "$12.5 million"}) {
		t.Fatalf("unexpected money: %#v", found[LabelMoney])
	}
}

func TestExtractEntitiesCollapsesDuplicatesPerLabel(t *testing.T) {
	t.Parallel()

	entities := ExtractEntities("India beat Pakistan. INDIA celebrates. india wins.")
	locations := Locations(entities)
	if !reflect.DeepEqual(locations, []string{"India", "Pakistan"}) {
		t.Fatalf("unexpected locations: %#v", locations)
	}
	for _, entity := range entities {
		if entity.Label == LabelLocation && entity.Confidence != locationConfidence {
			t.Fatalf("unexpected location confidence: %f", entity.Confidence)
		}
	}
}

func TestExtractEntitiesEmptyText(t *testing.T) {
	t.Parallel()

	if got := ExtractEntities("   "); len(got) != 0 {
		t.Fatalf("expected no entities, got %#v", got)
	}
}

func TestExtractKeywordsRanksByFrequency(t *testing.T) {
	t.Parallel()

	keywords := ExtractKeywords("Budget budget BUDGET! Senate debates the budget; senate votes. Tax.")
	want := []string{"budget", "senate", "debates", "votes"}
	if !reflect.DeepEqual(keywords, want) {
		t.Fatalf("unexpected keywords: got %#v want %#v", keywords, want)
	}
}

func TestExtractKeywordsCapsAtTen(t *testing.T) {
	t.Parallel()

	text := "alpha bravo charlie delta echoes foxtrot golf1 hotel india juliet kilo1 limas"
	if got := ExtractKeywords(text); len(got) != maxKeywords {
		t.Fatalf("expected %d keywords, got %d (%v)", maxKeywords, len(got), got)
	}
}

func TestEmbedIsDeterministicAndUnitNorm(t *testing.T) {
	t.Parallel()

	text := "Senate passes new tax bill. Lawmakers in India debate the tax plan!"
	first := Embed(text)
	second := Embed(text)
	if len(first) != news.EmbeddingDimensions {
		t.Fatalf("unexpected dimension count: %d", len(first))
	}
	for i := range first {
		if math.Float64bits(first[i]) != math.Float64bits(second[i]) {
			t.Fatalf("embedding differs at dim %d: %v vs %v", i, first[i], second[i])
		}
	}

	var sum float64
	for _, v := range first {
		sum += v * v
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-6 {
		t.Fatalf("expected unit norm, got %f", math.Sqrt(sum))
	}
}

func TestEmbedLayout(t *testing.T) {
	t.Parallel()

	vector := Embed("India growth slows. India responds.")
	for i := 150; i < 200; i++ {
		if vector[i] != 0 {
			t.Fatalf("expected dim %d to be zero, got %f", i, vector[i])
		}
	}
	for i := 203; i < news.EmbeddingDimensions; i++ {
		if vector[i] != 0 {
			t.Fatalf("expected dim %d to be zero, got %f", i, vector[i])
		}
	}
	if vector[0] <= 0 {
		t.Fatalf("expected first keyword dim to be set")
	}
	if vector[entityDimsStart+2] <= 0 {
		t.Fatalf("expected location dim to be set")
	}
	if vector[shapeDimsStart+1] <= 0 {
		t.Fatalf("expected sentence count dim to be set")
	}
}

func TestEmbedEmptyTextIsZeroVector(t *testing.T) {
	t.Parallel()

	vector := Embed("")
	if len(vector) != news.EmbeddingDimensions {
		t.Fatalf("unexpected dimension count: %d", len(vector))
	}
	if !IsDegenerate(vector) {
		t.Fatalf("expected zero vector to be degenerate")
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	a := []float64{1, 0, 0}
	b := []float64{1, 1, 0}
	if got := Cosine(a, b); math.Abs(got-1/math.Sqrt2) > 1e-9 {
		t.Fatalf("unexpected cosine: %f", got)
	}
	if got := Cosine(a, []float64{0, 0, 0}); got != 0 {
		t.Fatalf("expected zero cosine against zero vector, got %f", got)
	}
	if got := Cosine(a, []float64{1, 0}); got != 0 {
		t.Fatalf("expected zero cosine for mismatched lengths, got %f", got)
	}
}

func TestExtractCombinesAllSignals(t *testing.T) {
	t.Parallel()

	f := Extract("Minister Sharma visited Mumbai to review the budget. The budget grows.")
	if len(f.Keywords) == 0 || f.Keywords[0] != "budget" {
		t.Fatalf("unexpected keywords: %#v", f.Keywords)
	}
	if !reflect.DeepEqual(Locations(f.Entities), []string{"Mumbai"}) {
		t.Fatalf("unexpected locations: %#v", Locations(f.Entities))
	}
	if IsDegenerate(f.Embedding) {
		t.Fatalf("expected usable embedding")
	}
}
