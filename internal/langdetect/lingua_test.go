package langdetect

import "testing"

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"EN":     "en",
		"en_US":  "en",
		"pt-BR":  "pt",
		" hi ":   "hi",
		"":       "",
		"eng":    "",
		"e1":     "",
		"zh-Han": "zh",
	}
	for raw, want := range cases {
		if got := NormalizeCode(raw); got != want {
			t.Fatalf("NormalizeCode(%q): got %q want %q", raw, got, want)
		}
	}
}

func TestDetectISO6391SkipsShortSamples(t *testing.T) {
	t.Parallel()

	if got := DetectISO6391("ok 123"); got != "" {
		t.Fatalf("expected empty code for short sample, got %q", got)
	}
}
