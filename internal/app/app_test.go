package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunDispatch(t *testing.T) {
	t.Parallel()

	if code := Run(nil); code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
	if code := Run([]string{"help"}); code != 0 {
		t.Fatalf("expected help exit code 0, got %d", code)
	}
	if code := Run([]string{"publish"}); code != 2 {
		t.Fatalf("expected unknown command exit code 2, got %d", code)
	}
	if code := Run([]string{"sources", "rotate"}); code != 2 {
		t.Fatalf("expected unknown sources action exit code 2, got %d", code)
	}
}

func TestRunValidateFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.ndjson")
	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(valid, []byte("{\"title\":\"A\",\"url\":\"https://example.com/a\"}\n{\"title\":\"B\",\"url\":\"https://example.com/b\"}\n"), 0o600); err != nil {
		t.Fatalf("write valid file: %v", err)
	}
	if err := os.WriteFile(invalid, []byte(`[{"title":"A","url":"ftp://example.com/a"}]`), 0o600); err != nil {
		t.Fatalf("write invalid file: %v", err)
	}

	if code := Run([]string{"validate", valid}); code != 0 {
		t.Fatalf("expected valid file to pass, got %d", code)
	}
	if code := Run([]string{"validate", valid, invalid}); code != 1 {
		t.Fatalf("expected invalid file to fail, got %d", code)
	}
}

func TestFlagValidationFailsBeforeConnecting(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"feed"},
		{"track", "--user", "u-1"},
		{"clusters", "--limit", "0"},
		{"clusters", "--format", "xml"},
		{"cluster"},
		{"rescore"},
		{"recluster", "--limit", "-1"},
		{"serve", "--port", "70000"},
	}
	for _, args := range cases {
		if code := Run(args); code != 2 {
			t.Fatalf("%v: expected exit code 2, got %d", args, code)
		}
	}
}

func TestReadInput(t *testing.T) {
	t.Parallel()

	data, err := readInput("-", strings.NewReader("from stdin"))
	if err != nil || string(data) != "from stdin" {
		t.Fatalf("unexpected stdin read: %q %v", data, err)
	}
	if _, err := readInput(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestWriteTableAligns(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if err := writeTableTo(&out, []string{"id", "title"}, [][]string{{"1", "Budget"}, {"22", "Election"}}); err != nil {
		t.Fatalf("write table: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[2], "22  Election") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}
}

func TestTruncateForTable(t *testing.T) {
	t.Parallel()

	if got := truncateForTable("  Government announces tax policy  ", 12); got != "Governmen..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncateForTable("short", 12); got != "short" {
		t.Fatalf("unexpected value: %q", got)
	}
}

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()

	if got, err := parseOutputFormat(" JSON ", outputFormatTable); err != nil || got != outputFormatJSON {
		t.Fatalf("unexpected format: %q %v", got, err)
	}
	if got, err := parseOutputFormat("", outputFormatTable); err != nil || got != outputFormatTable {
		t.Fatalf("unexpected default format: %q %v", got, err)
	}
	if _, err := parseOutputFormat("yaml", outputFormatTable); err == nil {
		t.Fatalf("expected invalid format error")
	}
}
