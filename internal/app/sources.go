package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/newsfeed/internal/sources"
)

func runSources(args []string) int {
	if len(args) == 0 {
		printSourcesUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printSourcesUsage()
		return 0
	case "apply":
		return runSourcesApply(args[1:])
	case "check":
		return runSourcesCheck(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown sources action: %s\n\n", args[0])
		printSourcesUsage()
		return 2
	}
}

func printSourcesUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsfeed sources apply --file sources.yaml")
	fmt.Fprintln(os.Stderr, "  newsfeed sources check --file sources.yaml")
}

func runSourcesApply(args []string) int {
	fs := flag.NewFlagSet("sources apply", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, defaultCommandTimeout)
	file := fs.String("file", "sources.yaml", "YAML file with per-domain trust settings")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	trusts, err := sources.LoadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid sources file: %v\n", err)
		return 2
	}

	ctx, cancel, _, logger, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	result, err := sources.Apply(ctx, b.store, logger, trusts)
	fmt.Printf("created=%d updated=%d\n", result.Created, result.Updated)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Apply failed: %v\n", err)
		return 1
	}
	return 0
}

func runSourcesCheck(args []string) int {
	fs := flag.NewFlagSet("sources check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	file := fs.String("file", "sources.yaml", "YAML file with per-domain trust settings")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	trusts, err := sources.LoadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid sources file: %v\n", err)
		return 1
	}

	rows := make([][]string, 0, len(trusts))
	for _, trust := range trusts {
		rows = append(rows, []string{
			trust.Domain,
			trust.Name,
			formatScore(trust.TrustScore),
			string(trust.TrustLevel),
			fmt.Sprintf("%t", trust.IsActive),
		})
	}
	if err := writeTable([]string{"domain", "name", "trust_score", "trust_level", "active"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
