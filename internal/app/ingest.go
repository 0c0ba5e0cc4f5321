package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	payloadschema "horse.fit/newsfeed/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, defaultCommandTimeout)
	file := fs.String("file", "-", "Path to a JSON object, JSON array or NDJSON file of raw articles (- for stdin)")
	strict := fs.Bool("strict", false, "Abort without storing anything when any record fails validation")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "ingest does not accept positional arguments")
		return 2
	}

	payload, err := readInput(*file, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		return 2
	}
	batch, err := payloadschema.ValidateBatch(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		return 2
	}
	for _, itemErr := range batch.Errors {
		fmt.Fprintf(os.Stderr, "Invalid record: %v\n", itemErr)
	}
	if *strict && len(batch.Errors) > 0 {
		return 2
	}
	if len(batch.Articles) == 0 {
		fmt.Fprintln(os.Stderr, "No valid articles to ingest")
		return 2
	}

	ctx, cancel, cfg, logger, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	svc := newServices(cfg, b, logger)
	result, err := svc.pipeline.IngestBatch(ctx, batch.Articles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	fmt.Printf("processed=%d inserted=%d duplicates=%d rejected=%d\n",
		result.Processed, result.Inserted, result.Duplicates, result.Rejected+len(batch.Errors))
	fmt.Printf("new_clusters=%d joined=%d unassignable=%d failed=%d\n",
		result.NewClusters, result.Joined, result.Unassignable, result.Failed)
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}

	exitCode := 0
	for _, path := range files {
		payload, err := readInput(path, os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		batch, err := payloadschema.ValidateBatch(payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		for _, itemErr := range batch.Errors {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, itemErr)
			exitCode = 1
		}
		fmt.Printf("file=%s valid=%d invalid=%d\n", path, len(batch.Articles), len(batch.Errors))
	}
	return exitCode
}
