package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "recluster":
		return runRecluster(args[1:])
	case "rescore":
		return runRescore(args[1:])
	case "feed":
		return runFeed(args[1:])
	case "clusters":
		return runClusters(args[1:])
	case "cluster":
		return runClusterDetail(args[1:])
	case "track":
		return runTrack(args[1:])
	case "sweep":
		return runSweep(args[1:])
	case "sources":
		return runSources(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "newsfeed CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsfeed <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify store connectivity")
	fmt.Fprintln(os.Stderr, "  ingest     Ingest raw articles (object, array or NDJSON) and cluster them")
	fmt.Fprintln(os.Stderr, "  validate   Validate raw article JSON without storing it")
	fmt.Fprintln(os.Stderr, "  recluster  Retry clustering for stored articles without a cluster")
	fmt.Fprintln(os.Stderr, "  rescore    Recompute scores for one or more clusters")
	fmt.Fprintln(os.Stderr, "  feed       Print a user's ranked feed")
	fmt.Fprintln(os.Stderr, "  clusters   List story clusters")
	fmt.Fprintln(os.Stderr, "  cluster    Show one cluster with its member articles")
	fmt.Fprintln(os.Stderr, "  track      Record a user interaction with a cluster")
	fmt.Fprintln(os.Stderr, "  sweep      Run the stale data reaper once or on an interval")
	fmt.Fprintln(os.Stderr, "  sources    Apply source trust adjustments from a YAML file")
	fmt.Fprintln(os.Stderr, "  serve      Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"newsfeed <command> -h\" for command-specific flags.")
}
