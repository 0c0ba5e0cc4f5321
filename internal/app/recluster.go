package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/newsfeed/internal/news"
	"horse.fit/newsfeed/internal/pipeline"
)

func runRecluster(args []string) int {
	fs := flag.NewFlagSet("recluster", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, 2*time.Minute)
	limit := fs.Int("limit", pipeline.DefaultReclusterLimit, "Maximum unclustered articles to retry")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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
	result, err := svc.pipeline.Recluster(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recluster failed: %v\n", err)
		return 1
	}

	fmt.Printf("processed=%d new_clusters=%d joined=%d unassignable=%d failed=%d\n",
		result.Processed, result.NewClusters, result.Joined, result.Unassignable, result.Failed)
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func runRescore(args []string) int {
	fs := flag.NewFlagSet("rescore", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, 2*time.Minute)
	active := fs.Bool("active", false, "Rescore every active cluster instead of the given ids")
	limit := fs.Int("limit", 200, "Maximum active clusters to rescore with --active")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	ids := fs.Args()
	if !*active && len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "rescore needs cluster ids or --active")
		return 2
	}
	if *active && len(ids) > 0 {
		fmt.Fprintln(os.Stderr, "--active does not accept cluster ids")
		return 2
	}

	ctx, cancel, cfg, logger, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	if *active {
		clusters, err := b.store.ListClusters(ctx, news.ClusterFilter{Status: news.ClusterActive, Limit: *limit})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list active clusters: %v\n", err)
			return 1
		}
		for _, cluster := range clusters {
			ids = append(ids, cluster.ID)
		}
	}

	svc := newServices(cfg, b, logger)
	failed := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		update, err := svc.scorer.Rescore(ctx, id)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Rescore cluster_id=%s failed: %v\n", id, err)
			continue
		}
		fmt.Printf("cluster_id=%s base_score=%.2f articles=%d trending_regions=%s\n",
			id, update.Scores.Base, update.ArticleCount, strings.Join(update.TrendingRegions, ","))
	}
	fmt.Printf("rescored=%d failed=%d\n", len(ids)-failed, failed)
	if failed > 0 {
		return 1
	}
	return 0
}
