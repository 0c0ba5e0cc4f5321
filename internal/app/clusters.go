package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/newsfeed/internal/news"
)

func runClusters(args []string) int {
	fs := flag.NewFlagSet("clusters", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, defaultCommandTimeout)
	status := fs.String("status", "", "Filter by status: active, trending, stale or archived")
	category := fs.String("category", "", "Filter by category")
	query := fs.String("q", "", "Case-insensitive title search")
	limit := fs.Int("limit", 50, "Maximum clusters to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "clusters does not accept positional arguments")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	filter := news.ClusterFilter{
		Category: strings.ToLower(strings.TrimSpace(*category)),
		Query:    strings.TrimSpace(*query),
		Limit:    *limit,
	}
	if strings.TrimSpace(*status) != "" {
		parsed, err := news.ParseClusterStatus(*status)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --status: %v\n", err)
			return 2
		}
		filter.Status = parsed
	}

	ctx, cancel, _, _, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	clusters, err := b.store.ListClusters(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query clusters: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(clusters); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeTable([]string{"cluster_id", "title", "category", "status", "base_score", "articles", "latest_published_at"}, clusterRows(clusters)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runClusterDetail(args []string) int {
	fs := flag.NewFlagSet("cluster", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, defaultCommandTimeout)
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "cluster expects exactly one cluster id")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}
	clusterID := strings.TrimSpace(fs.Arg(0))

	ctx, cancel, _, _, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	detail, err := b.store.ClusterDetail(ctx, clusterID)
	if err != nil {
		if errors.Is(err, news.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "Cluster %s not found\n", clusterID)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load cluster: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(detail); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	c := detail.Cluster
	fmt.Printf("cluster_id=%s status=%s category=%s articles=%d\n", c.ID, c.Status, c.Category, c.ArticleCount)
	fmt.Printf("title=%s\n", c.Title)
	fmt.Printf("freshness=%s newsworthiness=%s authority=%s originality=%s quality=%s base=%s\n",
		formatScore(c.Scores.Freshness), formatScore(c.Scores.Newsworthiness), formatScore(c.Scores.Authority),
		formatScore(c.Scores.Originality), formatScore(c.Scores.Quality), formatScore(c.Scores.Base))
	fmt.Printf("regions=%s trending=%s expires_at=%s\n",
		strings.Join(c.RegionTags, ","), strings.Join(c.TrendingRegions, ","), formatUTCTimestamp(c.ExpiresAt))

	rows := make([][]string, 0, len(detail.Members))
	for _, m := range detail.Members {
		representative := ""
		if m.Link.IsRepresentative {
			representative = "*"
		}
		rows = append(rows, []string{
			representative,
			m.Article.ID,
			truncateForTable(m.Article.Title, 70),
			m.Article.SourceName,
			formatScore(m.Link.SimilarityScore),
			formatUTCTimestamp(m.Article.PublishedAt),
		})
	}
	if err := writeTable([]string{"rep", "article_id", "title", "source", "similarity", "published_at"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func clusterRows(clusters []news.StoryCluster) [][]string {
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			c.ID,
			truncateForTable(c.Title, 70),
			c.Category,
			string(c.Status),
			formatScore(c.Scores.Base),
			fmt.Sprintf("%d", c.ArticleCount),
			formatUTCTimestamp(c.LatestPublishedAt),
		})
	}
	return rows
}
