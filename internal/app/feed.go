package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/newsfeed/internal/feed"
)

func runFeed(args []string) int {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, defaultCommandTimeout)
	userID := fs.String("user", "", "User id")
	country := fs.String("country", "", "Override the profile country for this request")
	city := fs.String("city", "", "Override the profile city for this request")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	var hint *feed.LocationHint
	if strings.TrimSpace(*country) != "" || strings.TrimSpace(*city) != "" {
		hint = &feed.LocationHint{Country: *country, City: *city}
	}

	ctx, cancel, cfg, logger, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	svc := newServices(cfg, b, logger)
	result, err := svc.ranker.GetFeed(ctx, *userID, hint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Feed failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("user_id=%s status=%s source=%s items=%d generated_at=%s\n",
		result.UserID, result.Status, result.Source, len(result.Items), formatUTCTimestamp(result.GeneratedAt))
	rows := make([][]string, 0, len(result.Items))
	for _, item := range result.Items {
		personalization := ""
		if item.Personalization != nil {
			personalization = formatScore(*item.Personalization)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.RankPosition),
			formatScore(item.Score),
			personalization,
			item.Cluster.ID,
			truncateForTable(item.Cluster.Title, 70),
			item.Cluster.Category,
		})
	}
	if err := writeTable([]string{"rank", "score", "personalization", "cluster_id", "title", "category"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
