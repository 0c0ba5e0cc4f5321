package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/newsfeed/internal/tracking"
)

func runTrack(args []string) int {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, defaultCommandTimeout)
	userID := fs.String("user", "", "User id")
	clusterID := fs.String("cluster", "", "Cluster id")
	articleID := fs.String("article", "", "Optional article id inside the cluster")
	kind := fs.String("type", "view", "Interaction type: view, click, share or like")
	duration := fs.Int("duration", 0, "Read duration in seconds")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*userID) == "" || strings.TrimSpace(*clusterID) == "" {
		fmt.Fprintln(os.Stderr, "--user and --cluster are required")
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
	interaction, err := svc.tracking.Track(ctx, tracking.TrackInput{
		UserID:              *userID,
		ClusterID:           *clusterID,
		ArticleID:           *articleID,
		Type:                *kind,
		ReadDurationSeconds: *duration,
	})
	if err != nil {
		if errors.Is(err, tracking.ErrInvalidInput) {
			fmt.Fprintf(os.Stderr, "Invalid interaction: %v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "Track failed: %v\n", err)
		return 1
	}

	fmt.Printf("interaction_id=%s user_id=%s cluster_id=%s type=%s read_at=%s\n",
		interaction.ID, interaction.UserID, interaction.ClusterID, interaction.Type, formatUTCTimestamp(interaction.ReadAt))
	return 0
}
