package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/newsfeed/internal/reaper"
)

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, 5*time.Minute)
	every := fs.Duration("every", 0, "Run continuously with this interval (0 runs once; SWEEP_INTERVAL when negative)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *every == 0 {
		return sweepOnce(common)
	}
	return sweepLoop(common, *every)
}

func sweepOnce(common commonFlags) int {
	ctx, cancel, cfg, logger, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	svc := newServices(cfg, b, logger)
	counts, err := svc.reaper.Sweep(ctx)
	printSweepCounts(counts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep finished with errors: %v\n", err)
		return 1
	}
	return 0
}

func sweepLoop(common commonFlags, every time.Duration) int {
	cfg, logger, err := common.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if every < 0 {
		every = cfg.SweepInterval
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	b, err := openBackend(dialCtx, cfg, logger)
	dialCancel()
	if err != nil {
		logger.Error().Err(err).Msg("sweep failed to open backend")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := newServices(cfg, b, logger)
	logger.Info().Dur("interval", every).Msg("sweep loop started")
	if err := svc.reaper.Run(ctx, every); err != nil {
		fmt.Fprintf(os.Stderr, "Sweep loop failed: %v\n", err)
		return 1
	}
	logger.Info().Msg("sweep loop stopped")
	return 0
}

func printSweepCounts(counts reaper.Counts) {
	fmt.Printf("stale_clusters=%d archived_articles=%d expired_feed_entries=%d archived_clusters=%d purged_reading_history=%d total=%d\n",
		counts.StaleClusters, counts.ArchivedArticles, counts.ExpiredFeedEntries, counts.ArchivedClusters, counts.PurgedHistory, counts.Total())
}
