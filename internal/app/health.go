package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, 10*time.Second)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel, cfg, logger, b, err := connect(common)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer b.Close()

	if err := b.store.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("health check failed")
		fmt.Fprintf(os.Stderr, "Store ping failed: %v\n", err)
		return 1
	}

	lockMode := cfg.AssignLock
	if b.locker == nil {
		lockMode = "none"
	}
	fmt.Printf("status=ok store=%s assign_lock=%s\n", cfg.Store, lockMode)
	return 0
}
