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

	"horse.fit/newsfeed/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	common := addCommonFlags(fs, 10*time.Second)
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 30*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	sweep := fs.Bool("sweep", false, "Run the stale data reaper every SWEEP_INTERVAL alongside the server")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, err := common.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), *common.timeout)
	defer dialCancel()

	b, err := openBackend(dialCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to open backend")
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	svc := newServices(cfg, b, logger)
	if *sweep {
		go func() {
			if err := svc.reaper.Run(ctx, cfg.SweepInterval); err != nil {
				logger.Error().Err(err).Msg("background sweep stopped")
			}
		}()
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Ingest:   svc.pipeline,
		Feed:     svc.ranker,
		Tracking: svc.tracking,
		Clusters: b.store,
		Reaper:   svc.reaper,
	}, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
