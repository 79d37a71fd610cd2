// Command cafe mounts a backing directory through a read-through cache.
//
//	cafe -o cache-directory=/var/cache/tree,cache-init-exe=warm-cache /srv/tree /mnt/tree
//
// Before the mount starts serving, the population command is run once as
// "warm-cache /srv/tree /var/cache/tree". Reads are then answered from the
// cache directory when it holds the path, and from the backing directory
// otherwise. Everything else goes to the backing directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/absfs/cafe"
	"github.com/absfs/cafe/fuse"
	"github.com/absfs/cafe/internal/config"
	"github.com/absfs/cafe/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	program := filepath.Base(os.Args[0])

	cfg, err := config.Resolve(program, os.Args[1:], nil)
	if errors.Is(err, config.ErrHelp) {
		config.Usage(os.Stdout, program)
		return nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n\n", program, err)
		config.Usage(os.Stderr, program)
		os.Exit(1)
	}

	logger, closer, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The cache must be populated before the first request is served.
	// A failing command is reported and the mount goes ahead with
	// whatever it left behind.
	bootstrap := cafe.Bootstrap{
		Command:     cfg.PopulationCommand,
		BackingRoot: cfg.BackingRoot,
		CacheRoot:   cfg.CacheRoot,
		Timeout:     cfg.BootstrapTimeout,
		Logger:      logger,
	}
	if cfg.BootstrapOutput {
		bootstrap.Stdout = os.Stderr
		bootstrap.Stderr = os.Stderr
	}
	bootstrap.Run(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted while populating cache: %w", context.Cause(ctx))
	}

	delegate, err := cafe.NewOSDelegate(cfg.BackingRoot)
	if err != nil {
		return fmt.Errorf("backing root: %w", err)
	}
	cacheFS := cafe.New(delegate, cfg.CacheRoot, cafe.WithLogger(logger))

	server, err := fuse.Mount(fuse.Options{
		Mountpoint:   cfg.MountPoint,
		FS:           cacheFS,
		AllowOther:   cfg.AllowOther,
		Concurrent:   cfg.Concurrent,
		Debug:        cfg.Debug,
		ExtraOptions: cfg.MountOptions,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	// Unmount on signal. An external fusermount -u ends Wait as well.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := server.Unmount(); err != nil {
			logger.Error("failed to unmount", "mountpoint", cfg.MountPoint, "error", err)
		}
	}()

	server.Wait()

	stats := cacheFS.Stats()
	logger.Info("cache filesystem unmounted",
		"mountpoint", cfg.MountPoint,
		"attr_hits", stats.AttrHits,
		"attr_misses", stats.AttrMisses,
		"open_hits", stats.OpenHits,
		"open_misses", stats.OpenMisses,
		"open_bypass", stats.OpenBypass,
		"passthrough", stats.Passthrough,
		"hit_ratio", stats.HitRatio(),
	)
	return nil
}
