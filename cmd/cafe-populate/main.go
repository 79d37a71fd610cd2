// Command cafe-populate copies files from a backing directory into a cafe
// cache directory. It takes its two roots in the order cafe passes them,
// so it can be used directly as the cache-init-exe:
//
//	cafe -o cache-directory=/cache,cache-init-exe='cafe-populate --include *.so' /srv/tree /mnt/tree
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/absfs/cafe"
	"github.com/absfs/cafe/internal/logging"
	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		include     []string
		maxFileSize string
		bufferSize  string
		logLevel    string
	)
	flagSet := pflag.NewFlagSet("cafe-populate", pflag.ContinueOnError)
	flagSet.StringArrayVar(&include, "include", nil, "copy only files whose path or name matches this glob (repeatable)")
	flagSet.StringVar(&maxFileSize, "max-file-size", "", "skip files larger than this (e.g. 64MiB)")
	flagSet.StringVar(&bufferSize, "buffer-size", "32KiB", "copy buffer size")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cafe-populate [OPTIONS] BACKING_ROOT CACHE_ROOT\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 2 {
		flagSet.Usage()
		return fmt.Errorf("expected BACKING_ROOT and CACHE_ROOT, got %d arguments", flagSet.NArg())
	}
	backingRoot, cacheRoot := flagSet.Arg(0), flagSet.Arg(1)

	opts := cafe.PopulateOptions{Include: include}
	if maxFileSize != "" {
		limit, err := humanize.ParseBytes(maxFileSize)
		if err != nil {
			return fmt.Errorf("invalid --max-file-size: %w", err)
		}
		opts.MaxFileSize = int64(limit)
	}
	size, err := humanize.ParseBytes(bufferSize)
	if err != nil {
		return fmt.Errorf("invalid --buffer-size: %w", err)
	}
	opts.BufferSize = int(size)

	logger, closer, err := logging.New(logging.Options{Level: logLevel})
	if err != nil {
		return err
	}
	defer closer.Close()
	opts.Logger = logger

	src, err := cafe.NewOSDelegate(backingRoot)
	if err != nil {
		return fmt.Errorf("backing root: %w", err)
	}
	if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
		return fmt.Errorf("creating cache root: %w", err)
	}
	dst, err := cafe.NewOSDelegate(cacheRoot)
	if err != nil {
		return fmt.Errorf("cache root: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := cafe.Populate(ctx, src, dst, opts)
	logger.Info("cache population finished",
		"files", result.Files,
		"dirs", result.Dirs,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"size", humanize.Bytes(uint64(result.Bytes)),
	)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d entries could not be copied", result.Failed)
	}
	return nil
}
