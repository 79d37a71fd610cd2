package cafe

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultShell runs the population command
const DefaultShell = "/bin/sh"

// Bootstrap warms the cache directory once, before any request is served,
// by running an external population command.
//
// The command is run as
//
//	<Command> <BackingRoot> <CacheRoot>
//
// through Shell. Run blocks until it exits. The outcome is recorded in the
// result and logged; it never prevents the caller from mounting.
type Bootstrap struct {
	// Command is the population command. It may contain its own arguments.
	Command string

	// BackingRoot and CacheRoot are appended as the two positional
	// arguments.
	BackingRoot string
	CacheRoot   string

	// Shell interprets Command. Empty uses DefaultShell.
	Shell string

	// Timeout bounds the run. Zero waits for the command however long it
	// takes.
	Timeout time.Duration

	// Stdout and Stderr receive the command's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives the outcome. If nil, nothing is logged.
	Logger *slog.Logger
}

// BootstrapResult describes a finished bootstrap run.
type BootstrapResult struct {
	// ExitCode is the command's exit status, or -1 when it did not exit
	// normally (failed to start, killed, timed out).
	ExitCode int

	// Err is the error returned by the process machinery, if any. It is
	// informational only.
	Err error

	// TimedOut is set when Timeout expired before the command exited.
	TimedOut bool

	Duration time.Duration

	// CachedFiles and CachedBytes describe the cache directory after the
	// run.
	CachedFiles int
	CachedBytes int64
}

// Run executes the population command and waits for it. The context can
// cut the wait short; without a Timeout and with a background context the
// run is bounded only by the command itself.
func (b Bootstrap) Run(ctx context.Context) BootstrapResult {
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	cmd := b.command(ctx)

	logger.Info("populating cache",
		"command", b.Command,
		"backing_root", b.BackingRoot,
		"cache_root", b.CacheRoot,
	)

	start := time.Now()
	err := cmd.Run()
	result := BootstrapResult{
		ExitCode: -1,
		Err:      err,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
	}

	result.CachedFiles, result.CachedBytes = measureTree(b.CacheRoot)

	attrs := []any{
		"exit_code", result.ExitCode,
		"duration", result.Duration.Round(time.Millisecond),
		"files", result.CachedFiles,
		"size", humanize.Bytes(uint64(result.CachedBytes)),
	}
	switch {
	case result.TimedOut:
		logger.Warn("cache population timed out, continuing with a partial cache", attrs...)
	case err != nil:
		logger.Warn("cache population failed, continuing with a partial cache", append(attrs, "error", err)...)
	default:
		logger.Info("cache populated", attrs...)
	}

	return result
}

// command builds the shell invocation. The roots travel as "$1" and "$2"
// so paths with spaces survive intact.
func (b Bootstrap) command(ctx context.Context) *exec.Cmd {
	shell := b.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", b.Command+` "$@"`, "cafe-bootstrap", b.BackingRoot, b.CacheRoot)
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	if cmd.Stderr == nil {
		cmd.Stderr = io.Discard
	}
	// Do not wait for grandchildren holding the output pipes after a kill.
	cmd.WaitDelay = time.Second
	return cmd
}

// measureTree counts regular files and their total size below root.
// Unreadable entries are skipped.
func measureTree(root string) (files int, bytes int64) {
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files++
		bytes += info.Size()
		return nil
	})
	return files, bytes
}
