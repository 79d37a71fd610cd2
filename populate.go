package cafe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"

	"github.com/absfs/absfs"
)

const defaultCopyBufferSize = 32 * 1024

// PopulateOptions selects what Populate copies
type PopulateOptions struct {
	// Include holds glob patterns (path.Match syntax). A file is copied
	// when its virtual path or its base name matches one of them. Empty
	// copies everything.
	Include []string

	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64

	// BufferSize is the copy buffer size. Zero uses 32KB.
	BufferSize int

	// Logger receives one warning per entry that could not be copied.
	// Nil discards them.
	Logger *slog.Logger
}

// PopulateResult summarizes a Populate run
type PopulateResult struct {
	Files   int
	Dirs    int
	Bytes   int64
	Skipped int
	Failed  int
}

// Populate mirrors files from src into dst, preserving their virtual paths,
// modes and modification times. It is the in-process counterpart of a
// population command: point src at the backing root and dst at the cache
// root.
//
// Symlinks and special files are skipped. Existing files in dst are
// replaced, read-only ones included. An entry that cannot be read or
// written is logged and counted in Failed, and the walk goes on; only a
// canceled context or an unreadable src root stops it.
func Populate(ctx context.Context, src, dst Delegate, opts PopulateOptions) (PopulateResult, error) {
	for _, pattern := range opts.Include {
		if _, err := path.Match(pattern, ""); err != nil {
			return PopulateResult{}, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultCopyBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &populator{
		src:    src,
		dst:    absfs.ExtendFiler(dst),
		opts:   opts,
		logger: logger,
		buf:    make([]byte, opts.BufferSize),
		dirs:   make(map[string]bool),
	}
	err := p.walk(ctx, "/")
	return p.result, err
}

type populator struct {
	src    Delegate
	dst    absfs.FileSystem
	opts   PopulateOptions
	logger *slog.Logger
	buf    []byte
	dirs   map[string]bool
	result PopulateResult
}

func (p *populator) walk(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := p.src.OpenFile(dir, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open source directory: %w", err)
	}
	infos, err := f.Readdir(-1)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read source directory %s: %w", dir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	for _, info := range infos {
		if info.Name() == "." || info.Name() == ".." {
			continue
		}
		name := path.Join(dir, info.Name())
		switch {
		case info.IsDir():
			if err := p.walk(ctx, name); err != nil {
				if ctx.Err() != nil {
					return err
				}
				p.fail(name, err)
			}
		case info.Mode().IsRegular():
			if !p.selected(name, info) {
				p.result.Skipped++
				continue
			}
			if err := p.copyFile(name, info); err != nil {
				p.fail(name, err)
			}
		default:
			p.result.Skipped++
		}
	}
	return nil
}

func (p *populator) fail(name string, err error) {
	p.result.Failed++
	p.logger.Warn("cannot populate cache entry", "path", name, "error", err)
}

func (p *populator) selected(name string, info os.FileInfo) bool {
	if p.opts.MaxFileSize > 0 && info.Size() > p.opts.MaxFileSize {
		return false
	}
	if len(p.opts.Include) == 0 {
		return true
	}
	for _, pattern := range p.opts.Include {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(name)); ok {
			return true
		}
	}
	return false
}

// copyFile copies a regular file to the destination
func (p *populator) copyFile(name string, info os.FileInfo) error {
	if err := p.ensureParents(name); err != nil {
		return err
	}

	srcFile, err := p.src.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	// A previous run may have left a read-only copy behind.
	if existing, err := p.dst.Stat(name); err == nil && !existing.IsDir() {
		if err := p.dst.Remove(name); err != nil {
			return fmt.Errorf("failed to replace destination file: %w", err)
		}
	}

	dstFile, err := p.dst.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	n, err := io.CopyBuffer(dstFile, srcFile, p.buf)
	if closeErr := dstFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	// Preserve file metadata
	if err := p.dst.Chmod(name, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := p.dst.Chtimes(name, info.ModTime(), info.ModTime()); err != nil {
		p.logger.Debug("cannot preserve modification time", "path", name, "error", err)
	}

	p.result.Files++
	p.result.Bytes += n
	return nil
}

// ensureParents creates the parent directories of name in the destination,
// copying their modes from the source.
func (p *populator) ensureParents(name string) error {
	dir := path.Dir(name)
	if dir == "/" || dir == "." || p.dirs[dir] {
		return nil
	}
	if err := p.ensureParents(dir); err != nil {
		return err
	}

	perm := os.FileMode(0755)
	if info, err := p.src.Stat(dir); err == nil {
		perm = info.Mode().Perm() | 0700
	}
	if _, err := p.dst.Stat(dir); err != nil {
		if err := p.dst.Mkdir(dir, perm); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		p.result.Dirs++
	}
	p.dirs[dir] = true
	return nil
}
