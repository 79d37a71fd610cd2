package fuse

import (
	"context"
	"errors"
	"io"
	"sync"
	"syscall"

	"github.com/absfs/absfs"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// handle is an open file. It wraps whatever the filesystem returned from
// OpenFile; for a read-only open that may be the cached copy.
type handle struct {
	mu   sync.Mutex
	file absfs.File
}

var _ gofuse.FileReader = (*handle)(nil)
var _ gofuse.FileWriter = (*handle)(nil)
var _ gofuse.FileFlusher = (*handle)(nil)
var _ gofuse.FileFsyncer = (*handle)(nil)
var _ gofuse.FileReleaser = (*handle)(nil)
var _ gofuse.FileGetattrer = (*handle)(nil)

func newHandle(f absfs.File) *handle {
	return &handle{file: f}
}

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.ReadAt(dest, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.WriteAt(data, off)
	if err != nil {
		return uint32(n), toErrno(err)
	}
	return uint32(n), 0
}

// Flush is called on every close(2) of a descriptor. Data is written
// through on each Write, so there is nothing to push.
func (h *handle) Flush(ctx context.Context) syscall.Errno {
	return 0
}

func (h *handle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	return toErrno(h.file.Sync())
}

func (h *handle) Release(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	return toErrno(h.file.Close())
}

func (h *handle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()

	info, err := h.file.Stat()
	if err != nil {
		return toErrno(err)
	}
	fillAttr(info, &out.Attr)
	return 0
}
