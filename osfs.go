package cafe

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/absfs/absfs"
	"github.com/absfs/osfs"
)

// OSStore reads the cache directory straight from the host filesystem.
// Names are handed to the kernel verbatim, so "/cache//a/../b" is resolved
// by the operating system and not by path cleaning.
type OSStore struct{}

// Stat implements Store
func (OSStore) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// Lstat implements Store
func (OSStore) Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(name)
}

// OpenFile implements Store
func (OSStore) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OSDelegate is a Delegate backed by a directory of the host filesystem,
// reached through osfs. Virtual paths are cleaned and rebased below the
// root, so callers cannot climb out of it.
type OSDelegate struct {
	root string
	base string
	fs   absfs.SymlinkFileSystem
}

var _ Delegate = (*OSDelegate)(nil)

// NewOSDelegate returns a delegate rooted at dir, which must be an existing
// directory.
func NewOSDelegate(dir string) (*OSDelegate, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	fsys, err := osfs.NewFS()
	if err != nil {
		return nil, err
	}
	base := osfs.FromNative(abs)
	info, err := fsys.Stat(base)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "open", Path: abs, Err: syscall.ENOTDIR}
	}
	return &OSDelegate{root: abs, base: base, fs: fsys}, nil
}

// Root returns the host directory backing this delegate
func (d *OSDelegate) Root() string {
	return d.root
}

// rebase maps a virtual path below the root.
func (d *OSDelegate) rebase(name string) string {
	return path.Join(d.base, cleanPath(name))
}

// OpenFile implements absfs.Filer
func (d *OSDelegate) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	return d.fs.OpenFile(d.rebase(name), flag, perm)
}

// Mkdir implements absfs.Filer
func (d *OSDelegate) Mkdir(name string, perm os.FileMode) error {
	return d.fs.Mkdir(d.rebase(name), perm)
}

// MkdirAll creates a directory and all missing parents
func (d *OSDelegate) MkdirAll(name string, perm os.FileMode) error {
	return d.fs.MkdirAll(d.rebase(name), perm)
}

// Remove implements absfs.Filer
func (d *OSDelegate) Remove(name string) error {
	return d.fs.Remove(d.rebase(name))
}

// RemoveAll removes a path and any children it contains
func (d *OSDelegate) RemoveAll(name string) error {
	return d.fs.RemoveAll(d.rebase(name))
}

// Rename implements absfs.Filer
func (d *OSDelegate) Rename(oldpath, newpath string) error {
	return d.fs.Rename(d.rebase(oldpath), d.rebase(newpath))
}

// Stat implements absfs.Filer
func (d *OSDelegate) Stat(name string) (os.FileInfo, error) {
	return d.fs.Stat(d.rebase(name))
}

// Lstat returns file info without following symlinks
func (d *OSDelegate) Lstat(name string) (os.FileInfo, error) {
	return d.fs.Lstat(d.rebase(name))
}

// Chmod implements absfs.Filer
func (d *OSDelegate) Chmod(name string, mode os.FileMode) error {
	return d.fs.Chmod(d.rebase(name), mode)
}

// Chtimes implements absfs.Filer
func (d *OSDelegate) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return d.fs.Chtimes(d.rebase(name), atime, mtime)
}

// Chown implements absfs.Filer
func (d *OSDelegate) Chown(name string, uid, gid int) error {
	return d.fs.Chown(d.rebase(name), uid, gid)
}

// Lchown changes ownership without following symlinks
func (d *OSDelegate) Lchown(name string, uid, gid int) error {
	return d.fs.Lchown(d.rebase(name), uid, gid)
}

// Readlink returns the stored target of a symlink. Targets are not
// rewritten; an absolute target refers to the host filesystem.
func (d *OSDelegate) Readlink(name string) (string, error) {
	return d.fs.Readlink(d.rebase(name))
}

// Symlink creates newname pointing at oldname
func (d *OSDelegate) Symlink(oldname, newname string) error {
	return d.fs.Symlink(oldname, d.rebase(newname))
}

// Truncate changes the size of the named file
func (d *OSDelegate) Truncate(name string, size int64) error {
	return d.fs.Truncate(d.rebase(name), size)
}

// ReadDir reads the named directory
func (d *OSDelegate) ReadDir(name string) ([]fs.DirEntry, error) {
	return d.fs.ReadDir(d.rebase(name))
}

// ReadFile reads the named file
func (d *OSDelegate) ReadFile(name string) ([]byte, error) {
	return d.fs.ReadFile(d.rebase(name))
}

// Sub returns an fs.FS rooted at dir
func (d *OSDelegate) Sub(dir string) (fs.FS, error) {
	return absfs.FilerToFS(d, dir)
}

// Separator returns the virtual path separator
func (d *OSDelegate) Separator() uint8 {
	return '/'
}

// ListSeparator returns the virtual path list separator
func (d *OSDelegate) ListSeparator() uint8 {
	return ':'
}

// cleanPath normalizes a virtual path for the delegate side. The cache side
// never goes through here.
func cleanPath(name string) string {
	cleaned := filepath.ToSlash(filepath.Clean("/" + name))
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}
