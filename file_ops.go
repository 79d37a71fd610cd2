package cafe

import (
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/absfs/absfs"
)

// Stat returns file info, asking the cache first. A cache hit is returned
// as is, even if the delegate holds a different file at the same path.
func (c *CacheFS) Stat(name string) (os.FileInfo, error) {
	cachePath := c.resolver.Resolve(name)
	if info, err := c.store.Stat(cachePath); err == nil {
		c.stats.attrHits.Add(1)
		c.logger.Debug("stat served from cache", "path", name, "cache_path", cachePath)
		return info, nil
	}
	c.stats.attrMisses.Add(1)
	c.logger.Debug("stat delegated", "path", name, "cache_path", cachePath)
	return c.delegate.Stat(name)
}

// Lstat returns file info without following symlinks, asking the cache first
func (c *CacheFS) Lstat(name string) (os.FileInfo, error) {
	cachePath := c.resolver.Resolve(name)
	if info, err := c.store.Lstat(cachePath); err == nil {
		c.stats.attrHits.Add(1)
		c.logger.Debug("lstat served from cache", "path", name, "cache_path", cachePath)
		return info, nil
	}
	c.stats.attrMisses.Add(1)
	c.logger.Debug("lstat delegated", "path", name, "cache_path", cachePath)
	return c.delegate.Lstat(name)
}

// Open opens a file for reading
func (c *CacheFS) Open(name string) (absfs.File, error) {
	return c.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile opens a file with the specified flags and permissions.
//
// Only read-only opens consult the cache. The cache handle, when there is
// one, is returned directly and serves every later read. Anything that
// could write, create or truncate goes to the delegate.
func (c *CacheFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	if !isReadOnly(flag) {
		c.stats.openBypass.Add(1)
		c.logger.Debug("open delegated", "path", name, "flags", flag, "reason", "not read-only")
		return c.delegate.OpenFile(name, flag, perm)
	}

	cachePath := c.resolver.Resolve(name)
	if f, ok := c.openCached(cachePath, flag); ok {
		c.stats.openHits.Add(1)
		c.logger.Debug("open served from cache", "path", name, "cache_path", cachePath, "flags", flag)
		return f, nil
	}

	c.stats.openMisses.Add(1)
	c.logger.Debug("open delegated", "path", name, "cache_path", cachePath, "flags", flag, "reason", "cache miss")
	return c.delegate.OpenFile(name, flag, perm)
}

// openCached tries the cache store. Directories count as misses: listing
// a directory is the delegate's job.
func (c *CacheFS) openCached(cachePath string, flag int) (absfs.File, bool) {
	f, err := c.store.OpenFile(cachePath, flag, 0)
	if err != nil {
		return nil, false
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, false
	}
	return f, true
}

// isReadOnly reports whether flag requests read-only access and nothing
// that would modify the target.
func isReadOnly(flag int) bool {
	const accessMode = os.O_RDONLY | os.O_WRONLY | os.O_RDWR
	if flag&accessMode != os.O_RDONLY {
		return false
	}
	return flag&(os.O_CREATE|os.O_TRUNC|os.O_APPEND) == 0
}

// Create creates or truncates a file through the delegate
func (c *CacheFS) Create(name string) (absfs.File, error) {
	return c.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// Mkdir creates a directory through the delegate
func (c *CacheFS) Mkdir(name string, perm os.FileMode) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Mkdir(name, perm)
}

// Remove deletes a file or empty directory through the delegate. Cached
// copies are left in place.
func (c *CacheFS) Remove(name string) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Remove(name)
}

// Rename renames a file or directory through the delegate
func (c *CacheFS) Rename(oldpath, newpath string) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Rename(oldpath, newpath)
}

// Chmod changes file permissions through the delegate
func (c *CacheFS) Chmod(name string, mode os.FileMode) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Chmod(name, mode)
}

// Chown changes file ownership through the delegate
func (c *CacheFS) Chown(name string, uid, gid int) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Chown(name, uid, gid)
}

// Chtimes changes file access and modification times through the delegate
func (c *CacheFS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	c.stats.passthrough.Add(1)
	return c.delegate.Chtimes(name, atime, mtime)
}

// Truncate changes the size of the named file through the delegate
func (c *CacheFS) Truncate(name string, size int64) error {
	c.stats.passthrough.Add(1)

	if truncater, ok := c.delegate.(interface{ Truncate(string, int64) error }); ok {
		return truncater.Truncate(name, size)
	}

	f, err := c.delegate.OpenFile(name, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	if tf, ok := f.(interface{ Truncate(int64) error }); ok {
		return tf.Truncate(size)
	}
	return &os.PathError{Op: "truncate", Path: name, Err: os.ErrInvalid}
}

// ReadDir lists a directory. Enumeration always comes from the delegate;
// the cache only holds a subset of the tree.
func (c *CacheFS) ReadDir(name string) ([]fs.DirEntry, error) {
	c.stats.passthrough.Add(1)

	if reader, ok := c.delegate.(interface{ ReadDir(string) ([]fs.DirEntry, error) }); ok {
		return reader.ReadDir(name)
	}

	dir, err := c.delegate.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	infos, err := dir.Readdir(-1)
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}

// ReadFile reads the named file. It goes through a read-only open, so a
// cached copy wins.
func (c *CacheFS) ReadFile(name string) ([]byte, error) {
	f, err := c.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Sub returns an fs.FS rooted at dir
func (c *CacheFS) Sub(dir string) (fs.FS, error) {
	return absfs.FilerToFS(c, dir)
}
