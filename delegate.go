package cafe

import (
	"os"

	"github.com/absfs/absfs"
)

// Delegate is the full-featured filesystem behind a CacheFS. It receives
// every operation the cache does not answer, and every fallback.
//
// memfs, osfs and any other absfs filesystem with symlink support satisfy it.
type Delegate interface {
	absfs.Filer

	Lstat(name string) (os.FileInfo, error)
	Lchown(name string, uid, gid int) error
	Readlink(name string) (string, error)
	Symlink(oldname, newname string) error
}

// Store is the read-only view of the cache directory. Names passed to a
// Store are already resolved cache paths.
type Store interface {
	Stat(name string) (os.FileInfo, error)
	Lstat(name string) (os.FileInfo, error)
	OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error)
}
