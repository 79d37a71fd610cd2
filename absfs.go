package cafe

import (
	"github.com/absfs/absfs"
)

// Ensure CacheFS and the OS delegate implement the absfs interfaces at
// compile time
var (
	_ absfs.Filer = (*CacheFS)(nil)
	_ Delegate    = (*CacheFS)(nil)
	_ absfs.Filer = (*OSDelegate)(nil)
)

// FileSystem returns an absfs.FileSystem view of this CacheFS.
// The returned FileSystem maintains its own working directory state
// and adds the convenience methods of absfs.FileSystem (MkdirAll,
// RemoveAll, Chdir and friends) on top of the dispatcher.
//
// Example:
//
//	cfs := cafe.New(delegate, "/var/cache/cafe")
//
//	fs := cfs.FileSystem()
//	fs.Chdir("/app")
//	file, err := fs.Open("config.yml") // cache first, then delegate
func (c *CacheFS) FileSystem() absfs.FileSystem {
	return absfs.ExtendFiler(c)
}

// SymlinkFileSystem returns an absfs.SymlinkFileSystem view of this
// CacheFS.
func (c *CacheFS) SymlinkFileSystem() absfs.SymlinkFileSystem {
	return absfs.ExtendSymlinkFiler(c)
}

// Separator returns the path separator (always forward slash for virtual paths)
func (c *CacheFS) Separator() uint8 {
	return '/'
}

// ListSeparator returns the path list separator (always colon for virtual paths)
func (c *CacheFS) ListSeparator() uint8 {
	return ':'
}
