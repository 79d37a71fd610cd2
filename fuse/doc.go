// Package fuse exposes a cafe CacheFS (or any filesystem with the same
// shape) as a FUSE mount.
//
// The bridge is deliberately thin. Every node operation maps onto one call
// of the wrapped filesystem, and all routing decisions stay in the
// dispatcher:
//
//   - Lookup and Getattr call Lstat, so the cache answers first.
//   - Open calls OpenFile with the kernel's flags. Read-only opens may come
//     back with a cache-backed file, and the handle keeps reading from it
//     until release.
//   - Readdir, Create, Mkdir, Unlink, Rmdir, Rename, Setattr, Symlink and
//     Readlink forward to the matching method, which the dispatcher passes
//     to its delegate.
//
// Errors are translated to errno values. Anything that does not map to a
// known errno becomes EIO.
//
// The mount is single-threaded unless Options.Concurrent is set.
package fuse
