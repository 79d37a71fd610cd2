// Package cafe provides a caching overlay filesystem that serves attribute
// lookups and read-only opens from a pre-populated cache directory and
// delegates everything else.
package cafe

import (
	"log/slog"
)

// FsName is the filesystem name reported by CacheFS and used as the FUSE
// fsname tag.
const FsName = "cachefs"

// CacheFS routes filesystem operations between a read-only cache directory
// and a delegate filesystem.
type CacheFS struct {
	delegate Delegate
	store    Store
	resolver Resolver
	logger   *slog.Logger
	stats    counters
}

// Option is a functional option for configuring CacheFS
type Option func(*CacheFS)

// WithStore replaces the cache-side store. The default reads the host
// filesystem.
func WithStore(store Store) Option {
	return func(c *CacheFS) {
		c.store = store
	}
}

// WithLogger sets the logger receiving one debug record per dispatch
// decision
func WithLogger(logger *slog.Logger) Option {
	return func(c *CacheFS) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a CacheFS serving cached content from cacheRoot in front of
// delegate.
func New(delegate Delegate, cacheRoot string, opts ...Option) *CacheFS {
	c := &CacheFS{
		delegate: delegate,
		store:    OSStore{},
		resolver: NewResolver(cacheRoot),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of the filesystem
func (c *CacheFS) Name() string {
	return FsName
}

// CacheRoot returns the cache directory
func (c *CacheFS) CacheRoot() string {
	return c.resolver.Root()
}

// Delegate returns the filesystem receiving all non-cached operations
func (c *CacheFS) Delegate() Delegate {
	return c.delegate
}

// CachePath returns the resolved cache path for a virtual path
func (c *CacheFS) CachePath(name string) string {
	return c.resolver.Resolve(name)
}
