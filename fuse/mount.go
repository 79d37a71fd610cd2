package fuse

import (
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/absfs/absfs"
	"github.com/absfs/cafe"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// FileSystem is what the bridge needs from the mounted filesystem.
// *cafe.CacheFS implements it.
type FileSystem interface {
	Lstat(name string) (os.FileInfo, error)
	OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error)
	ReadDir(name string) ([]iofs.DirEntry, error)
	Mkdir(name string, perm os.FileMode) error
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Chmod(name string, mode os.FileMode) error
	Lchown(name string, uid, gid int) error
	Chtimes(name string, atime time.Time, mtime time.Time) error
	Truncate(name string, size int64) error
	Readlink(name string) (string, error)
	Symlink(oldname, newname string) error
}

var _ FileSystem = (*cafe.CacheFS)(nil)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// FS serves every request.
	FS FileSystem

	// FsName is the filesystem name shown in the mount table. Empty uses
	// cafe.FsName.
	FsName string

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Concurrent serves requests from several goroutines. The default
	// handles one request at a time.
	Concurrent bool

	// Debug logs every FUSE request and reply.
	Debug bool

	// ExtraOptions are passed to the kernel mount verbatim
	// ("ro", "default_permissions", ...).
	ExtraOptions []string

	// AttrTimeout and EntryTimeout control kernel caching of attributes
	// and names. Zero uses one second.
	AttrTimeout  time.Duration
	EntryTimeout time.Duration

	// Logger receives diagnostic messages. If nil, errors are written to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts the filesystem at the configured mountpoint. The caller
// must call Unmount on the returned Server when done. The mountpoint
// directory is created if it does not exist; a non-empty directory can be
// mounted over.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}

	if options.FsName == "" {
		options.FsName = cafe.FsName
	}
	if options.AttrTimeout == 0 {
		options.AttrTimeout = time.Second
	}
	if options.EntryTimeout == 0 {
		options.EntryTimeout = time.Second
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &node{fsys: options.FS, logger: options.Logger}

	attrTimeout := options.AttrTimeout
	entryTimeout := options.EntryTimeout
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		Logger:          slog.NewLogLogger(options.Logger.Handler(), slog.LevelDebug),
		MountOptions: fuse.MountOptions{
			FsName:         options.FsName,
			Name:           "cafe",
			AllowOther:     options.AllowOther,
			SingleThreaded: !options.Concurrent,
			Debug:          options.Debug,
			Options:        options.ExtraOptions,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("cache filesystem mounted",
		"mountpoint", options.Mountpoint,
		"fsname", options.FsName,
		"concurrent", options.Concurrent,
	)
	return server, nil
}
