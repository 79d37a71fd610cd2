package fuse

import (
	"context"
	"log/slog"
	"os"
	"path"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// node is a file, directory or symlink in the mount. It holds no state of
// its own; its virtual path is recomputed from the inode tree on each call.
type node struct {
	gofuse.Inode
	fsys   FileSystem
	logger *slog.Logger
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeCreater = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeUnlinker = (*node)(nil)
var _ gofuse.NodeRmdirer = (*node)(nil)
var _ gofuse.NodeRenamer = (*node)(nil)
var _ gofuse.NodeSymlinker = (*node)(nil)
var _ gofuse.NodeReadlinker = (*node)(nil)

// virtualPath returns the node's path as seen through the mount, with a
// leading slash.
func (n *node) virtualPath() string {
	return "/" + n.Path(n.Root())
}

func (n *node) childPath(name string) string {
	return path.Join(n.virtualPath(), name)
}

func (n *node) newChild(ctx context.Context, info os.FileInfo) *gofuse.Inode {
	child := &node{fsys: n.fsys, logger: n.logger}
	return n.NewInode(ctx, child, gofuse.StableAttr{Mode: fileType(info.Mode())})
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	info, err := n.fsys.Lstat(n.childPath(name))
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(info, &out.Attr)
	return n.newChild(ctx, info), 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := f.(*handle); ok {
		return h.Getattr(ctx, out)
	}
	info, err := n.fsys.Lstat(n.virtualPath())
	if err != nil {
		return toErrno(err)
	}
	fillAttr(info, &out.Attr)
	return 0
}

func (n *node) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	p := n.virtualPath()

	if mode, ok := in.GetMode(); ok {
		if err := n.fsys.Chmod(p, goMode(mode)); err != nil {
			return toErrno(err)
		}
	}

	uid, uidOK := in.GetUID()
	gid, gidOK := in.GetGID()
	if uidOK || gidOK {
		newUID, newGID := -1, -1
		if uidOK {
			newUID = int(uid)
		}
		if gidOK {
			newGID = int(gid)
		}
		if err := n.fsys.Lchown(p, newUID, newGID); err != nil {
			return toErrno(err)
		}
	}

	if size, ok := in.GetSize(); ok {
		if err := n.fsys.Truncate(p, int64(size)); err != nil {
			return toErrno(err)
		}
	}

	atime, atimeOK := in.GetATime()
	mtime, mtimeOK := in.GetMTime()
	if atimeOK || mtimeOK {
		// Chtimes sets both; keep the current value of the one not given.
		if !atimeOK || !mtimeOK {
			info, err := n.fsys.Lstat(p)
			if err != nil {
				return toErrno(err)
			}
			if !atimeOK {
				atime = accessTime(info)
			}
			if !mtimeOK {
				mtime = info.ModTime()
			}
		}
		if err := n.fsys.Chtimes(p, atime, mtime); err != nil {
			return toErrno(err)
		}
	}

	return n.Getattr(ctx, f, out)
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	// Writes arrive with explicit offsets.
	flags = flags &^ syscall.O_APPEND

	f, err := n.fsys.OpenFile(n.virtualPath(), int(flags), 0)
	if err != nil {
		return nil, 0, toErrno(err)
	}
	return newHandle(f), 0, 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	flags = flags &^ syscall.O_APPEND

	f, err := n.fsys.OpenFile(n.childPath(name), int(flags)|os.O_CREATE, goMode(mode))
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	// Stat the new handle rather than the path: a stale cached copy with
	// the same name must not describe the file just created.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, 0, toErrno(err)
	}
	fillAttr(info, &out.Attr)
	return n.newChild(ctx, info), newHandle(f), 0, 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := n.fsys.ReadDir(n.virtualPath())
	if err != nil {
		return nil, toErrno(err)
	}

	list := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		list = append(list, fuse.DirEntry{
			Name: entry.Name(),
			Mode: fileType(entry.Type()),
		})
	}
	return gofuse.NewListDirStream(list), 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	p := n.childPath(name)
	if err := n.fsys.Mkdir(p, goMode(mode)); err != nil {
		return nil, toErrno(err)
	}
	info, err := n.fsys.Lstat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(info, &out.Attr)
	return n.newChild(ctx, info), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.fsys.Remove(n.childPath(name)))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.fsys.Remove(n.childPath(name)))
}

func (n *node) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	// RENAME_EXCHANGE and RENAME_NOREPLACE have no absfs equivalent.
	if flags != 0 {
		n.logger.Debug("rename flags not supported", "name", name, "flags", flags)
		return syscall.EINVAL
	}
	newDir := "/" + newParent.EmbeddedInode().Path(n.Root())
	return toErrno(n.fsys.Rename(n.childPath(name), path.Join(newDir, newName)))
}

func (n *node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	p := n.childPath(name)
	if err := n.fsys.Symlink(target, p); err != nil {
		return nil, toErrno(err)
	}
	info, err := n.fsys.Lstat(p)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(info, &out.Attr)
	return n.newChild(ctx, info), 0
}

func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.fsys.Readlink(n.virtualPath())
	if err != nil {
		return nil, toErrno(err)
	}
	return []byte(target), 0
}
