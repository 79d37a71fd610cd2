package fuse

import (
	"errors"
	iofs "io/fs"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// accessTime returns the last access time of a host file. Other
// filesystems do not track it and report the modification time.
func accessTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return statAtime(st)
	}
	return info.ModTime()
}

// fillAttr copies file metadata into a FUSE attribute. Host files carry a
// full stat record; other filesystems only provide mode, size and mtime,
// and are reported as owned by the mounting user.
func fillAttr(info os.FileInfo, out *fuse.Attr) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		out.FromStat(st)
		return
	}

	out.Mode = unixMode(info.Mode())
	out.Size = uint64(info.Size())
	out.Blocks = (out.Size + 511) / 512
	out.Nlink = 1
	if info.IsDir() {
		out.Nlink = 2
	}
	out.Owner = fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}

	mtime := info.ModTime()
	out.SetTimes(&mtime, &mtime, &mtime)
}

// unixMode converts a Go file mode to st_mode bits.
func unixMode(m os.FileMode) uint32 {
	mode := uint32(m.Perm())

	switch {
	case m.IsDir():
		mode |= syscall.S_IFDIR
	case m&os.ModeSymlink != 0:
		mode |= syscall.S_IFLNK
	case m&os.ModeNamedPipe != 0:
		mode |= syscall.S_IFIFO
	case m&os.ModeSocket != 0:
		mode |= syscall.S_IFSOCK
	case m&os.ModeCharDevice != 0:
		mode |= syscall.S_IFCHR
	case m&os.ModeDevice != 0:
		mode |= syscall.S_IFBLK
	default:
		mode |= syscall.S_IFREG
	}

	if m&os.ModeSetuid != 0 {
		mode |= syscall.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= syscall.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= syscall.S_ISVTX
	}
	return mode
}

// fileType returns only the S_IFMT bits of m.
func fileType(m os.FileMode) uint32 {
	return unixMode(m) & syscall.S_IFMT
}

// goMode converts st_mode permission bits from the kernel to a Go file
// mode. The file type bits are dropped.
func goMode(mode uint32) os.FileMode {
	m := os.FileMode(mode & 0o777)
	if mode&syscall.S_ISUID != 0 {
		m |= os.ModeSetuid
	}
	if mode&syscall.S_ISGID != 0 {
		m |= os.ModeSetgid
	}
	if mode&syscall.S_ISVTX != 0 {
		m |= os.ModeSticky
	}
	return m
}

// toErrno maps an error from the filesystem to the errno the kernel
// should see. Unknown errors become EIO.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, iofs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, iofs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, iofs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, iofs.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, iofs.ErrClosed):
		return syscall.EBADF
	default:
		return syscall.EIO
	}
}
