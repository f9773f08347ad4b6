//go:build linux

package fsstat

import (
	"golang.org/x/sys/unix"
)

// fromStat converts a raw unix.Stat_t (as returned by Lstat/Fstatat) into
// the normalized Info representation.
func fromStat(st *unix.Stat_t) Info {
	return Info{
		Mode:  unixModeToFS(st.Mode),
		Ino:   st.Ino,
		Dev:   uint64(st.Dev),
		Nlink: uint32(st.Nlink),
		Uid:   st.Uid,
		Gid:   st.Gid,
		Size:  st.Size,
		Atime: st.Atim.Nano(),
		Mtime: st.Mtim.Nano(),
		Ctime: st.Ctim.Nano(),
	}
}

// Lstat stats 'name' without following a terminal symlink.
func Lstat(name string) (Info, error) {
	var st unix.Stat_t
	if err := unix.Lstat(name, &st); err != nil {
		return Info{}, err
	}
	return fromStat(&st), nil
}

// FstatAt stats the entry named 'name' relative to the open directory
// descriptor 'dirfd', without following a terminal symlink. This is the
// primitive the race-free Walker uses instead of path-based Lstat.
func FstatAt(dirfd int, name string) (Info, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return Info{}, err
	}
	return fromStat(&st), nil
}

// Fstat stats an already-open file descriptor.
func Fstat(fd int) (Info, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return Info{}, err
	}
	return fromStat(&st), nil
}
