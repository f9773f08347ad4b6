//go:build linux

package fsstat

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// unixModeToFS converts a raw st_mode value (as populated by stat(2)) into
// the portable fs.FileMode bits the rest of the module works with.
func unixModeToFS(m uint32) fs.FileMode {
	fm := fs.FileMode(m & 0777)

	switch m & unix.S_IFMT {
	case unix.S_IFDIR:
		fm |= fs.ModeDir
	case unix.S_IFLNK:
		fm |= fs.ModeSymlink
	case unix.S_IFCHR:
		fm |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFBLK:
		fm |= fs.ModeDevice
	case unix.S_IFIFO:
		fm |= fs.ModeNamedPipe
	case unix.S_IFSOCK:
		fm |= fs.ModeSocket
	}

	if m&unix.S_ISUID != 0 {
		fm |= fs.ModeSetuid
	}
	if m&unix.S_ISGID != 0 {
		fm |= fs.ModeSetgid
	}
	if m&unix.S_ISVTX != 0 {
		fm |= fs.ModeSticky
	}

	return fm
}
