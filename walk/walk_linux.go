//go:build linux

package walk

import (
	"errors"

	"golang.org/x/sys/unix"
)

// atFDCWD mirrors AT_FDCWD's role as "resolve relative to the process's
// current working directory" for the very first openDir call.
const atFDCWD = unix.AT_FDCWD

// openatNoFollow opens 'name' relative to 'parentFd' (or the process cwd
// when parentFd == atFDCWD), refusing to follow a terminal symlink and
// requiring the result to be a directory. This is the primitive that
// makes the walk race-free: once opened, the fd names the exact inode
// that was listed, regardless of what the path now resolves to.
func openatNoFollow(parentFd int, name string) (int, error) {
	return unix.Openat(parentFd, name,
		unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_NONBLOCK|unix.O_CLOEXEC|unix.O_LARGEFILE,
		0)
}

// isEINVAL reports whether err is the "invalid argument" errno Linux
// returns when reading the contents of a directory that was removed
// out from under us.
func isEINVAL(err error) bool {
	return errors.Is(err, unix.EINVAL)
}

// isTransientDescent reports whether err is one of the conditions that
// should silently skip a subtree rather than abort the walk: the
// directory vanished, or following it would loop (eg a symlink swapped
// in after listing, defeated by O_NOFOLLOW).
func isTransientDescent(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ELOOP) || errors.Is(err, unix.ENOTDIR)
}
