//go:build linux

package fsstat

import (
	"io/fs"
	"testing"

	"golang.org/x/sys/unix"
)

func TestUnixModeToFSFileKinds(t *testing.T) {
	cases := []struct {
		name string
		raw  uint32
		want fs.FileMode
	}{
		{"regular", unix.S_IFREG | 0644, 0644},
		{"directory", unix.S_IFDIR | 0755, fs.ModeDir | 0755},
		{"symlink", unix.S_IFLNK | 0777, fs.ModeSymlink | 0777},
		{"chardev", unix.S_IFCHR | 0666, fs.ModeDevice | fs.ModeCharDevice | 0666},
		{"blockdev", unix.S_IFBLK | 0660, fs.ModeDevice | 0660},
		{"fifo", unix.S_IFIFO | 0600, fs.ModeNamedPipe | 0600},
		{"socket", unix.S_IFSOCK | 0600, fs.ModeSocket | 0600},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := unixModeToFS(c.raw)
			if got != c.want {
				t.Fatalf("unixModeToFS(%#o): got %v, want %v", c.raw, got, c.want)
			}
		})
	}
}

func TestUnixModeToFSSpecialBits(t *testing.T) {
	cases := []struct {
		name string
		raw  uint32
		bit  fs.FileMode
	}{
		{"setuid", unix.S_IFREG | unix.S_ISUID | 0755, fs.ModeSetuid},
		{"setgid", unix.S_IFREG | unix.S_ISGID | 0755, fs.ModeSetgid},
		{"sticky", unix.S_IFDIR | unix.S_ISVTX | 0777, fs.ModeSticky},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := unixModeToFS(c.raw)
			if got&c.bit == 0 {
				t.Fatalf("unixModeToFS(%#o): want %v bit set, got %v", c.raw, c.bit, got)
			}
		})
	}
}

func TestUnixModeToFSPermBitsPreserved(t *testing.T) {
	got := unixModeToFS(unix.S_IFREG | 0640)
	if got.Perm() != 0640 {
		t.Fatalf("perm bits: got %#o, want %#o", got.Perm(), 0640)
	}
}
