// Package walk implements a race-free, single-threaded, fd-relative
// directory walker: entries are produced in depth-first pre-order with
// byte-sorted siblings, using directory file descriptors (rather than
// path strings) to navigate, so that an adversary swapping a directory
// for a symlink between listing and descent cannot redirect the walk.
//
// (c) 2024- the bupindex authors
package walk

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencoff/bupindex/fsstat"
)

// Entry is a single (name, depth, stat) tuple produced by the Walker.
type Entry struct {
	// Name is the entry's base name (raw bytes, not required to be
	// valid text).
	Name string
	// Path is the full path from the walk's root, joined with '/'.
	Path string
	// Depth is caller-relative: the root of a walk is emitted at
	// Options.SeedDepth, and each descent adds one.
	Depth int
	Stat  fsstat.Info
}

// Matcher decides whether a candidate path should be skipped. It is
// satisfied by *exclude.Matcher; kept as an interface here so walk does
// not need to import the exclude package.
type Matcher interface {
	Excludes(path string) bool
}

// Options controls the behavior of a single Walker invocation. There is
// deliberately no "follow symlinks" option: indexed path segments are
// never followed, so a symlink is always reported as itself, never
// descended.
type Options struct {
	// OneFS ("xdev"), if set, stops descent at filesystem boundaries:
	// a child directory whose device differs from the root's is
	// still yielded, but not descended.
	OneFS bool

	// Excludes decides whether a candidate path should be skipped
	// (and, for directories, not descended). May be nil.
	Excludes Matcher

	// RepoPath, if non-empty, names a directory that must be skipped
	// identically to an Excludes match - typically the backup
	// repository's own storage location.
	RepoPath string

	// SeedDepth is the depth assigned to the root entry; children
	// are SeedDepth+1, SeedDepth+2, and so on. Depths are treated as
	// opaque caller-chosen integers and never renormalized here.
	SeedDepth int

	// Tally, if non-nil, is incremented once per silently-skipped
	// transient condition (vanished entry, vanished directory,
	// symlink race).
	Tally Tally
}

// Tally receives one call per transient condition the Walker skips, so
// callers can maintain a process-wide skipped-entry counter without the
// Walker depending on any particular counter type.
type Tally interface {
	Transient()
}

// Error represents an error encountered while walking.
type Error struct {
	Op   string
	Name string
	Err  error
}

// Error returns a string representation of Error.
func (e *Error) Error() string {
	return "walk: " + e.Op + " '" + e.Name + "': " + e.Err.Error()
}

// Unwrap returns the underlying wrapped error.
func (e *Error) Unwrap() error { return e.Err }

var _ error = &Error{}

// frame tracks one open directory while its children are processed.
type frame struct {
	fd    int
	file  *os.File // wraps fd so we can reuse stdlib Readdirnames
	path  string
	depth int
	names []string
	idx   int
}

// Stream is a pull iterator over one root's worth of Walker output. Call
// Next repeatedly until it reports no more entries.
type Stream struct {
	opt     Options
	stack   []*frame
	root    *Entry
	rootDev uint64
	haveDev bool
	pending error
	done    bool
}

// New opens 'root' and prepares a Stream that will yield root (and,
// if it is a directory, its descendants) in pre-order. 'root' itself is
// opened relative to the process cwd (AT_FDCWD); no process-wide state
// (cwd) is changed.
func New(root string, opt Options) (*Stream, error) {
	s := &Stream{opt: opt}

	if opt.Excludes != nil && opt.Excludes.Excludes(root) {
		s.done = true
		return s, nil
	}
	if opt.RepoPath != "" && filepath.Clean(root) == filepath.Clean(opt.RepoPath) {
		s.done = true
		return s, nil
	}

	st, err := fsstat.Lstat(root)
	if err != nil {
		if isNotExist(err) {
			// root vanished before the walk could even start: a
			// transient condition like any other vanished entry, not
			// a reason to abort walking the caller's other roots.
			s.tally()
			s.done = true
			return s, nil
		}
		return nil, &Error{"lstat", root, err}
	}

	e := Entry{Name: filepath.Base(root), Path: root, Depth: opt.SeedDepth, Stat: st}
	s.root = &e

	if !st.IsDir() {
		// non-directory root: a single entry, nothing to descend.
		s.done = false
		return s, nil
	}

	if opt.OneFS {
		s.rootDev = st.Dev
		s.haveDev = true
	}

	fr, err := s.openDir(atFDCWD, root, root, opt.SeedDepth)
	if err != nil {
		if isTransientDescent(err) {
			// root vanished or was swapped for a symlink or
			// non-directory: report root entry, then end (no children).
			return s, nil
		}
		return nil, &Error{"opendir", root, err}
	}
	s.stack = append(s.stack, fr)
	return s, nil
}

// Next returns the next entry in pre-order. ok is false when the stream
// is exhausted; err is non-nil only on an unexpected error, which
// terminates the stream.
func (s *Stream) Next() (Entry, bool, error) {
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		s.done = true
		return Entry{}, false, err
	}
	if s.root != nil {
		e := *s.root
		s.root = nil
		return e, true, nil
	}
	if s.done {
		return Entry{}, false, nil
	}

	for {
		if len(s.stack) == 0 {
			s.done = true
			return Entry{}, false, nil
		}

		top := s.stack[len(s.stack)-1]
		if top.idx >= len(top.names) {
			top.file.Close()
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}

		name := top.names[top.idx]
		top.idx++

		fp := joinPath(top.path, name)

		if s.opt.Excludes != nil && s.opt.Excludes.Excludes(fp) {
			continue
		}
		if s.opt.RepoPath != "" && fp == filepath.Clean(s.opt.RepoPath) {
			continue
		}

		st, err := fsstat.FstatAt(top.fd, name)
		if err != nil {
			if isNotExist(err) {
				s.tally()
				continue
			}
			return Entry{}, false, &Error{"lstat", fp, err}
		}

		entry := Entry{Name: name, Path: fp, Depth: top.depth + 1, Stat: st}

		if st.IsDir() {
			if s.haveDev && st.Dev != s.rootDev {
				// filesystem boundary: yield but don't descend.
				return entry, true, nil
			}

			fr, err := s.openDir(top.fd, name, fp, top.depth+1)
			if err != nil {
				if isTransientDescent(err) {
					s.tally()
					return entry, true, nil
				}
				s.pending = &Error{"opendir", fp, err}
				return entry, true, nil
			}
			s.stack = append(s.stack, fr)
		}

		return entry, true, nil
	}
}

// openDir opens 'name' relative to 'parentFd' (or the process cwd, for
// the root), without following a terminal symlink, and reads its sorted
// child names. It does not mutate the process's current directory.
func (s *Stream) openDir(parentFd int, name, path string, depth int) (*frame, error) {
	fd, err := openatNoFollow(parentFd, name)
	if err != nil {
		return nil, err
	}

	f := os.NewFile(uintptr(fd), path)
	names, err := f.Readdirnames(-1)
	if err != nil {
		if isEINVAL(err) {
			names = nil
		} else {
			f.Close()
			return nil, err
		}
	}
	sort.Strings(names)

	return &frame{fd: fd, file: f, path: path, depth: depth, names: names}, nil
}

func joinPath(parent, name string) string {
	if parent == "" || parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func (s *Stream) tally() {
	if s.opt.Tally != nil {
		s.opt.Tally.Transient()
	}
}

// Close releases any directory descriptors still held by the stream.
// It is safe to call after the stream is exhausted.
func (s *Stream) Close() error {
	for _, fr := range s.stack {
		fr.file.Close()
	}
	s.stack = nil
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
