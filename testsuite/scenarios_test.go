// scenarios_test.go - end-to-end merge scenarios driving the real
// Walker, IndexStore and Merger together rather than exercising any one
// package in isolation.
package testsuite

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
	"testing"

	"github.com/opencoff/bupindex/exclude"
	"github.com/opencoff/bupindex/index"
	"github.com/opencoff/bupindex/merge"
	"github.com/opencoff/bupindex/walk"
)

func run(t *testing.T, root string, s *index.Store, opt walk.Options) merge.Stats {
	t.Helper()
	stream, err := walk.New(root, opt)
	if err != nil {
		t.Fatalf("walk.New: %v", err)
	}
	defer stream.Close()

	stats, err := merge.New(s, stream).Run(context.Background())
	if err != nil {
		t.Fatalf("merge.Run: %v", err)
	}
	return stats
}

func names(t *testing.T, s *index.Store) []string {
	t.Helper()
	cur, err := s.PreOrder(context.Background(), "")
	if err != nil {
		t.Fatalf("PreOrder: %v", err)
	}
	var out []string
	for {
		n, ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, n.Name)
	}
	return out
}

func assertNames(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// S1 - fresh index: {a, b/, b/x} merged in produces r, a, b, x.
func TestScenarioS1FreshIndex(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a"), "a")
	mustMkdir(t, filepath.Join(root, "b"))
	mustWrite(t, filepath.Join(root, "b", "x"), "x")

	s := openStore(t)
	stats := run(t, root, s, walk.Options{})
	if stats.Added != 4 || stats.Updated != 0 || stats.Deleted != 0 {
		t.Fatalf("S1: got %+v", stats)
	}
	assertNames(t, names(t, s), []string{filepath.Base(root), "a", "b", "x"})
}

// S2 - add a sibling: creating /r/c adds exactly one node.
func TestScenarioS2AddSibling(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a"), "a")

	s := openStore(t)
	run(t, root, s, walk.Options{})

	mustWrite(t, filepath.Join(root, "c"), "c")
	stats := run(t, root, s, walk.Options{})
	if stats.Added != 1 {
		t.Fatalf("S2: got %+v, want exactly one add", stats)
	}
	assertNames(t, names(t, s), []string{filepath.Base(root), "a", "c"})
}

// S3 - delete a subtree: removing /r/b deletes x then b, no adds.
func TestScenarioS3DeleteSubtree(t *testing.T) {
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "b"))
	mustWrite(t, filepath.Join(root, "b", "x"), "x")

	s := openStore(t)
	run(t, root, s, walk.Options{})

	mustRemoveAll(t, filepath.Join(root, "b"))
	stats := run(t, root, s, walk.Options{})
	if stats.Added != 0 || stats.Deleted != 2 {
		t.Fatalf("S3: got %+v, want 0 added, 2 deleted", stats)
	}
	assertNames(t, names(t, s), []string{filepath.Base(root)})
}

// S4 - rename within directory: /r/a -> /r/aa deletes a, adds aa, and
// the resulting pre-order is r, aa, b, x.
func TestScenarioS4RenameWithinDirectory(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a"), "a")
	mustMkdir(t, filepath.Join(root, "b"))
	mustWrite(t, filepath.Join(root, "b", "x"), "x")

	s := openStore(t)
	run(t, root, s, walk.Options{})

	mustRename(t, filepath.Join(root, "a"), filepath.Join(root, "aa"))
	stats := run(t, root, s, walk.Options{})
	if stats.Added != 1 || stats.Deleted != 1 {
		t.Fatalf("S4: got %+v, want 1 added, 1 deleted", stats)
	}
	assertNames(t, names(t, s), []string{filepath.Base(root), "aa", "b", "x"})
}

// S5 - filesystem boundary ("xdev"): a tmpfs mounted on a subdirectory
// is indexed as a directory itself, but with --xdev its contents - living
// on a distinct device - are not descended into.
func TestScenarioS5CrossDeviceBoundaryNotDescended(t *testing.T) {
	root := t.TempDir()
	mnt := filepath.Join(root, "m")
	mustMkdir(t, mnt)

	if err := syscall.Mount("tmpfs", mnt, "tmpfs", 0, ""); err != nil {
		t.Skipf("tmpfs mount not permitted in this environment: %v", err)
	}
	t.Cleanup(func() { syscall.Unmount(mnt, 0) })
	mustWrite(t, filepath.Join(mnt, "inner"), "z")

	s := openStore(t)
	stats := run(t, root, s, walk.Options{OneFS: true})
	if stats.Added != 2 {
		t.Fatalf("S5: got %+v, want 2 added (root, m) and nothing beneath m", stats)
	}
	assertNames(t, names(t, s), []string{filepath.Base(root), "m"})
}

// S6 - exclude regex: excluding '.*\.tmp$' keeps 'keep' in the index and
// drops 'junk.tmp'.
func TestScenarioS6ExcludeRegex(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "keep"), "k")
	mustWrite(t, filepath.Join(root, "junk.tmp"), "j")

	re := regexp.MustCompile(`.*\.tmp$`)
	matcher := exclude.New(nil, []*regexp.Regexp{re})

	s := openStore(t)
	run(t, root, s, walk.Options{Excludes: matcher})
	assertNames(t, names(t, s), []string{filepath.Base(root), "keep"})
}

func openStore(t *testing.T) *index.Store {
	t.Helper()
	s, err := index.Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatal(err)
	}
}

func mustRemoveAll(t *testing.T, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatal(err)
	}
}

func mustRename(t *testing.T, src, dst string) {
	t.Helper()
	if err := os.Rename(src, dst); err != nil {
		t.Fatal(err)
	}
}
