// main.go - bupindex: maintains the persistent index for one or more roots.
//
// (c) 2024- the bupindex authors
package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	flag "github.com/opencoff/pflag"

	"github.com/opencoff/bupindex/errtally"
	"github.com/opencoff/bupindex/index"
	"github.com/opencoff/bupindex/internal/cliutil"
	"github.com/opencoff/bupindex/internal/workpool"
	"github.com/opencoff/bupindex/merge"
	"github.com/opencoff/bupindex/pathmodel"
	"github.com/opencoff/bupindex/walk"
)

var Z = path.Base(os.Args[0])

// outMu serializes stdout writes across the workpool's goroutines, one
// per reduced root, so lines from concurrent roots don't interleave.
var outMu sync.Mutex

func printf(format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Printf(format, args...)
}

func main() {
	var update, doPrint, modified, status, check, clear bool
	var xdev, verbose, help bool
	var indexfile, repoPath string
	var exFlags cliutil.ExcludeFlags

	fs := flag.NewFlagSet(Z, flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show help and exit [False]")
	fs.BoolVarP(&update, "update", "u", false, "Update the index from the filesystem [default mode]")
	fs.BoolVarP(&doPrint, "print", "p", false, "Print the index in pre-order [False]")
	fs.BoolVarP(&modified, "modified", "m", false, "Update the index and report mutation counts [False]")
	fs.BoolVarP(&status, "status", "s", false, "Print a summary of each index, without walking [False]")
	fs.BoolVarP(&check, "check", "c", false, "Verify index invariants, without walking [False]")
	fs.BoolVarP(&clear, "clear", "", false, "Discard the entire index [False]")
	fs.StringVarP(&indexfile, "indexfile", "", "", "Use `FILE` as the index (single-root only) [<root>/bupindex.sqlite]")
	fs.StringVarP(&repoPath, "repo-path", "", "", "Skip `PATH`, the backup repository's own storage location, if it falls under a crawl root")
	fs.BoolVarP(&xdev, "xdev", "x", false, "Don't cross filesystem boundaries [False]")
	fs.StringArrayVarP(&exFlags.Literal, "exclude", "", nil, "Exclude `PATH` (repeatable)")
	fs.StringArrayVarP(&exFlags.LiteralFrom, "exclude-from", "", nil, "Read excluded literal paths from `FILE` (repeatable)")
	fs.StringArrayVarP(&exFlags.Regex, "exclude-rx", "", nil, "Exclude paths matching `RX` (repeatable)")
	fs.StringArrayVarP(&exFlags.RegexFrom, "exclude-rx-from", "", nil, "Read exclude regexes from `FILE` (repeatable)")
	fs.BoolVarP(&verbose, "verbose", "v", false, "Print progress to stderr [False]")
	fs.SetOutput(os.Stdout)

	if err := fs.Parse(os.Args[1:]); err != nil {
		cliutil.Die(Z, "%s", err)
	}
	if help {
		usage(fs)
	}

	roots := fs.Args()
	if len(roots) == 0 {
		cliutil.Die(Z, "Usage: %s [options] path [path...]", Z)
	}

	mode := resolveMode(modeFlags{update, doPrint, modified, status, check, clear})
	if indexfile != "" && len(roots) > 1 {
		cliutil.Die(Z, "--indexfile names a single file; it cannot be shared by %d roots", len(roots))
	}
	if indexfile != "" && mode.kind == modeClear {
		cliutil.Die(Z, "--clear does not accept --indexfile")
	}

	matcher, err := cliutil.BuildMatcher(exFlags)
	if err != nil {
		cliutil.Die(Z, "%s", err)
	}

	reduced, err := pathmodel.ReduceRoots(roots, filepath.EvalSymlinks)
	if err != nil {
		cliutil.Die(Z, "%s", err)
	}

	var tally errtally.Counter
	nworkers := len(reduced)
	pool := workpool.New[pathmodel.ReducedRoot](nworkers, func(_ int, r pathmodel.ReducedRoot) error {
		file := indexfile
		if file == "" {
			file = filepath.Join(r.Canonical, "bupindex.sqlite")
		}
		if verbose {
			cliutil.Warn(Z, "%s: %s -> %s", mode.name, r.Canonical, file)
		}
		return runRoot(r.Canonical, file, mode, xdev, repoPath, matcher, &tally)
	})
	for _, r := range reduced {
		pool.Submit(r)
	}
	pool.Close()

	if err := pool.Wait(); err != nil {
		cliutil.Die(Z, "%s", err)
	}

	if tally.Count() > 0 {
		fmt.Fprintf(os.Stderr, "%s: %d entries skipped (transient errors)\n", Z, tally.Count())
	}
	os.Exit(tally.ExitCode())
}

// modeFlags holds the raw boolean flags so resolveMode can validate
// their combination in one place.
type modeFlags struct {
	update, print, modified, status, check, clear bool
}

type modeKind int

const (
	modeUpdate modeKind = iota
	modeModified
	modeStatus
	modeCheck
	modeClear
)

type runMode struct {
	kind      modeKind
	name      string
	alsoPrint bool
}

// resolveMode validates that --modified/--status/--check/--clear are
// mutually exclusive, that --print only combines with the default
// update mode, and picks the single mode to run.
func resolveMode(f modeFlags) runMode {
	exclusive := 0
	if f.modified {
		exclusive++
	}
	if f.status {
		exclusive++
	}
	if f.check {
		exclusive++
	}
	if f.clear {
		exclusive++
	}
	if exclusive > 1 {
		cliutil.Die(Z, "--modified, --status, --check and --clear are mutually exclusive")
	}
	if exclusive == 1 && f.print {
		cliutil.Die(Z, "--print may only be combined with --update")
	}
	if exclusive == 1 && f.update {
		cliutil.Die(Z, "--update may not be combined with --modified, --status, --check or --clear")
	}

	switch {
	case f.clear:
		return runMode{kind: modeClear, name: "clear"}
	case f.check:
		return runMode{kind: modeCheck, name: "check"}
	case f.status:
		return runMode{kind: modeStatus, name: "status"}
	case f.modified:
		return runMode{kind: modeModified, name: "modified"}
	default:
		return runMode{kind: modeUpdate, name: "update", alsoPrint: f.print}
	}
}

// runRoot performs one reduced root's worth of work against its own
// index.Store. It is safe to run concurrently with other roots: each
// invocation owns a distinct Store handle and a distinct filesystem
// subtree.
func runRoot(root, indexfile string, mode runMode, xdev bool, repoPath string, matcher interface {
	Excludes(string) bool
}, tally *errtally.Counter) error {
	ctx := context.Background()

	switch mode.kind {
	case modeClear:
		s, err := index.Open(ctx, indexfile)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Clear(ctx); err != nil {
			s.Abort()
			return err
		}
		return s.Commit()

	case modeCheck:
		s, err := index.OpenReadOnly(ctx, indexfile)
		if err != nil {
			return err
		}
		defer s.Close()
		report, err := s.Check(ctx)
		if err != nil {
			return err
		}
		printf("%s: run %s, %d nodes, %d violations\n", root, report.RunID, report.Nodes, len(report.Violations))
		for _, v := range report.Violations {
			printf("  %s\n", v.String())
		}
		if !report.OK() {
			tally.Transient()
		}
		return nil

	case modeStatus:
		s, err := index.OpenReadOnly(ctx, indexfile)
		if err != nil {
			return err
		}
		defer s.Close()
		nodes, err := s.PostOrder(ctx, "")
		if err != nil {
			return err
		}
		printf("%s: %s, %d nodes\n", root, indexfile, len(nodes))
		return nil

	case modeModified:
		stats, err := mergeRoot(ctx, root, indexfile, xdev, repoPath, matcher, tally)
		if err != nil {
			return err
		}
		printf("%s: %d added, %d updated, %d deleted\n", root, stats.Added, stats.Updated, stats.Deleted)
		return nil

	default: // modeUpdate
		_, err := mergeRoot(ctx, root, indexfile, xdev, repoPath, matcher, tally)
		if err != nil {
			return err
		}
		if mode.alsoPrint {
			return printTree(ctx, indexfile)
		}
		return nil
	}
}

// mergeRoot runs one Merger pass to completion, committing on success and
// aborting (leaving the on-disk index untouched) on any unexpected error.
func mergeRoot(ctx context.Context, root, indexfile string, xdev bool, repoPath string, matcher interface {
	Excludes(string) bool
}, tally *errtally.Counter) (merge.Stats, error) {
	s, err := index.Open(ctx, indexfile)
	if err != nil {
		return merge.Stats{}, err
	}
	defer s.Close()
	s.RootPath = root

	opt := walk.Options{OneFS: xdev, Tally: tally, Excludes: matcher, RepoPath: repoPath}

	stream, err := walk.New(root, opt)
	if err != nil {
		s.Abort()
		return merge.Stats{}, err
	}
	defer stream.Close()

	stats, err := merge.New(s, stream).Run(ctx)
	if err != nil {
		s.Abort()
		return stats, err
	}
	return stats, s.Commit()
}

// printTree prints every node of the stored index in pre-order, one
// path per line, rooted at indexfile's own crawl root.
func printTree(ctx context.Context, indexfile string) error {
	s, err := index.OpenReadOnly(ctx, indexfile)
	if err != nil {
		return err
	}
	defer s.Close()

	cur, err := s.PreOrder(ctx, "")
	if err != nil {
		return err
	}

	var stack []string // stack[d] is the path segment at depth d
	for {
		n, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if n.Depth < len(stack) {
			stack = stack[:n.Depth]
		}
		stack = append(stack, n.Name)
		printf("%s\n", filepath.Join(stack...))
	}
	return nil
}

func usage(fs *flag.FlagSet) {
	fmt.Printf(usageStr, Z, Z)
	fs.PrintDefaults()
	os.Exit(1)
}

var usageStr = `%s - maintain the persistent filesystem index.

Usage: %s [options] path [path...]

Options:
`
