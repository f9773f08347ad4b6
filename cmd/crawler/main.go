// main.go - crawler: prints the Walker's stream, one path per line.
//
// (c) 2024- the bupindex authors
package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	flag "github.com/opencoff/pflag"

	"github.com/opencoff/bupindex/errtally"
	"github.com/opencoff/bupindex/exclude"
	"github.com/opencoff/bupindex/internal/cliutil"
	"github.com/opencoff/bupindex/pathmodel"
	"github.com/opencoff/bupindex/walk"
)

var Z = path.Base(os.Args[0])

func main() {
	var xdev, quiet, profile, help bool
	var exFlags cliutil.ExcludeFlags

	fs := flag.NewFlagSet(Z, flag.ExitOnError)
	fs.BoolVarP(&help, "help", "h", false, "Show help and exit [False]")
	fs.BoolVarP(&xdev, "xdev", "x", false, "Don't cross filesystem boundaries [False]")
	fs.StringArrayVarP(&exFlags.Literal, "exclude", "", nil, "Exclude `PATH` (repeatable)")
	fs.StringArrayVarP(&exFlags.LiteralFrom, "exclude-from", "", nil, "Read excluded literal paths from `FILE` (repeatable)")
	fs.StringArrayVarP(&exFlags.Regex, "exclude-rx", "", nil, "Exclude paths matching `RX` (repeatable)")
	fs.StringArrayVarP(&exFlags.RegexFrom, "exclude-rx-from", "", nil, "Read exclude regexes from `FILE` (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Suppress output, just walk [False]")
	fs.BoolVarP(&profile, "profile", "", false, "Print elapsed time and entry count to stderr [False]")
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

	matcher, err := cliutil.BuildMatcher(exFlags)
	if err != nil {
		cliutil.Die(Z, "%s", err)
	}

	reduced, err := pathmodel.ReduceRoots(roots, filepath.EvalSymlinks)
	if err != nil {
		cliutil.Die(Z, "%s", err)
	}

	var tally errtally.Counter
	start := time.Now()
	n := 0

	for _, r := range reduced {
		n += runCrawl(r.Canonical, xdev, matcher, quiet, &tally)
	}

	if profile {
		fmt.Fprintf(os.Stderr, "%s: %d entries in %s\n", Z, n, time.Since(start))
	}
	if tally.Count() > 0 {
		fmt.Fprintf(os.Stderr, "%s: %d entries skipped (transient errors)\n", Z, tally.Count())
	}
	os.Exit(tally.ExitCode())
}

func runCrawl(root string, xdev bool, matcher *exclude.Matcher, quiet bool, tally *errtally.Counter) int {
	opt := walk.Options{
		OneFS:    xdev,
		Excludes: matcher,
		Tally:    tally,
	}

	s, err := walk.New(root, opt)
	if err != nil {
		cliutil.Die(Z, "%s: %s", root, err)
	}
	defer s.Close()

	n := 0
	for {
		e, ok, err := s.Next()
		if err != nil {
			cliutil.Die(Z, "%s: %s", root, err)
		}
		if !ok {
			break
		}
		n++
		if !quiet {
			fmt.Println(e.Path)
		}
	}
	return n
}

func usage(fs *flag.FlagSet) {
	fmt.Printf(usageStr, Z, Z)
	fs.PrintDefaults()
	os.Exit(1)
}

var usageStr = `%s - print a race-free directory walk, one path per line.

Usage: %s [options] path [path...]

Options:
`
