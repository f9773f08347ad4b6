package pathmodel

import (
	"path/filepath"
	"sort"
	"strings"
)

// ReducedRoot pairs a canonicalized root path with the original string the
// caller supplied for it.
type ReducedRoot struct {
	Canonical string
	Original  string
}

// ReduceRoots canonicalizes each of 'roots' to a physical path (resolving
// symlinks) and discards any path that lies strictly below another
// already in the set, so that the Merger is never invoked on overlapping
// subtrees. The survivors are returned sorted ascending by canonical
// path.
//
// realpath is the canonicalization function to use; callers normally pass
// filepath.EvalSymlinks or an equivalent. Passing nil uses
// filepath.EvalSymlinks directly.
func ReduceRoots(roots []string, realpath func(string) (string, error)) ([]ReducedRoot, error) {
	if realpath == nil {
		realpath = filepath.EvalSymlinks
	}

	out := make([]ReducedRoot, 0, len(roots))
	for _, r := range roots {
		c, err := realpath(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ReducedRoot{Canonical: filepath.Clean(c), Original: r})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Canonical < out[j].Canonical
	})

	kept := out[:0:0]
	for _, rr := range out {
		if !coveredByAny(kept, rr.Canonical) {
			kept = append(kept, rr)
		}
	}
	return kept, nil
}

// coveredByAny returns true if 'p' is equal to, or strictly below, one of
// the already-accepted canonical roots.
func coveredByAny(accepted []ReducedRoot, p string) bool {
	for _, a := range accepted {
		if p == a.Canonical {
			return true
		}
		if strings.HasPrefix(p, a.Canonical+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
