// Package pathmodel splits filesystem paths into ordered component
// sequences, computes depth, and reduces a set of user-supplied roots
// into a minimal non-overlapping sorted set.
//
// (c) 2024- the bupindex authors
package pathmodel

import (
	"strings"
)

// Path is a normalized, component-split representation of a filesystem
// path. Components[0] is always the root component (eg "/"); Components[1:]
// are the path segments below it.
type Path struct {
	Components []string
}

// Split normalizes 'p' (collapsing repeated separators and "." segments,
// without resolving "..") and splits it into an ordered component
// sequence. The root component is always present, even for an empty
// input.
func Split(p string) Path {
	if len(p) == 0 {
		return Path{Components: []string{"/"}}
	}

	parts := strings.Split(p, "/")
	comps := make([]string, 0, len(parts)+1)
	comps = append(comps, "/")

	for _, c := range parts {
		switch c {
		case "", ".":
			continue
		default:
			comps = append(comps, c)
		}
	}
	return Path{Components: comps}
}

// Depth returns the number of components below the root. The root itself
// has depth 0.
func (p Path) Depth() int {
	return len(p.Components) - 1
}

// String renders the path back into a slash-separated form.
func (p Path) String() string {
	if len(p.Components) <= 1 {
		return "/"
	}
	return "/" + strings.Join(p.Components[1:], "/")
}

// Base returns the final component, or "/" for the root itself.
func (p Path) Base() string {
	if len(p.Components) <= 1 {
		return "/"
	}
	return p.Components[len(p.Components)-1]
}

// Join appends a single raw component name to p and returns the new path.
// The caller is responsible for ensuring 'name' does not itself contain a
// separator.
func (p Path) Join(name string) Path {
	comps := make([]string, len(p.Components), len(p.Components)+1)
	copy(comps, p.Components)
	comps = append(comps, name)
	return Path{Components: comps}
}

// Parent returns the path with its final component removed. Calling
// Parent on the root returns the root unchanged.
func (p Path) Parent() Path {
	if len(p.Components) <= 1 {
		return p
	}
	comps := make([]string, len(p.Components)-1)
	copy(comps, p.Components[:len(p.Components)-1])
	return Path{Components: comps}
}
