// Package errtally provides the process-wide "recorded error" counter
// the CLI front-ends use to choose their exit code: a run that finished
// but skipped one or more transient entries exits 1, not 0, while a
// clean run exits 0. It satisfies the walk.Tally interface.
//
// (c) 2024- the bupindex authors
package errtally

import "sync/atomic"

// Counter tracks transient-error occurrences across a single crawler or
// indexer invocation. The zero value is ready to use.
type Counter struct {
	n atomic.Int64
}

// Transient records one recovered, non-fatal error (a vanished entry, a
// subdirectory swapped for a symlink, and the like).
func (c *Counter) Transient() {
	c.n.Add(1)
}

// Count returns the number of Transient calls made so far.
func (c *Counter) Count() int64 {
	return c.n.Load()
}

// ExitCode returns 1 if any transient error was recorded, 0 otherwise.
// It does not account for fatal errors, which callers surface directly
// via their own os.Exit path.
func (c *Counter) ExitCode() int {
	if c.Count() > 0 {
		return 1
	}
	return 0
}
