// Package merge implements the lockstep reconciliation between a live
// filesystem walk and a stored index tree: it drives the two ordered
// streams side by side, level by level, and emits the minimal set of
// IndexStore mutations (add, update, delete) that brings the index back
// in sync with the filesystem.
//
// (c) 2024- the bupindex authors
package merge

import (
	"context"

	"github.com/opencoff/bupindex/fsstat"
	"github.com/opencoff/bupindex/index"
	"github.com/opencoff/bupindex/walk"
)

// Stats tallies the mutations one Run produced.
type Stats struct {
	Added   int
	Updated int
	Deleted int
}

// Merger drives one filesystem walk against one IndexStore.
type Merger struct {
	store *index.Store
	fs    *fsCursor
}

// New returns a Merger that will reconcile the entries from 'stream'
// into 'store'.
func New(store *index.Store, stream *walk.Stream) *Merger {
	return &Merger{store: store, fs: &fsCursor{stream: stream}}
}

// Run drives the merge to completion, returning the mutation counts. Any
// error returned here is unexpected: the caller should Abort the store's
// transaction rather than Commit it.
func (m *Merger) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	rootEntry, ok, err := m.fs.next()
	if err != nil {
		return stats, err
	}

	rootID, has, err := m.store.RootID(ctx)
	if err != nil {
		return stats, err
	}

	if !ok {
		// The walk produced nothing: the crawl root itself is gone, was
		// excluded, or matched RepoPath. Any previously indexed root is
		// now stale and must be dropped rather than left behind.
		if has {
			if err := m.deleteSubtree(ctx, rootID, &stats); err != nil {
				return stats, err
			}
		}
		return stats, nil
	}

	if !has {
		rootID, err = m.store.AddNode(ctx, index.NoNode, rootEntry.Name, rootEntry.Stat)
		if err != nil {
			return stats, err
		}
		stats.Added++
	} else if err := m.reconcileNode(ctx, rootID, rootEntry.Stat, &stats); err != nil {
		return stats, err
	}

	if rootEntry.Stat.IsDir() {
		if err := m.mergeDir(ctx, rootEntry.Depth, rootID, &stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// reconcileNode updates id's stored stat in place if it differs from
// the freshly observed one, including the dir<->non-dir transition,
// which first discards any stale children.
func (m *Merger) reconcileNode(ctx context.Context, id index.NodeID, fresh fsstat.Info, stats *Stats) error {
	prev, err := m.store.GetInfo(ctx, id)
	if err != nil {
		return err
	}

	if prev.IsDir() && !fresh.IsDir() {
		if err := m.deleteChildren(ctx, id, stats); err != nil {
			return err
		}
	}

	if !prev.Equal(fresh) {
		if err := m.store.UpdateNode(ctx, id, fresh); err != nil {
			return err
		}
		stats.Updated++
	}
	return nil
}

// mergeDir two-pointer zips the sorted direct children of a filesystem
// directory (pulled lazily from the walk stream, one subtree at a time)
// against the sorted direct children already stored under idxParent.
func (m *Merger) mergeDir(ctx context.Context, fsDepth int, idxParent index.NodeID, stats *Stats) error {
	idxKids, err := m.store.Children(ctx, idxParent)
	if err != nil {
		return err
	}
	ii := 0

	for {
		e, ok, err := m.fs.peek()
		if err != nil {
			return err
		}
		if !ok || e.Depth <= fsDepth {
			break
		}
		m.fs.next()

		for ii < len(idxKids) && idxKids[ii].Name < e.Name {
			if err := m.deleteSubtree(ctx, idxKids[ii].ID, stats); err != nil {
				return err
			}
			ii++
		}

		if ii < len(idxKids) && idxKids[ii].Name == e.Name {
			match := idxKids[ii]
			ii++
			if err := m.reconcileNode(ctx, match.ID, e.Stat, stats); err != nil {
				return err
			}
			if e.Stat.IsDir() {
				if err := m.mergeDir(ctx, e.Depth, match.ID, stats); err != nil {
					return err
				}
			}
			continue
		}

		newID, err := m.store.AddNode(ctx, idxParent, e.Name, e.Stat)
		if err != nil {
			return err
		}
		stats.Added++
		if e.Stat.IsDir() {
			if err := m.mergeDir(ctx, e.Depth, newID, stats); err != nil {
				return err
			}
		}
	}

	for ; ii < len(idxKids); ii++ {
		if err := m.deleteSubtree(ctx, idxKids[ii].ID, stats); err != nil {
			return err
		}
	}
	return nil
}

// deleteSubtree removes id and everything beneath it, children first.
func (m *Merger) deleteSubtree(ctx context.Context, id index.NodeID, stats *Stats) error {
	if err := m.deleteChildren(ctx, id, stats); err != nil {
		return err
	}
	if err := m.store.DeleteNode(ctx, id); err != nil {
		return err
	}
	stats.Deleted++
	return nil
}

// deleteChildren removes every descendant of id without removing id
// itself, used both by deleteSubtree and by the dir->file transition in
// reconcileNode.
func (m *Merger) deleteChildren(ctx context.Context, id index.NodeID, stats *Stats) error {
	kids, err := m.store.Children(ctx, id)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if err := m.deleteSubtree(ctx, k.ID, stats); err != nil {
			return err
		}
	}
	return nil
}

// fsCursor wraps a *walk.Stream with a single-entry pushback buffer, so
// mergeDir can peek at the next entry's depth to decide whether it is a
// child of the directory currently being merged.
type fsCursor struct {
	stream   *walk.Stream
	buf      walk.Entry
	buffered bool
}

func (c *fsCursor) next() (walk.Entry, bool, error) {
	if c.buffered {
		c.buffered = false
		return c.buf, true, nil
	}
	return c.stream.Next()
}

func (c *fsCursor) peek() (walk.Entry, bool, error) {
	if c.buffered {
		return c.buf, true, nil
	}
	e, ok, err := c.stream.Next()
	if err != nil {
		return walk.Entry{}, false, err
	}
	if !ok {
		return walk.Entry{}, false, nil
	}
	c.buf = e
	c.buffered = true
	return e, true, nil
}
