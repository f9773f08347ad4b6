package index

import (
	"context"
	"sort"

	"github.com/opencoff/bupindex/fsstat"
)

// Node is one pre-/post-order traversal result: a node's identity,
// depth, and stat snapshot.
type Node struct {
	ID    NodeID
	Name  string
	Depth int
	Stat  fsstat.Info
}

type childRow struct {
	id   NodeID
	name string
}

// Child is one direct child of a node, as returned by Children.
type Child struct {
	ID   NodeID
	Name string
}

// Children returns the direct children of 'parent', sorted by name -
// the same byte order the Walker emits siblings in, so the Merger can
// two-pointer zip them against a filesystem directory's entries.
func (s *Store) Children(ctx context.Context, parent NodeID) ([]Child, error) {
	rows, err := s.children(ctx, parent)
	if err != nil {
		return nil, err
	}
	out := make([]Child, len(rows))
	for i, r := range rows {
		out[i] = Child{ID: r.id, Name: r.name}
	}
	return out, nil
}

// children returns the child nodes of 'parent', sorted by name (byte
// order), matching the Walker's sibling ordering so the two streams the
// Merger compares line up.
func (s *Store) children(ctx context.Context, parent NodeID) ([]childRow, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT n.id, n.name FROM nodes n JOIN edges e ON e.child = n.id
		WHERE e.parent = ?`, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []childRow
	for rows.Next() {
		var c childRow
		if err := rows.Scan(&c.id, &c.name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// preFrame is one level of pending siblings during pre-order descent,
// mirroring walk.frame.
type preFrame struct {
	kids []childRow
	next int
	id   NodeID
	name string
}

// PreCursor yields the stored tree in the same depth-first, byte-sorted
// pre-order the Walker produces, so the Merger can compare the two
// streams lockstep.
type PreCursor struct {
	store *Store
	ctx   context.Context
	stack []preFrame
	done  bool
	err   error
}

// PreOrder opens a pre-order cursor. With base == "", it walks the whole
// tree from the root at depth 0. With base naming a stored path, it
// restricts iteration to the subtree rooted there - including the base
// node itself - while Depth still counts from the store's true root, the
// same value Ancestors would report for base, not renumbered from 0. A
// base that names a node that doesn't exist yields an immediately
// exhausted cursor.
func (s *Store) PreOrder(ctx context.Context, base string) (*PreCursor, error) {
	if base == "" {
		root, err := s.findRootID(ctx)
		if err != nil {
			return nil, err
		}
		c := &PreCursor{store: s, ctx: ctx}
		if root == NoNode {
			c.done = true
			return c, nil
		}

		var name string
		row := s.reader().QueryRowContext(ctx, `SELECT name FROM nodes WHERE id = ?`, root)
		if err := row.Scan(&name); err != nil {
			return nil, err
		}

		c.stack = []preFrame{{kids: []childRow{{id: root, name: name}}, next: 0}}
		return c, nil
	}

	id, depth, err := s.Get(ctx, base)
	if err != nil {
		return nil, err
	}
	c := &PreCursor{store: s, ctx: ctx}
	if id == NoNode {
		c.done = true
		return c, nil
	}

	var name string
	row := s.reader().QueryRowContext(ctx, `SELECT name FROM nodes WHERE id = ?`, id)
	if err := row.Scan(&name); err != nil {
		return nil, err
	}

	// depth empty placeholder frames hold Depth's len(stack)-1 math at
	// the true root-relative depth of base; they carry no kids, so they
	// pop without ever yielding a node, and nothing outside base's
	// subtree is ever pushed onto the stack.
	c.stack = make([]preFrame, depth, depth+1)
	c.stack = append(c.stack, preFrame{kids: []childRow{{id: id, name: name}}, next: 0})
	return c, nil
}

// Next returns the next node in pre-order, or ok=false at the end (or on
// error, with the error retained in Err()).
func (c *PreCursor) Next() (Node, bool, error) {
	if c.done || c.err != nil {
		return Node{}, false, c.err
	}

	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.next >= len(top.kids) {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		row := top.kids[top.next]
		top.next++

		st, err := c.store.GetInfo(c.ctx, row.id)
		if err != nil {
			c.err = err
			return Node{}, false, err
		}

		depth := len(c.stack) - 1
		n := Node{ID: row.id, Name: row.name, Depth: depth, Stat: st}

		if st.IsDir() {
			kids, err := c.store.children(c.ctx, row.id)
			if err != nil {
				c.err = err
				return Node{}, false, err
			}
			c.stack = append(c.stack, preFrame{kids: kids, next: 0})
		}

		return n, true, nil
	}

	c.done = true
	return Node{}, false, nil
}

// Err returns the error (if any) that ended iteration early.
func (c *PreCursor) Err() error { return c.err }

// PostOrder drains a PreOrder(base) traversal and re-emits it in
// post-order (children before their parent): scanning pre-order left to
// right, a node is only known to be "closed" once a shallower-or-equal-
// depth node follows it, so a single pop-while-shallower pass over the
// buffered pre-order sequence produces the post-order one.
func (s *Store) PostOrder(ctx context.Context, base string) ([]Node, error) {
	pre, err := s.PreOrder(ctx, base)
	if err != nil {
		return nil, err
	}

	var out []Node
	var stack []Node

	for {
		n, ok, err := pre.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].Depth >= n.Depth {
			out = append(out, stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, n)
	}
	for len(stack) > 0 {
		out = append(out, stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
	return out, nil
}
