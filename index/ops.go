package index

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/opencoff/bupindex/fsstat"
)

// AddNode allocates an info row, a node row referencing it, and an edge
// row parent->new, returning the new node's id. parent == NoNode creates
// a root node (no edge row at all); AddNode does not check whether the
// Store already has one.
func (s *Store) AddNode(ctx context.Context, parent NodeID, name string, st fsstat.Info) (NodeID, error) {
	w, err := s.writer()
	if err != nil {
		return NoNode, err
	}

	infoID, err := insertInfo(ctx, w, st)
	if err != nil {
		return NoNode, &Error{"add_node", name, err}
	}

	res, err := w.ExecContext(ctx, `INSERT INTO nodes(name, info_id) VALUES(?, ?)`, name, infoID)
	if err != nil {
		return NoNode, &Error{"add_node", name, err}
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return NoNode, &Error{"add_node", name, err}
	}

	if parent != NoNode {
		if _, err := w.ExecContext(ctx, `INSERT INTO edges(parent, child) VALUES(?, ?)`, parent, newID); err != nil {
			return NoNode, &Error{"add_node", name, err}
		}
	} else {
		s.rootID = newID
		s.haveRoot = true
	}

	return newID, nil
}

// UpdateNode overwrites the stat fields of the info record associated
// with node 'id'.
func (s *Store) UpdateNode(ctx context.Context, id NodeID, st fsstat.Info) error {
	w, err := s.writer()
	if err != nil {
		return err
	}

	var infoID int64
	row := w.QueryRowContext(ctx, `SELECT info_id FROM nodes WHERE id = ?`, id)
	if err := row.Scan(&infoID); err != nil {
		if err == sql.ErrNoRows {
			return &Error{"update_node", "", ErrCorrupt}
		}
		return &Error{"update_node", "", err}
	}

	if err := updateInfo(ctx, w, infoID, st); err != nil {
		return &Error{"update_node", "", err}
	}
	return nil
}

// DeleteNode removes the node's edge, info, and node rows. It does not
// recurse - callers (the Merger) delete subtrees explicitly, child
// before parent.
func (s *Store) DeleteNode(ctx context.Context, id NodeID) error {
	w, err := s.writer()
	if err != nil {
		return err
	}

	var infoID int64
	row := w.QueryRowContext(ctx, `SELECT info_id FROM nodes WHERE id = ?`, id)
	if err := row.Scan(&infoID); err != nil {
		if err == sql.ErrNoRows {
			return &Error{"delete_node", "", ErrCorrupt}
		}
		return &Error{"delete_node", "", err}
	}

	if _, err := w.ExecContext(ctx, `DELETE FROM edges WHERE child = ?`, id); err != nil {
		return &Error{"delete_node", "", err}
	}
	if _, err := w.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return &Error{"delete_node", "", err}
	}
	if _, err := w.ExecContext(ctx, `DELETE FROM info WHERE id = ?`, infoID); err != nil {
		return &Error{"delete_node", "", err}
	}

	if s.haveRoot && s.rootID == id {
		s.haveRoot = false
		s.rootID = NoNode
	}
	return nil
}

func insertInfo(ctx context.Context, w execer, st fsstat.Info) (int64, error) {
	res, err := w.ExecContext(ctx, `
		INSERT INTO info(mode, ino, dev, nlink, uid, gid, size, atime, mtime, ctime)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uint32(st.Mode), st.Ino, st.Dev, st.Nlink, st.Uid, st.Gid, st.Size, st.Atime, st.Mtime, st.Ctime)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func updateInfo(ctx context.Context, w execer, infoID int64, st fsstat.Info) error {
	_, err := w.ExecContext(ctx, `
		UPDATE info SET mode=?, ino=?, dev=?, nlink=?, uid=?, gid=?, size=?, atime=?, mtime=?, ctime=?
		WHERE id = ?`,
		uint32(st.Mode), st.Ino, st.Dev, st.Nlink, st.Uid, st.Gid, st.Size, st.Atime, st.Mtime, st.Ctime, infoID)
	return err
}

func scanInfo(row interface {
	Scan(dest ...any) error
}) (fsstat.Info, error) {
	var st fsstat.Info
	var mode uint32
	err := row.Scan(&mode, &st.Ino, &st.Dev, &st.Nlink, &st.Uid, &st.Gid, &st.Size, &st.Atime, &st.Mtime, &st.Ctime)
	if err != nil {
		return fsstat.Info{}, err
	}
	st.Mode = fs.FileMode(mode)
	return st, nil
}

// GetInfo returns the stat snapshot stored for node 'id'.
func (s *Store) GetInfo(ctx context.Context, id NodeID) (fsstat.Info, error) {
	row := s.reader().QueryRowContext(ctx, `
		SELECT i.mode, i.ino, i.dev, i.nlink, i.uid, i.gid, i.size, i.atime, i.mtime, i.ctime
		FROM info i JOIN nodes n ON n.info_id = i.id
		WHERE n.id = ?`, id)
	return scanInfo(row)
}

// findRootID returns the id of the single root node, or NoNode if the
// store is empty. A well-formed tree has exactly one node with no
// incoming edge; that query is also how Check() detects a violation of
// it.
func (s *Store) findRootID(ctx context.Context) (NodeID, error) {
	if s.haveRoot {
		return s.rootID, nil
	}
	row := s.reader().QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE id NOT IN (SELECT child FROM edges) LIMIT 1`)
	var id NodeID
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return NoNode, nil
		}
		return NoNode, err
	}
	s.rootID = id
	s.haveRoot = true
	return id, nil
}

// RootID returns the id of the single stored root node and whether one
// exists yet.
func (s *Store) RootID(ctx context.Context) (NodeID, bool, error) {
	id, err := s.findRootID(ctx)
	if err != nil {
		return NoNode, false, err
	}
	return id, id != NoNode, nil
}

// childOf returns the id of the child named 'name' under 'parent', or
// NoNode if there is none.
func (s *Store) childOf(ctx context.Context, parent NodeID, name string) (NodeID, error) {
	row := s.reader().QueryRowContext(ctx, `
		SELECT n.id FROM nodes n JOIN edges e ON e.child = n.id
		WHERE e.parent = ? AND n.name = ?`, parent, name)
	var id NodeID
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return NoNode, nil
		}
		return NoNode, err
	}
	return id, nil
}

// splitRelative breaks a '/'-separated path, relative to the store's
// root, into its ordered segments. A root-relative path never names the
// root itself: "" means the root.
func splitRelative(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

// resolvePrefixes walks 'segs' from the root down, returning the id
// found at each depth (ids[0] is always the root). len(result) ==
// len(segs)+1 means the full path exists.
func (s *Store) resolvePrefixes(ctx context.Context, segs []string) ([]NodeID, error) {
	root, err := s.findRootID(ctx)
	if err != nil {
		return nil, err
	}
	if root == NoNode {
		return nil, nil
	}

	ids := []NodeID{root}
	cur := root
	for _, name := range segs {
		child, err := s.childOf(ctx, cur, name)
		if err != nil {
			return nil, err
		}
		if child == NoNode {
			break
		}
		ids = append(ids, child)
		cur = child
	}
	return ids, nil
}

// Get returns the node at the exact root-relative path if present, or
// (NoNode, -1). An empty path refers to the root itself.
func (s *Store) Get(ctx context.Context, path string) (NodeID, int, error) {
	segs := splitRelative(path)
	if id, ok := s.cache.Load(path); ok {
		return id, len(segs), nil
	}

	ids, err := s.resolvePrefixes(ctx, segs)
	if err != nil {
		return NoNode, -1, err
	}
	if len(ids) != len(segs)+1 {
		return NoNode, -1, nil
	}
	s.cache.Store(path, ids[len(ids)-1])
	return ids[len(ids)-1], len(ids) - 1, nil
}

// AncestorEntry is one element of the Ancestors() sequence.
type AncestorEntry struct {
	ID    NodeID
	Depth int
}

// Ancestors yields (id, depth) from the closest existing ancestor of
// 'path' up to the root, closest first, or an empty sequence if the
// store has no root yet.
func (s *Store) Ancestors(ctx context.Context, path string) ([]AncestorEntry, error) {
	segs := splitRelative(path)
	ids, err := s.resolvePrefixes(ctx, segs)
	if err != nil {
		return nil, err
	}
	out := make([]AncestorEntry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, AncestorEntry{ID: ids[i], Depth: i})
	}
	return out, nil
}

// ClosestAncestor returns the first element of Ancestors, or
// (NoNode, -1) if no ancestor exists.
func (s *Store) ClosestAncestor(ctx context.Context, path string) (NodeID, int, error) {
	anc, err := s.Ancestors(ctx, path)
	if err != nil {
		return NoNode, -1, err
	}
	if len(anc) == 0 {
		return NoNode, -1, nil
	}
	return anc[0].ID, anc[0].Depth, nil
}

// AddAncestors ensures every prefix of the root-relative 'path' exists
// as a node, lstat-ing the live filesystem (under the Store's RootPath)
// for any missing prefix, and returns the leaf id. If the store has no
// root node at all yet, the root itself is bootstrapped first from
// RootPath. An empty path names the root, so AddAncestors(ctx, "") on a
// brand new store just creates the root and returns its id.
func (s *Store) AddAncestors(ctx context.Context, path string) (NodeID, error) {
	segs := splitRelative(path)
	ids, err := s.resolvePrefixes(ctx, segs)
	if err != nil {
		return NoNode, err
	}

	if len(ids) == len(segs)+1 {
		return ids[len(ids)-1], nil
	}

	if len(ids) == 0 {
		st, err := fsstat.Lstat(s.RootPath)
		if err != nil {
			return NoNode, &Error{"add_ancestors", s.RootPath, err}
		}
		rootID, err := s.AddNode(ctx, NoNode, filepath.Base(s.RootPath), st)
		if err != nil {
			return NoNode, err
		}
		ids = []NodeID{rootID}
	}

	parent := ids[len(ids)-1]
	for i := len(ids) - 1; i < len(segs); i++ {
		full := strings.TrimRight(s.RootPath, "/") + "/" + strings.Join(segs[:i+1], "/")

		st, err := fsstat.Lstat(full)
		if err != nil {
			return NoNode, &Error{"add_ancestors", full, err}
		}

		newID, err := s.AddNode(ctx, parent, segs[i], st)
		if err != nil {
			return NoNode, err
		}
		parent = newID
	}

	s.cache.Store(path, parent)
	return parent, nil
}
