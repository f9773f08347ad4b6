// Package index implements the persistent tree index: nodes, edges and
// stat records, stored in a local SQLite file via the pure-Go
// modernc.org/sqlite driver, with pre-/post-order traversal and the
// mutation primitives the Merger drives.
//
// (c) 2024- the bupindex authors
package index

import (
	"context"
	"database/sql"
	"os"

	"github.com/puzpuzpuz/xsync/v3"

	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

// NodeID identifies a stored node. NoNode is the sentinel for "no node",
// returned alongside depth -1.
type NodeID = int64

// NoNode is the sentinel NodeID meaning "no such node".
const NoNode NodeID = 0

// Store is a handle onto one on-disk index file. A read/write Store
// wraps every mutation in a single *sql.Tx for the lifetime of the
// handle - one logical transaction per indexer invocation: Commit
// persists it, Abort (or an unclean process exit) discards it entirely.
type Store struct {
	db       *sql.DB
	tx       *sql.Tx // nil for a read-only Store
	readonly bool
	closed   bool

	// RootPath is the OS-absolute directory this Store's tree mirrors.
	// It is metadata the caller supplies (the crawl root argument), used
	// only by AddAncestors to resolve a root-relative path back to a
	// real filesystem path worth lstat-ing; it is not itself persisted.
	RootPath string

	// cache memoizes path -> id lookups made via Get (and the leaf ids
	// AddAncestors creates) within this Store's lifetime, so a single
	// pass never repeats the same exact-path walk twice. Ancestors and
	// ClosestAncestor do not consult it.
	cache *xsync.MapOf[string, NodeID]

	rootID   NodeID
	haveRoot bool
}

// Open opens (creating if absent) a read/write index file at 'path' and
// begins the single transaction that will hold every mutation made
// through this handle.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, &Error{"open", path, err}
	}

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return nil, &Error{"create-schema", path, err}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, &Error{"begin", path, err}
	}

	return &Store{
		db:    db,
		tx:    tx,
		cache: xsync.NewMapOf[string, NodeID](),
	}, nil
}

// OpenReadOnly opens an existing index file for read-only traversal. It
// refuses to open (or create) a file that doesn't exist. A read-only
// Store never starts a transaction.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, &Error{"stat", path, err}
	}

	db, err := sql.Open(driverName, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, &Error{"open", path, err}
	}
	if err := verifySchema(ctx, db); err != nil {
		db.Close()
		return nil, &Error{"verify-schema", path, err}
	}

	return &Store{
		db:       db,
		readonly: true,
		cache:    xsync.NewMapOf[string, NodeID](),
	}, nil
}

// execer abstracts over *sql.DB / *sql.Tx so read paths can run against
// either, and write paths always run against the open transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) reader() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) writer() (execer, error) {
	if s.readonly {
		return nil, ErrClosed
	}
	if s.closed || s.tx == nil {
		return nil, ErrClosed
	}
	return s.tx, nil
}

// Commit persists every mutation made through this handle. It is a
// no-op (returning nil) on a read-only Store.
func (s *Store) Commit() error {
	if s.readonly || s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// Abort discards every mutation made through this handle - used on
// cancellation or when an unexpected error aborts a merge.
func (s *Store) Abort() error {
	if s.readonly || s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

// Close commits pending mutations (for a read/write handle that hasn't
// already been committed or aborted) and releases the database
// connection.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if !s.readonly && s.tx != nil {
		err = s.Commit()
	}
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Clear deletes every row from all three tables, discarding the entire
// index - the mechanism backing CLI `--clear`.
func (s *Store) Clear(ctx context.Context) error {
	w, err := s.writer()
	if err != nil {
		return err
	}
	if _, err := w.ExecContext(ctx, "DELETE FROM edges"); err != nil {
		return &Error{"clear", "edges", err}
	}
	if _, err := w.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return &Error{"clear", "nodes", err}
	}
	if _, err := w.ExecContext(ctx, "DELETE FROM info"); err != nil {
		return &Error{"clear", "info", err}
	}
	s.cache.Clear()
	s.haveRoot = false
	s.rootID = NoNode
	return nil
}
