package index

import (
	"context"
	"database/sql"
)

// The schema is versioned implicitly by table shape. OpenReadOnly
// rejects a file missing any of the three tables with ErrCorrupt; column
// layouts are not compared, and Open creates any missing table rather
// than rejecting the file.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS info(
	id    INTEGER PRIMARY KEY,
	mode  INTEGER NOT NULL,
	ino   INTEGER NOT NULL,
	dev   INTEGER NOT NULL,
	nlink INTEGER NOT NULL,
	uid   INTEGER NOT NULL,
	gid   INTEGER NOT NULL,
	size  INTEGER NOT NULL,
	atime INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	ctime INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes(
	id      INTEGER PRIMARY KEY,
	name    BLOB NOT NULL,
	info_id INTEGER NOT NULL REFERENCES info(id)
);
CREATE TABLE IF NOT EXISTS edges(
	parent INTEGER NOT NULL,
	child  INTEGER PRIMARY KEY REFERENCES nodes(id)
);
CREATE INDEX IF NOT EXISTS edges_parent_idx ON edges(parent);
`

var schemaTables = []string{"info", "nodes", "edges"}

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaDDL)
	return err
}

// verifySchema checks that all three tables exist; it does not do full
// structural type-checking, consistent with the schema being versioned
// implicitly by table shape rather than an explicit version column.
func verifySchema(ctx context.Context, db *sql.DB) error {
	for _, tbl := range schemaTables {
		row := db.QueryRowContext(ctx,
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, tbl)
		var n int
		if err := row.Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return ErrCorrupt
		}
	}
	return nil
}
