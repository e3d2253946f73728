package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema for the main vimango database. The file is normally created and
// migrated by the vimango application itself; Bootstrap exists for dev
// environments and tests. Two variants mirror the representations found in
// the wild.

const schemaLegacySQL = `
CREATE TABLE IF NOT EXISTS context (
	id INTEGER PRIMARY KEY,
	tid INTEGER UNIQUE,
	title TEXT NOT NULL,
	star INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS folder (
	id INTEGER PRIMARY KEY,
	tid INTEGER UNIQUE,
	title TEXT NOT NULL,
	star INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task (
	id INTEGER PRIMARY KEY,
	tid INTEGER UNIQUE,
	title TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	context_tid INTEGER NOT NULL DEFAULT 1 REFERENCES context(tid),
	folder_tid INTEGER NOT NULL DEFAULT 1 REFERENCES folder(tid),
	star INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	archived INTEGER NOT NULL DEFAULT 0,
	added TEXT NOT NULL,
	modified TEXT NOT NULL
);

INSERT INTO context(id, tid, title) SELECT 1, 1, 'none'
	WHERE NOT EXISTS (SELECT 1 FROM context WHERE tid = 1);
INSERT INTO folder(id, tid, title) SELECT 1, 1, 'none'
	WHERE NOT EXISTS (SELECT 1 FROM folder WHERE tid = 1);
`

const schemaUIDSQL = `
CREATE TABLE IF NOT EXISTS context (
	id INTEGER PRIMARY KEY,
	uid TEXT UNIQUE,
	title TEXT NOT NULL,
	star INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS folder (
	id INTEGER PRIMARY KEY,
	uid TEXT UNIQUE,
	title TEXT NOT NULL,
	star INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task (
	id INTEGER PRIMARY KEY,
	uid TEXT UNIQUE,
	title TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	context_uid TEXT NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000' REFERENCES context(uid),
	folder_uid TEXT NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000' REFERENCES folder(uid),
	star INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	archived INTEGER NOT NULL DEFAULT 0,
	added TEXT NOT NULL,
	modified TEXT NOT NULL
);

INSERT INTO context(id, uid, title) SELECT 1, '00000000-0000-0000-0000-000000000000', 'none'
	WHERE NOT EXISTS (SELECT 1 FROM context WHERE uid = '00000000-0000-0000-0000-000000000000');
INSERT INTO folder(id, uid, title) SELECT 1, '00000000-0000-0000-0000-000000000000', 'none'
	WHERE NOT EXISTS (SELECT 1 FROM folder WHERE uid = '00000000-0000-0000-0000-000000000000');
`

// Bootstrap creates the requested schema variant plus the reserved "none"
// category rows at path. It runs against a plain connection because Open
// refuses files without a task table. Safe to run on an already bootstrapped
// file of the same variant, including one the application currently holds:
// the schema statements go through the store's busy-retry budget.
func Bootstrap(ctx context.Context, path string, variant Variant) error {
	db, err := sql.Open("sqlite", dsn(path, 0))
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()
	st := &Store{db: db, lockTimeout: defaultBusyTimeout}

	sqlText := schemaLegacySQL
	if variant == VariantUID {
		sqlText = schemaUIDSQL
	}
	if _, err := st.execContext(ctx, sqlText); err != nil {
		return fmt.Errorf("bootstrap %s schema: %w", variant, classify(err))
	}
	return nil
}
