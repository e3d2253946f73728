package search

import (
	"context"
	"database/sql"
	"fmt"

	"vango/internal/store"
)

// The fts database is maintained by the external sync process; this schema
// exists only so dev environments and tests can stand up a compatible file.
// The id column is named after the main database's sync column and holds the
// note's sync id, opaque to the joiner.
func ftsSchemaSQL(variant store.Variant) string {
	col := "tid"
	if variant == store.VariantUID {
		col = "uid"
	}
	return `
CREATE VIRTUAL TABLE IF NOT EXISTS fts USING fts5(
	` + col + ` UNINDEXED,
	title,
	category,
	note
);
`
}

// BootstrapFTS creates an empty fts database at path, matching the sync-id
// representation of the main database it will be searched against.
func BootstrapFTS(ctx context.Context, path string, variant store.Variant) error {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return fmt.Errorf("open fts %s: %w", path, err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, ftsSchemaSQL(variant)); err != nil {
		return fmt.Errorf("%w: bootstrap fts schema: %w", store.ErrBackendUnavailable, err)
	}
	return nil
}
