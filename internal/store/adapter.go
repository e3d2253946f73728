package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Variant names the physical sync-id representation the database uses.
// A deployment runs exactly one: legacy integer tid columns or UUID uid
// columns. The two never coexist in one file.
type Variant int

const (
	// VariantLegacy uses INTEGER tid / context_tid / folder_tid columns.
	VariantLegacy Variant = iota
	// VariantUID uses TEXT uid / context_uid / folder_uid columns holding
	// UUID strings.
	VariantUID
)

func (v Variant) String() string {
	if v == VariantUID {
		return "uid"
	}
	return "legacy"
}

// NoneSyncUID is the reserved "no category" sync id under the uid variant.
var NoneSyncUID = uuid.Nil.String()

// NoneSyncTID is the reserved "no category" sync id under the legacy variant.
const NoneSyncTID = 1

// adapter translates logical identities to whichever physical sync-id column
// the active variant uses. All column names that depend on the variant come
// from here so the Store SQL is written once.
type adapter struct {
	variant Variant
}

// detectVariant inspects the task table and picks the active representation.
// A task table carrying neither sync column is a hard failure: the adapter
// must not silently default.
func detectVariant(ctx context.Context, db *sql.DB) (Variant, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info(task)")
	if err != nil {
		return 0, fmt.Errorf("inspect task table: %w", err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return 0, err
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	switch {
	case cols["tid"]:
		return VariantLegacy, nil
	case cols["uid"]:
		return VariantUID, nil
	case len(cols) == 0:
		return 0, fmt.Errorf("%w: task table missing", ErrBackendUnavailable)
	default:
		return 0, fmt.Errorf("%w: task table has neither tid nor uid column", ErrBackendUnavailable)
	}
}

// syncColumn is the sync-id column on task, context and folder.
func (a adapter) syncColumn() string {
	if a.variant == VariantUID {
		return "uid"
	}
	return "tid"
}

// refColumn is the foreign-key column on task pointing at a category table.
func (a adapter) refColumn(kind Kind) string {
	return kind.table() + "_" + a.syncColumn()
}

// bindSynced converts a synced identity value into a driver argument for the
// active variant. Malformed values fail before any statement runs.
func (a adapter) bindSynced(id string) (any, error) {
	if a.variant == VariantUID {
		u, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: sync id %q is not a uuid", ErrInvalidArgument, id)
		}
		return u.String(), nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: sync id %q is not an integer", ErrInvalidArgument, id)
	}
	// Non-positive values are the historical "unsynced" sentinels, never
	// real identifiers; matching on them would hit unsynced rows.
	if n <= 0 {
		return nil, fmt.Errorf("%w: sync id %d is not assignable", ErrInvalidArgument, n)
	}
	return n, nil
}

// noneSync is the reserved "none" category sync id for the active variant.
func (a adapter) noneSync() string {
	if a.variant == VariantUID {
		return NoneSyncUID
	}
	return strconv.Itoa(NoneSyncTID)
}

// scanSynced normalizes a scanned sync-id column. Both historical "unsynced"
// encodings collapse to absent: NULL and the legacy -1 sentinel. New rows are
// always written with NULL.
func scanSynced(v sql.NullString) (string, bool) {
	if !v.Valid || v.String == "" || v.String == "-1" {
		return "", false
	}
	return v.String, true
}
