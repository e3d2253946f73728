// Package store owns every mutating and point-read operation against a
// vimango note database. The file is shared with the vimango application
// itself, which may write to it at any time, so every connection carries a
// bounded busy timeout and every write transaction rolls back before an
// error is surfaced.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 2 * time.Second

// Store is the handle for one vimango database. It is opened against exactly
// one schema variant; the adapter hides which one from callers.
type Store struct {
	db          *sql.DB
	ad          adapter
	lockTimeout time.Duration
}

// Options configure a Store handle.
type Options struct {
	// BusyTimeout bounds how long sqlite waits for the external writer's
	// lock before reporting SQLITE_BUSY. Zero means the 2s default.
	BusyTimeout time.Duration
	// LockTimeout bounds the total retry budget layered on top of
	// BusyTimeout. Zero disables retries.
	LockTimeout time.Duration
}

func dsn(path string, busy time.Duration) string {
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	return "file:" + path +
		"?_pragma=busy_timeout(" + strconv.FormatInt(busy.Milliseconds(), 10) + ")" +
		"&_pragma=foreign_keys(1)"
}

// Open opens the vimango database at path and detects which schema variant
// it carries. A file without a recognizable task schema is refused.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	variant, err := detectVariant(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:          db,
		ad:          adapter{variant: variant},
		lockTimeout: opts.LockTimeout,
	}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Variant reports the physical sync-id representation of the opened file.
func (s *Store) Variant() Variant {
	return s.ad.variant
}

// SyncColumn is the physical column carrying sync ids under the opened
// variant. The external index names its id column the same way, so search
// queries need it too.
func (s *Store) SyncColumn() string {
	return s.ad.syncColumn()
}

// Note is a fully loaded task row with category display names attached.
type Note struct {
	LocalID  int64
	SyncID   string // empty until the sync process assigns one
	Title    string
	Body     string
	Context  string
	Folder   string
	Starred  bool
	Added    time.Time
	Modified time.Time
}

// Category is one context or folder row.
type Category struct {
	LocalID int64
	SyncID  string
	Title   string
	Starred bool
}

// NoteDisplay carries the display metadata the search joiner attaches to a
// ranked match.
type NoteDisplay struct {
	LocalID int64
	SyncID  string
	Title   string
	Context string
	Folder  string
}

// CreateNoteParams describe a new note. Context and Folder must be synced
// identities (the sync id is the foreign-key target); zero identities fall
// back to the reserved "none" category.
type CreateNoteParams struct {
	Title   string
	Body    string
	Context Identity
	Folder  Identity
	Starred bool
}

// UpdateNoteParams lists the note fields a partial update may touch. Nil
// fields are left alone; at least one must be set.
type UpdateNoteParams struct {
	Context *Identity
	Folder  *Identity
	Title   *string
	Starred *bool
}

const timeLayout = time.RFC3339Nano

// parseTime accepts our own RFC3339 timestamps as well as the
// datetime('now') text vimango writes.
func parseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// rowQuerier abstracts tx vs db single-row queries for categoryRef.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// categoryRef resolves a create/update category identity to its bind value,
// verifying the target row is visible at the moment of writing.
func (s *Store) categoryRef(ctx context.Context, q rowQuerier, kind Kind, id Identity) (any, error) {
	if id.IsZero() {
		id = SyncedID(s.ad.noneSync())
	}
	if _, isLocal := id.Local(); isLocal {
		return nil, fmt.Errorf("%w: %s reference must be a sync id", ErrInvalidArgument, kind)
	}
	sid, _ := id.Synced()
	arg, err := s.ad.bindSynced(sid)
	if err != nil {
		return nil, err
	}
	var one int
	query := "SELECT 1 FROM " + kind.table() + " WHERE " + s.ad.syncColumn() + " = ? AND deleted = 0"
	err = q.QueryRowContext(ctx, query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s does not resolve to a visible row", ErrIntegrityViolation, kind, id)
	}
	if err != nil {
		return nil, classify(err)
	}
	return arg, nil
}

// CreateNote inserts a new task row. The sync id is left NULL for the
// external sync process to assign; visibility flags start false. The insert
// and its commit are one transaction: on any failure the transaction rolls
// back and the write lock is released before the error returns.
func (s *Store) CreateNote(ctx context.Context, p CreateNoteParams) (int64, error) {
	if strings.TrimSpace(p.Title) == "" {
		return 0, fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	tx, start, err := s.beginTx(ctx, "create_note")
	if err != nil {
		return 0, classify(err)
	}
	defer s.rollbackTx(tx, "create_note", start)

	contextArg, err := s.categoryRef(ctx, tx, KindContext, p.Context)
	if err != nil {
		return 0, err
	}
	folderArg, err := s.categoryRef(ctx, tx, KindFolder, p.Folder)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO task (title, note, `+s.ad.refColumn(KindContext)+`, `+s.ad.refColumn(KindFolder)+`, star, deleted, archived, added, modified)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
	`, p.Title, p.Body, contextArg, folderArg, boolInt(p.Starred), now, now)
	if err != nil {
		return 0, classify(err)
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return 0, classify(err)
	}
	if err := s.commitTx(tx, "create_note", start); err != nil {
		return 0, classify(err)
	}
	return localID, nil
}

// GetNote looks up one visible note by exactly one identity kind. Deleted
// and archived rows report ErrNotFound.
func (s *Store) GetNote(ctx context.Context, id Identity) (Note, error) {
	if id.IsZero() {
		return Note{}, fmt.Errorf("%w: note identity required", ErrInvalidArgument)
	}
	var (
		where string
		arg   any
	)
	if local, ok := id.Local(); ok {
		where = "task.id = ?"
		arg = local
	} else {
		sid, _ := id.Synced()
		bound, err := s.ad.bindSynced(sid)
		if err != nil {
			return Note{}, err
		}
		where = "task." + s.ad.syncColumn() + " = ?"
		arg = bound
	}

	sync := s.ad.syncColumn()
	query := `
		SELECT task.id, task.` + sync + `, task.title, task.note,
			COALESCE(context.title, 'none'), COALESCE(folder.title, 'none'),
			task.star, task.added, task.modified
		FROM task
		LEFT JOIN context ON context.` + sync + ` = task.` + s.ad.refColumn(KindContext) + `
		LEFT JOIN folder ON folder.` + sync + ` = task.` + s.ad.refColumn(KindFolder) + `
		WHERE ` + where + ` AND task.deleted = 0 AND task.archived = 0`

	var (
		n        Note
		syncID   sql.NullString
		star     int
		added    string
		modified string
	)
	err := s.queryRowContext(ctx, query, arg).
		Scan(&n.LocalID, &syncID, &n.Title, &n.Body, &n.Context, &n.Folder, &star, &added, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("%w: note %s", ErrNotFound, id)
	}
	if err != nil {
		return Note{}, classify(err)
	}
	n.SyncID, _ = scanSynced(syncID)
	n.Starred = star != 0
	n.Added = parseTime(added)
	n.Modified = parseTime(modified)
	return n, nil
}

// UpdateNote applies a partial update to one visible note. It returns false
// when localID does not resolve to a visible row; that is an answer, not an
// error. A request with no fields set is rejected before any transaction is
// opened.
func (s *Store) UpdateNote(ctx context.Context, localID int64, p UpdateNoteParams) (bool, error) {
	if p.Context == nil && p.Folder == nil && p.Title == nil && p.Starred == nil {
		return false, fmt.Errorf("%w: no update fields supplied", ErrInvalidArgument)
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return false, fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}

	tx, start, err := s.beginTx(ctx, "update_note")
	if err != nil {
		return false, classify(err)
	}
	defer s.rollbackTx(tx, "update_note", start)

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if p.Context != nil {
		arg, err := s.categoryRef(ctx, tx, KindContext, *p.Context)
		if err != nil {
			return false, err
		}
		sets = append(sets, s.ad.refColumn(KindContext)+" = ?")
		args = append(args, arg)
	}
	if p.Folder != nil {
		arg, err := s.categoryRef(ctx, tx, KindFolder, *p.Folder)
		if err != nil {
			return false, err
		}
		sets = append(sets, s.ad.refColumn(KindFolder)+" = ?")
		args = append(args, arg)
	}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Starred != nil {
		sets = append(sets, "star = ?")
		args = append(args, boolInt(*p.Starred))
	}
	sets = append(sets, "modified = ?")
	args = append(args, time.Now().UTC().Format(timeLayout))
	args = append(args, localID)

	res, err := tx.ExecContext(ctx, `
		UPDATE task SET `+strings.Join(sets, ", ")+`
		WHERE id = ? AND deleted = 0 AND archived = 0`, args...)
	if err != nil {
		return false, classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	if err := s.commitTx(tx, "update_note", start); err != nil {
		return false, classify(err)
	}
	return affected > 0, nil
}

// ListContexts returns the visible contexts ordered by display name,
// case-insensitive ascending.
func (s *Store) ListContexts(ctx context.Context) ([]Category, error) {
	return s.listCategories(ctx, KindContext)
}

// ListFolders returns the visible folders ordered by display name,
// case-insensitive ascending.
func (s *Store) ListFolders(ctx context.Context) ([]Category, error) {
	return s.listCategories(ctx, KindFolder)
}

func (s *Store) listCategories(ctx context.Context, kind Kind) ([]Category, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, `+s.ad.syncColumn()+`, title, star
		FROM `+kind.table()+`
		WHERE deleted = 0
		ORDER BY title COLLATE NOCASE, id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var (
			c      Category
			syncID sql.NullString
			star   int
		)
		if err := rows.Scan(&c.LocalID, &syncID, &c.Title, &star); err != nil {
			return nil, classify(err)
		}
		c.SyncID, _ = scanSynced(syncID)
		c.Starred = star != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// ResolveIdentityByName maps a display name to the synced identity the task
// foreign keys require. Matching is case-insensitive exact; when several
// visible rows share a name the first under case-insensitive ordering wins.
// An empty name resolves to the reserved "none" category.
func (s *Store) ResolveIdentityByName(ctx context.Context, kind Kind, name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SyncedID(s.ad.noneSync()), nil
	}
	var syncID sql.NullString
	err := s.queryRowContext(ctx, `
		SELECT `+s.ad.syncColumn()+`
		FROM `+kind.table()+`
		WHERE title = ? COLLATE NOCASE AND deleted = 0
		ORDER BY title COLLATE NOCASE, id
		LIMIT 1`, name).Scan(&syncID)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
	}
	if err != nil {
		return Identity{}, classify(err)
	}
	sid, ok := scanSynced(syncID)
	if !ok {
		// The row exists but sync has not assigned its id yet, so it
		// cannot serve as a foreign-key target.
		return Identity{}, fmt.Errorf("%w: %s %q has no sync id yet", ErrNotFound, kind, name)
	}
	return SyncedID(sid), nil
}

// DisplayBySync batch-loads display metadata for a set of sync ids, applying
// the same visibility filter as every other read. The result is keyed by the
// caller's id values; ids that no longer resolve to a visible note are simply
// absent.
func (s *Store) DisplayBySync(ctx context.Context, ids []string) (map[string]NoteDisplay, error) {
	if len(ids) == 0 {
		return map[string]NoteDisplay{}, nil
	}

	values := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids)*2)
	for i, id := range ids {
		arg, err := s.ad.bindSynced(id)
		if err != nil {
			// Ids come from an external index that may lag the store;
			// one stale value must not fail the whole batch.
			slog.Debug("skipping unbindable sync id", "sync_id", id, "err", err)
			continue
		}
		values = append(values, "(?, ?)")
		args = append(args, i, arg)
	}
	if len(values) == 0 {
		return map[string]NoteDisplay{}, nil
	}

	sync := s.ad.syncColumn()
	query := `
		WITH matches(pos, sid) AS (VALUES ` + strings.Join(values, ", ") + `)
		SELECT matches.pos, task.id, task.` + sync + `, task.title,
			COALESCE(context.title, 'none'), COALESCE(folder.title, 'none')
		FROM matches
		JOIN task ON task.` + sync + ` = matches.sid
		LEFT JOIN context ON context.` + sync + ` = task.` + s.ad.refColumn(KindContext) + `
		LEFT JOIN folder ON folder.` + sync + ` = task.` + s.ad.refColumn(KindFolder) + `
		WHERE task.deleted = 0 AND task.archived = 0`

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make(map[string]NoteDisplay, len(ids))
	for rows.Next() {
		var (
			pos    int
			d      NoteDisplay
			syncID sql.NullString
		)
		if err := rows.Scan(&pos, &d.LocalID, &syncID, &d.Title, &d.Context, &d.Folder); err != nil {
			return nil, classify(err)
		}
		d.SyncID, _ = scanSynced(syncID)
		if pos >= 0 && pos < len(ids) {
			out[ids[pos]] = d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
