// Package search front-ends free-text queries against the externally
// maintained fts5 database and re-joins the ranked matches against the live
// store. The two files are updated independently: the index may still list
// notes that have since been deleted, archived or re-categorized, which is
// exactly why the join exists.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"vango/internal/store"
)

const (
	// DefaultLimit is used when the caller supplies a non-positive count.
	DefaultLimit = 5
	minQueryLen  = 3
)

// Joiner holds the read-only fts handle for the process lifetime plus the
// store it reconciles matches against.
type Joiner struct {
	fts   *sql.DB
	store *store.Store
}

// Match is one surviving search hit. Rank is the 1-based position the index
// assigned; gaps appear where the store no longer shows a match as visible.
type Match struct {
	Rank    int
	LocalID int64
	SyncID  string
	Title   string
	Context string
	Folder  string
}

// Open opens the fts database read-only. An unreachable index is reported at
// open time so search never degrades silently later.
func Open(ctx context.Context, ftsPath string, st *store.Store) (*Joiner, error) {
	db, err := sql.Open("sqlite", "file:"+ftsPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: open fts %s: %w", store.ErrBackendUnavailable, ftsPath, err)
	}
	// sql.Open is lazy; force the connection so a missing file fails here.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: open fts %s: %w", store.ErrBackendUnavailable, ftsPath, err)
	}
	return &Joiner{fts: db, store: st}, nil
}

func (j *Joiner) Close() error {
	if j.fts == nil {
		return nil
	}
	return j.fts.Close()
}

// Find runs a ranked free-text query and reconciles the matches against the
// store. Emitted matches keep the index's relevance order: ranks are a
// strictly increasing subsequence of the index ranks, never renumbered and
// never re-sorted.
func (j *Joiner) Find(ctx context.Context, query string, limit int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLen {
		return nil, fmt.Errorf("%w: search query must be at least %d characters", store.ErrInvalidArgument, minQueryLen)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	ids, err := j.matchIDs(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Match{}, nil
	}

	display, err := j.store.DisplayBySync(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Stable filter over the ranked sequence: drop what the store no
	// longer shows, keep everything else in place.
	out := make([]Match, 0, len(ids))
	for i, id := range ids {
		d, ok := display[id]
		if !ok {
			slog.Debug("search match dropped", "sync_id", id, "rank", i+1)
			continue
		}
		out = append(out, Match{
			Rank:    i + 1,
			LocalID: d.LocalID,
			SyncID:  d.SyncID,
			Title:   d.Title,
			Context: d.Context,
			Folder:  d.Folder,
		})
	}
	return out, nil
}

// matchIDs asks the index for up to limit sync ids in descending relevance
// order. Title matches weigh heaviest, then category names, then the body;
// the exact formula belongs to the index.
func (j *Joiner) matchIDs(ctx context.Context, query string, limit int) ([]string, error) {
	rows, err := j.fts.QueryContext(ctx, `
		SELECT `+j.store.SyncColumn()+` FROM fts
		WHERE fts MATCH ?
		ORDER BY bm25(fts, 0.0, 5.0, 2.0, 1.0)
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: fts query failed: %w", store.ErrBackendUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: fts scan failed: %w", store.ErrBackendUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fts query failed: %w", store.ErrBackendUnavailable, err)
	}
	return ids, nil
}
