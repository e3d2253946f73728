package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vango/internal/store"
)

// fixture stands up a main database plus an fts database the way the
// external sync process would leave them.
type fixture struct {
	st      *store.Store
	joiner  *Joiner
	raw     *sql.DB
	rawFTS  *sql.DB
	syncCol string
	variant store.Variant
	nextTID int64
}

func newFixture(t *testing.T) *fixture {
	return newVariantFixture(t, store.VariantLegacy)
}

func newVariantFixture(t *testing.T, variant store.Variant) *fixture {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vimango.db")
	ftsPath := filepath.Join(dir, "fts5_vimango.db")
	ctx := context.Background()

	if err := store.Bootstrap(ctx, dbPath, variant); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := BootstrapFTS(ctx, ftsPath, variant); err != nil {
		t.Fatalf("bootstrap fts: %v", err)
	}

	st, err := store.Open(ctx, dbPath, store.Options{LockTimeout: time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	raw, err := sql.Open("sqlite", "file:"+dbPath)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	rawFTS, err := sql.Open("sqlite", "file:"+ftsPath)
	if err != nil {
		t.Fatalf("open raw fts: %v", err)
	}
	t.Cleanup(func() { rawFTS.Close() })

	joiner, err := Open(ctx, ftsPath, st)
	if err != nil {
		t.Fatalf("open joiner: %v", err)
	}
	t.Cleanup(func() { joiner.Close() })

	return &fixture{
		st:      st,
		joiner:  joiner,
		raw:     raw,
		rawFTS:  rawFTS,
		syncCol: st.SyncColumn(),
		variant: variant,
		nextTID: 1000,
	}
}

// addNote creates a note, stamps it with a sync id and indexes it, returning
// the sync id.
func (f *fixture) addNote(t *testing.T, title, body string) string {
	t.Helper()
	ctx := context.Background()
	localID, err := f.st.CreateNote(ctx, store.CreateNoteParams{Title: title, Body: body})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	var sid string
	if f.variant == store.VariantUID {
		sid = uuid.NewString()
	} else {
		f.nextTID++
		sid = fmt.Sprint(f.nextTID)
	}
	if _, err := f.raw.Exec("UPDATE task SET "+f.syncCol+" = ? WHERE id = ?", sid, localID); err != nil {
		t.Fatalf("assign sync id: %v", err)
	}
	if _, err := f.rawFTS.Exec(
		"INSERT INTO fts ("+f.syncCol+", title, category, note) VALUES (?, ?, 'none', ?)",
		sid, title, body); err != nil {
		t.Fatalf("index note: %v", err)
	}
	return sid
}

func (f *fixture) hideNote(t *testing.T, sid string, column string) {
	t.Helper()
	if _, err := f.raw.Exec("UPDATE task SET "+column+" = 1 WHERE "+f.syncCol+" = ?", sid); err != nil {
		t.Fatalf("hide note: %v", err)
	}
}

func TestFindRanksSurviveDropsWithGaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, "milk run", "buy milk at the store")
	f.addNote(t, "milk substitutes", "oat milk comparison")
	f.addNote(t, "groceries", "milk eggs flour")

	before, err := f.joiner.Find(ctx, "milk", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(before) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(before))
	}
	for i, m := range before {
		if m.Rank != i+1 {
			t.Fatalf("initial ranks not dense: %+v", before)
		}
	}

	// Drop the middle match in the store only; the index still lists it.
	f.hideNote(t, before[1].SyncID, "deleted")

	after, err := f.joiner.Find(ctx, "milk", 10)
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 matches, got %+v", after)
	}
	if after[0].Rank != before[0].Rank || after[0].SyncID != before[0].SyncID {
		t.Fatalf("first match moved: %+v vs %+v", after[0], before[0])
	}
	if after[1].Rank != before[2].Rank || after[1].SyncID != before[2].SyncID {
		t.Fatalf("gap not preserved: %+v vs %+v", after[1], before[2])
	}
	if after[1].Rank <= after[0].Rank {
		t.Fatalf("ranks not strictly increasing: %+v", after)
	}
}

func TestFindAgainstUUIDIndex(t *testing.T) {
	f := newVariantFixture(t, store.VariantUID)
	ctx := context.Background()
	sid := f.addNote(t, "milk run", "buy milk at the store")
	f.addNote(t, "weekend plans", "hike and a movie")

	matches, err := f.joiner.Find(ctx, "milk", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %+v", matches)
	}
	if matches[0].SyncID != sid || matches[0].Title != "milk run" || matches[0].Rank != 1 {
		t.Fatalf("unexpected match: %+v", matches[0])
	}

	f.hideNote(t, sid, "deleted")
	matches, err = f.joiner.Find(ctx, "milk", 10)
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("deleted note still returned: %+v", matches)
	}
}

func TestFindArchivedMatchDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.addNote(t, "quarterly report", "numbers and charts")

	matches, err := f.joiner.Find(ctx, "quarterly", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}

	f.hideNote(t, tid, "archived")
	matches, err = f.joiner.Find(ctx, "quarterly", 10)
	if err != nil {
		t.Fatalf("find after archive: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("archived note still returned: %+v", matches)
	}
}

func TestFindTitleOutranksBody(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, "dinner ideas", "maybe escargot tonight")
	titleTID := f.addNote(t, "escargot recipe", "butter garlic parsley")

	matches, err := f.joiner.Find(ctx, "escargot", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].SyncID != titleTID {
		t.Fatalf("title match should rank first: %+v", matches)
	}
}

func TestFindShortQueryRejected(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"ab", "  ab  ", ""} {
		if _, err := f.joiner.Find(context.Background(), q, 10); !errors.Is(err, store.ErrInvalidArgument) {
			t.Fatalf("query %q: expected ErrInvalidArgument, got %v", q, err)
		}
	}
}

func TestFindNonPositiveLimitUsesDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < DefaultLimit+3; i++ {
		f.addNote(t, fmt.Sprintf("kayak trip %d", i), "paddling notes")
	}
	matches, err := f.joiner.Find(ctx, "kayak", 0)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultLimit, len(matches))
	}
}

func TestFindNoMatchesIsEmptyNotError(t *testing.T) {
	f := newFixture(t)
	matches, err := f.joiner.Find(context.Background(), "zzzqqqxxx", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}

func TestFindMalformedQuerySurfacesBackendFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.joiner.Find(context.Background(), `"unterminated`, 10)
	if !errors.Is(err, store.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestOpenMissingIndexFails(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vimango.db")
	ctx := context.Background()
	if err := store.Bootstrap(ctx, dbPath, store.VariantLegacy); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	st, err := store.Open(ctx, dbPath, store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	if _, err := Open(ctx, filepath.Join(dir, "missing.db"), st); !errors.Is(err, store.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
