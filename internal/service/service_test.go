package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"vango/internal/search"
	"vango/internal/store"
)

func newTestService(t *testing.T) (*Service, *sql.DB, *sql.DB) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vimango.db")
	ftsPath := filepath.Join(dir, "fts5_vimango.db")
	ctx := context.Background()

	if err := store.Bootstrap(ctx, dbPath, store.VariantLegacy); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := search.BootstrapFTS(ctx, ftsPath, store.VariantLegacy); err != nil {
		t.Fatalf("bootstrap fts: %v", err)
	}

	st, err := store.Open(ctx, dbPath, store.Options{LockTimeout: time.Second})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	joiner, err := search.Open(ctx, ftsPath, st)
	if err != nil {
		t.Fatalf("open joiner: %v", err)
	}
	t.Cleanup(func() { joiner.Close() })

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

	return New(st, joiner), raw, rawFTS
}

func taskCount(t *testing.T, raw *sql.DB) int {
	t.Helper()
	var n int
	if err := raw.QueryRow("SELECT COUNT(*) FROM task").Scan(&n); err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	return n
}

func TestCreateNoteResolvesNames(t *testing.T) {
	svc, raw, _ := newTestService(t)
	ctx := context.Background()
	if _, err := raw.Exec("INSERT INTO context (tid, title) VALUES (2, 'Work')"); err != nil {
		t.Fatalf("seed context: %v", err)
	}

	localID, err := svc.CreateNote(ctx, CreateNoteParams{
		Title:   "Standup notes",
		Body:    "topics",
		Context: "work",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	view, err := svc.GetNote(ctx, store.LocalID(localID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Context != "Work" || view.Folder != "none" {
		t.Fatalf("categories: context=%q folder=%q", view.Context, view.Folder)
	}
}

func TestCreateNoteUnknownNameNeverReachesStore(t *testing.T) {
	svc, raw, _ := newTestService(t)
	_, err := svc.CreateNote(context.Background(), CreateNoteParams{
		Title:   "orphan",
		Context: "no-such-context",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := taskCount(t, raw); n != 0 {
		t.Fatalf("failed create left %d rows", n)
	}
}

func TestUpdateNoteUnknownFolderNameFailsBeforeMutation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	localID, err := svc.CreateNote(ctx, CreateNoteParams{Title: "keep title"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	folder := "no-such-folder"
	title := "changed"
	_, err = svc.UpdateNote(ctx, localID, UpdateNoteParams{Folder: &folder, Title: &title})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	view, err := svc.GetNote(ctx, store.LocalID(localID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Title != "keep title" {
		t.Fatalf("title mutated despite failed resolution: %q", view.Title)
	}
}

func TestGetNoteView(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	localID, err := svc.CreateNote(ctx, CreateNoteParams{
		Title: "Reading list",
		Body:  "# Books\n\nRead **everything**.",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	view, err := svc.GetNote(ctx, store.LocalID(localID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(view.BodyHTML, "<strong>everything</strong>") {
		t.Fatalf("body not rendered: %q", view.BodyHTML)
	}
	if view.Excerpt != "Books Read everything." {
		t.Fatalf("excerpt %q", view.Excerpt)
	}
}

func TestSearchThroughService(t *testing.T) {
	svc, raw, rawFTS := newTestService(t)
	ctx := context.Background()
	localID, err := svc.CreateNote(ctx, CreateNoteParams{Title: "Buy milk", Body: "2%"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := raw.Exec("UPDATE task SET tid = 501 WHERE id = ?", localID); err != nil {
		t.Fatalf("assign tid: %v", err)
	}
	if _, err := rawFTS.Exec(
		"INSERT INTO fts (tid, title, category, note) VALUES ('501', 'Buy milk', 'none', '2%')"); err != nil {
		t.Fatalf("index: %v", err)
	}

	matches, err := svc.Search(ctx, "milk", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].LocalID != localID || matches[0].Rank != 1 {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	if _, err := svc.Search(ctx, "ab", 0); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("short query: %v", err)
	}
}

func TestSearchWithoutIndexIsUnavailable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "vimango.db")
	ctx := context.Background()
	if err := store.Bootstrap(ctx, dbPath, store.VariantLegacy); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	st, err := store.Open(ctx, dbPath, store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	svc := New(st, nil)
	if _, err := svc.Search(ctx, "milk", 0); !errors.Is(err, store.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestStarUpdateRefreshesModified(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	localID, err := svc.CreateNote(ctx, CreateNoteParams{Title: "Buy milk", Body: "2%"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	starred := true
	updated, err := svc.UpdateNote(ctx, localID, UpdateNoteParams{Starred: &starred})
	if err != nil || !updated {
		t.Fatalf("update: %v updated=%v", err, updated)
	}
	view, err := svc.GetNote(ctx, store.LocalID(localID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.Starred {
		t.Fatal("star not set")
	}
	if !view.Modified.After(view.Added) {
		t.Fatalf("modified %v not after added %v", view.Modified, view.Added)
	}
}
