// vango is the operator CLI over the note core: create, read, update and
// search notes in a vimango database pair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"vango/internal/config"
	"vango/internal/search"
	"vango/internal/service"
	"vango/internal/store"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	if err := run(context.Background(), cfg, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, store.ErrInvalidArgument) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vango [create|get|update|find|contexts|folders|export] ...")
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, cfg config.Config, command string, args []string) error {
	if cfg.DBPath == "" {
		return errors.New("VANGO_DB is required")
	}
	st, err := store.Open(ctx, cfg.DBPath, store.Options{
		BusyTimeout: cfg.BusyTimeout,
		LockTimeout: cfg.LockTimeout,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	var joiner *search.Joiner
	if cfg.FTSPath != "" {
		joiner, err = search.Open(ctx, cfg.FTSPath, st)
		if err != nil {
			return err
		}
		defer joiner.Close()
	}
	svc := service.New(st, joiner)

	switch command {
	case "create":
		return runCreate(ctx, svc, args)
	case "get":
		return runGet(ctx, svc, args, false)
	case "export":
		return runGet(ctx, svc, args, true)
	case "update":
		return runUpdate(ctx, svc, args)
	case "find":
		if joiner == nil {
			return fmt.Errorf("%w: VANGO_FTS_DB is not configured", store.ErrBackendUnavailable)
		}
		return runFind(ctx, svc, cfg.SearchLimit, args)
	case "contexts":
		return runListCategories(ctx, svc, store.KindContext)
	case "folders":
		return runListCategories(ctx, svc, store.KindFolder)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runCreate(ctx context.Context, svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	title := fs.String("title", "", "note title")
	body := fs.String("body", "", "note body (markdown)")
	contextName := fs.String("context", "", "context name (default 'none')")
	folderName := fs.String("folder", "", "folder name (default 'none')")
	star := fs.Bool("star", false, "star the note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	localID, err := svc.CreateNote(ctx, service.CreateNoteParams{
		Title:   *title,
		Body:    *body,
		Context: *contextName,
		Folder:  *folderName,
		Starred: *star,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created note %d\n", localID)
	return nil
}

func noteIdentity(local int64, sync string) (store.Identity, error) {
	switch {
	case local != 0 && sync != "":
		return store.Identity{}, fmt.Errorf("%w: supply either -id or -sync, not both", store.ErrInvalidArgument)
	case sync != "":
		return store.SyncedID(sync), nil
	case local != 0:
		return store.LocalID(local), nil
	default:
		return store.Identity{}, fmt.Errorf("%w: -id or -sync is required", store.ErrInvalidArgument)
	}
}

func runGet(ctx context.Context, svc *service.Service, args []string, asHTML bool) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	localID := fs.Int64("id", 0, "local note id")
	syncID := fs.String("sync", "", "sync id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := noteIdentity(*localID, *syncID)
	if err != nil {
		return err
	}
	view, err := svc.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if asHTML {
		fmt.Print(view.BodyHTML)
		return nil
	}
	fmt.Printf("Title: %s\nContext: %s\nFolder: %s\nid: %d\n", view.Title, view.Context, view.Folder, view.LocalID)
	if view.SyncID != "" {
		fmt.Printf("sync: %s\n", view.SyncID)
	}
	if view.Body != "" {
		fmt.Printf("\n%s\n", view.Body)
	}
	return nil
}

func runUpdate(ctx context.Context, svc *service.Service, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	localID := fs.Int64("id", 0, "local note id")
	title := fs.String("title", "", "new title")
	contextName := fs.String("context", "", "new context name")
	folderName := fs.String("folder", "", "new folder name")
	star := fs.String("star", "", "star flag: true or false")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var params service.UpdateNoteParams
	setIfPassed(fs, "title", &params.Title, title)
	setIfPassed(fs, "context", &params.Context, contextName)
	setIfPassed(fs, "folder", &params.Folder, folderName)
	if *star != "" {
		starred := strings.EqualFold(*star, "true")
		params.Starred = &starred
	}

	updated, err := svc.UpdateNote(ctx, *localID, params)
	if err != nil {
		return err
	}
	if !updated {
		fmt.Printf("no visible note with id %d\n", *localID)
		return nil
	}
	fmt.Printf("updated note %d\n", *localID)
	return nil
}

func setIfPassed(fs *flag.FlagSet, name string, dst **string, value *string) {
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			*dst = value
		}
	})
}

func runFind(ctx context.Context, svc *service.Service, defaultLimit int, args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	query := fs.String("query", "", "full-text query (minimum 3 characters)")
	limit := fs.Int("limit", defaultLimit, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	matches, err := svc.Search(ctx, *query, *limit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Printf("no notes matched %q\n", *query)
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%d. %s (context: %s, folder: %s, id: %d, sync: %s)\n",
			m.Rank, m.Title, m.Context, m.Folder, m.LocalID, m.SyncID)
	}
	return nil
}

func runListCategories(ctx context.Context, svc *service.Service, kind store.Kind) error {
	var (
		categories []store.Category
		err        error
	)
	if kind == store.KindContext {
		categories, err = svc.ListContexts(ctx)
	} else {
		categories, err = svc.ListFolders(ctx)
	}
	if err != nil {
		return err
	}
	for _, c := range categories {
		line := c.Title
		if c.Starred {
			line += " *"
		}
		if c.SyncID != "" {
			line += " (sync: " + c.SyncID + ")"
		}
		fmt.Println(line)
	}
	return nil
}
