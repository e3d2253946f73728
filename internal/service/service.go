// Package service is the surface the external tool-calling layer consumes.
// It wires name resolution ahead of every write, fronts search with the
// relevance joiner and returns plain values with typed errors; all text
// formatting stays with the caller.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"vango/internal/render"
	"vango/internal/search"
	"vango/internal/store"
)

type Service struct {
	store    *store.Store
	resolver *store.Resolver
	joiner   *search.Joiner
}

func New(st *store.Store, joiner *search.Joiner) *Service {
	return &Service{
		store:    st,
		resolver: store.NewResolver(st),
		joiner:   joiner,
	}
}

// CreateNoteParams mirror the create tool arguments. Context and Folder are
// display names; empty names select the reserved "none" category.
type CreateNoteParams struct {
	Title   string
	Body    string
	Context string
	Folder  string
	Starred bool
}

// UpdateNoteParams mirror the update tool arguments. Nil means "leave
// alone"; Context and Folder are display names.
type UpdateNoteParams struct {
	Context *string
	Folder  *string
	Title   *string
	Starred *bool
}

const excerptLen = 160

// NoteView is a note prepared for display: the raw markdown body plus its
// rendered HTML and a plain-text excerpt.
type NoteView struct {
	store.Note
	BodyHTML string
	Excerpt  string
}

// CreateNote resolves both category names before touching the store, so an
// unresolvable name never reaches a write.
func (s *Service) CreateNote(ctx context.Context, p CreateNoteParams) (int64, error) {
	contextID, err := s.resolver.Resolve(ctx, store.KindContext, p.Context)
	if err != nil {
		return 0, err
	}
	folderID, err := s.resolver.Resolve(ctx, store.KindFolder, p.Folder)
	if err != nil {
		return 0, err
	}
	localID, err := s.store.CreateNote(ctx, store.CreateNoteParams{
		Title:   p.Title,
		Body:    p.Body,
		Context: contextID,
		Folder:  folderID,
		Starred: p.Starred,
	})
	if err != nil {
		return 0, err
	}
	slog.Info("note created", "local_id", localID, "title", p.Title)
	return localID, nil
}

// GetNote loads one visible note by local or sync identity.
func (s *Service) GetNote(ctx context.Context, id store.Identity) (NoteView, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return NoteView{}, err
	}
	html, err := render.HTML(n.Body)
	if err != nil {
		return NoteView{}, err
	}
	return NoteView{
		Note:     n,
		BodyHTML: html,
		Excerpt:  render.Excerpt(n.Body, excerptLen),
	}, nil
}

// UpdateNote resolves any supplied category names first, then applies the
// partial update. The (false, nil) return means no visible row matched.
func (s *Service) UpdateNote(ctx context.Context, localID int64, p UpdateNoteParams) (bool, error) {
	params := store.UpdateNoteParams{
		Title:   p.Title,
		Starred: p.Starred,
	}
	if p.Context != nil {
		id, err := s.resolver.Resolve(ctx, store.KindContext, *p.Context)
		if err != nil {
			return false, err
		}
		params.Context = &id
	}
	if p.Folder != nil {
		id, err := s.resolver.Resolve(ctx, store.KindFolder, *p.Folder)
		if err != nil {
			return false, err
		}
		params.Folder = &id
	}
	updated, err := s.store.UpdateNote(ctx, localID, params)
	if err != nil {
		return false, err
	}
	slog.Info("note update", "local_id", localID, "updated", updated)
	return updated, nil
}

// Search runs a ranked relevance query joined against the live store. The
// joiner is optional at construction; without one, search is unavailable
// rather than a crash.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]search.Match, error) {
	if s.joiner == nil {
		return nil, fmt.Errorf("%w: no search index configured", store.ErrBackendUnavailable)
	}
	return s.joiner.Find(ctx, query, limit)
}

// ListContexts returns the visible contexts in display order.
func (s *Service) ListContexts(ctx context.Context) ([]store.Category, error) {
	return s.store.ListContexts(ctx)
}

// ListFolders returns the visible folders in display order.
func (s *Service) ListFolders(ctx context.Context) ([]store.Category, error) {
	return s.store.ListFolders(ctx)
}
