package store

import "context"

// Resolver turns human-entered context/folder names into the identities the
// Store requires. It runs ahead of every write that accepts a name, so a
// resolution failure surfaces before any mutation is attempted.
type Resolver struct {
	store *Store
}

func NewResolver(s *Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve maps a display name to a synced identity. An empty name keeps the
// source behavior of silently selecting the reserved "none" category.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, name string) (Identity, error) {
	return r.store.ResolveIdentityByName(ctx, kind, name)
}
