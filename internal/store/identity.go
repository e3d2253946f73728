package store

import "fmt"

// Kind selects which category table an identity or name refers to.
type Kind int

const (
	KindContext Kind = iota
	KindFolder
)

func (k Kind) String() string {
	switch k {
	case KindContext:
		return "context"
	case KindFolder:
		return "folder"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) table() string {
	switch k {
	case KindFolder:
		return "folder"
	default:
		return "context"
	}
}

type identityTag int

const (
	tagNone identityTag = iota
	tagLocal
	tagSynced
)

// Identity is the tagged handle for a note, context or folder. Exactly one
// variant is set: Local is the store-assigned row id, Synced is the
// authoritative id assigned out-of-band by the sync process. Synced values are
// kept as strings; the active schema variant decides how they bind (integer
// tid or UUID uid).
type Identity struct {
	tag    identityTag
	local  int64
	synced string
}

// LocalID wraps a store-assigned row id.
func LocalID(id int64) Identity {
	return Identity{tag: tagLocal, local: id}
}

// SyncedID wraps an authoritative sync identifier.
func SyncedID(id string) Identity {
	return Identity{tag: tagSynced, synced: id}
}

func (id Identity) IsZero() bool { return id.tag == tagNone }

// Local reports the row id variant, if set.
func (id Identity) Local() (int64, bool) {
	return id.local, id.tag == tagLocal
}

// Synced reports the sync id variant, if set.
func (id Identity) Synced() (string, bool) {
	return id.synced, id.tag == tagSynced
}

func (id Identity) String() string {
	switch id.tag {
	case tagLocal:
		return fmt.Sprintf("local(%d)", id.local)
	case tagSynced:
		return fmt.Sprintf("synced(%s)", id.synced)
	default:
		return "identity(unset)"
	}
}
