// Package synccache keeps local copies of folder listings consistent with
// the server by applying change events as patches and refetching when an
// event cannot be applied safely.
package synccache

import (
	"context"

	"minix/internal/drive"
	"minix/internal/model"
)

// Scope names a folder listing. The zero Scope is the drive root.
type Scope struct {
	FolderID *string
}

// Root returns the scope of the drive root.
func Root() Scope { return Scope{} }

// Folder returns the scope of the folder with the given id.
func Folder(id string) Scope { return Scope{FolderID: &id} }

// IsRoot reports whether s is the drive root.
func (s Scope) IsRoot() bool { return s.FolderID == nil }

func (s Scope) key() string {
	if s.FolderID == nil {
		return "root"
	}
	return "folder:" + *s.FolderID
}

func (s Scope) String() string { return s.key() }

// Contains reports whether a row whose parent is parentID belongs to s.
func (s Scope) Contains(parentID *string) bool {
	if s.FolderID == nil || parentID == nil {
		return s.FolderID == nil && parentID == nil
	}
	return *s.FolderID == *parentID
}

// Lister fetches the current listing of a scope.
type Lister interface {
	ListFolder(ctx context.Context, folderID *string) ([]model.DriveEntry, error)
}

// Source provides change events for an owner.
type Source interface {
	Subscribe(ctx context.Context, ownerID string) (drive.Subscription, error)
}

// State is the lifecycle state of a View.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// entryKey identifies a row across both tables.
func entryKey(table, id string) string {
	return table + "/" + id
}

func keyOf(e model.DriveEntry) string {
	if e.Type == model.EntryFolder {
		return entryKey(drive.TableFolders, e.ID())
	}
	return entryKey(drive.TableFiles, e.ID())
}
