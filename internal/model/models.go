package model

import "time"

// File kinds stored in the files table.
const (
	KindFile  = "file"
	KindPaste = "paste"
)

// Entry types used to tag DriveEntry values.
const (
	EntryFolder = "folder"
	EntryFile   = "file"
	EntryPaste  = "paste"
)

// Folder is a node of an owner's folder tree.
type Folder struct {
	ID        string  // UUID
	Name      string
	ParentID  *string // nil for root-level folders
	OwnerID   string
	CreatedAt time.Time
}

// File is a stored blob and its metadata. Pastes are Files with Kind == KindPaste.
type File struct {
	ID                 string // UUID
	Name               string
	OwnerID            string
	FolderID           *string // nil at the root
	Size               int64
	ContentType        string
	StoragePath        string // key into the object store
	Kind               string // KindFile or KindPaste
	Syntax             string // highlighting hint, pastes only
	ExpiresAt          *time.Time
	AccessURL          string
	AccessURLExpiresAt *time.Time // nil means the URL does not expire
	CreatedAt          time.Time
}

// IsPaste reports whether f is a paste.
func (f *File) IsPaste() bool {
	return f.Kind == KindPaste
}

// Expired reports whether f is a paste whose expiry has passed at now.
func (f *File) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}

// Paste is a paste's metadata together with its text content.
type Paste struct {
	File
	Content string
}

// DriveEntry is one row of a mixed folder listing.
type DriveEntry struct {
	Type   string // EntryFolder, EntryFile or EntryPaste
	Folder *Folder
	File   *File
}

// ID returns the id of the wrapped row.
func (e DriveEntry) ID() string {
	if e.Folder != nil {
		return e.Folder.ID
	}
	if e.File != nil {
		return e.File.ID
	}
	return ""
}

// Name returns the name of the wrapped row.
func (e DriveEntry) Name() string {
	if e.Folder != nil {
		return e.Folder.Name
	}
	if e.File != nil {
		return e.File.Name
	}
	return ""
}

// ParentID returns the folder containing the wrapped row, nil at the root.
func (e DriveEntry) ParentID() *string {
	if e.Folder != nil {
		return e.Folder.ParentID
	}
	if e.File != nil {
		return e.File.FolderID
	}
	return nil
}

// FolderEntry wraps a folder as a DriveEntry.
func FolderEntry(f *Folder) DriveEntry {
	return DriveEntry{Type: EntryFolder, Folder: f}
}

// FileEntry wraps a file or paste as a DriveEntry.
func FileEntry(f *File) DriveEntry {
	t := EntryFile
	if f.IsPaste() {
		t = EntryPaste
	}
	return DriveEntry{Type: t, File: f}
}

// User is the authenticated principal on whose behalf an operation runs.
type User struct {
	ID    string
	Email string
	Name  string
}

// Operation records a mutating command run against the drive.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "success" or "error"
}
