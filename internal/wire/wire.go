// Package wire holds the JSON representations of drive rows and change
// events shared by the HTTP API and the realtime feeds.
package wire

import (
	"fmt"
	"time"

	"minix/internal/drive"
	"minix/internal/model"
)

// Folder is the JSON form of a folder row.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// File is the JSON form of a file or paste row.
type File struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	OwnerID            string     `json:"owner_id"`
	FolderID           *string    `json:"folder_id"`
	Size               int64      `json:"size"`
	ContentType        string     `json:"content_type"`
	StoragePath        string     `json:"storage_path"`
	Kind               string     `json:"kind"`
	Syntax             string     `json:"syntax,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	AccessURL          string     `json:"access_url,omitempty"`
	AccessURLExpiresAt *time.Time `json:"access_url_expires_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Entry is a tagged folder or file. Exactly one of Folder and File is set.
type Entry struct {
	Type   string  `json:"type"`
	Folder *Folder `json:"folder,omitempty"`
	File   *File   `json:"file,omitempty"`
}

// Event is the JSON form of a change event, used by the SSE stream and
// the remote feeds.
type Event struct {
	Type      string    `json:"type"`
	OwnerID   string    `json:"owner_id"`
	Table     string    `json:"table,omitempty"`
	ID        string    `json:"id,omitempty"`
	ParentID  *string   `json:"parent_id,omitempty"`
	HasParent bool      `json:"has_parent"`
	Entry     *Entry    `json:"entry,omitempty"`
	At        time.Time `json:"at"`
}

// FromFolder converts a folder row.
func FromFolder(f *model.Folder) *Folder {
	if f == nil {
		return nil
	}
	return &Folder{ID: f.ID, Name: f.Name, ParentID: f.ParentID, OwnerID: f.OwnerID, CreatedAt: f.CreatedAt}
}

// Model converts f back to a folder row.
func (f *Folder) Model() *model.Folder {
	return &model.Folder{ID: f.ID, Name: f.Name, ParentID: f.ParentID, OwnerID: f.OwnerID, CreatedAt: f.CreatedAt}
}

// FromFile converts a file row.
func FromFile(f *model.File) *File {
	if f == nil {
		return nil
	}
	return &File{
		ID:                 f.ID,
		Name:               f.Name,
		OwnerID:            f.OwnerID,
		FolderID:           f.FolderID,
		Size:               f.Size,
		ContentType:        f.ContentType,
		StoragePath:        f.StoragePath,
		Kind:               f.Kind,
		Syntax:             f.Syntax,
		ExpiresAt:          f.ExpiresAt,
		AccessURL:          f.AccessURL,
		AccessURLExpiresAt: f.AccessURLExpiresAt,
		CreatedAt:          f.CreatedAt,
	}
}

// Model converts f back to a file row.
func (f *File) Model() *model.File {
	return &model.File{
		ID:                 f.ID,
		Name:               f.Name,
		OwnerID:            f.OwnerID,
		FolderID:           f.FolderID,
		Size:               f.Size,
		ContentType:        f.ContentType,
		StoragePath:        f.StoragePath,
		Kind:               f.Kind,
		Syntax:             f.Syntax,
		ExpiresAt:          f.ExpiresAt,
		AccessURL:          f.AccessURL,
		AccessURLExpiresAt: f.AccessURLExpiresAt,
		CreatedAt:          f.CreatedAt,
	}
}

// FromEntry converts one listing entry.
func FromEntry(e model.DriveEntry) Entry {
	return Entry{Type: e.Type, Folder: FromFolder(e.Folder), File: FromFile(e.File)}
}

// FromEntries converts a mixed listing.
func FromEntries(entries []model.DriveEntry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromEntry(e))
	}
	return out
}

// Model converts e back into a DriveEntry, rejecting entries whose tag does
// not match the row they carry.
func (e *Entry) Model() (model.DriveEntry, error) {
	switch e.Type {
	case model.EntryFolder:
		if e.Folder == nil {
			return model.DriveEntry{}, fmt.Errorf("folder entry without folder")
		}
		return model.FolderEntry(e.Folder.Model()), nil
	case model.EntryFile, model.EntryPaste:
		if e.File == nil {
			return model.DriveEntry{}, fmt.Errorf("%s entry without file", e.Type)
		}
		return model.FileEntry(e.File.Model()), nil
	default:
		return model.DriveEntry{}, fmt.Errorf("unknown entry type: %q", e.Type)
	}
}

// FromEvent converts a change event.
func FromEvent(ev drive.ChangeEvent) Event {
	out := Event{
		Type:      string(ev.Type),
		OwnerID:   ev.OwnerID,
		Table:     ev.Table,
		ID:        ev.ID,
		ParentID:  ev.ParentID,
		HasParent: ev.HasParent,
		At:        ev.At,
	}
	if ev.Entry != nil {
		e := FromEntry(*ev.Entry)
		out.Entry = &e
	}
	return out
}

// ChangeEvent converts e back into a drive.ChangeEvent.
func (e *Event) ChangeEvent() (drive.ChangeEvent, error) {
	switch drive.EventType(e.Type) {
	case drive.EventInsert, drive.EventUpdate, drive.EventDelete, drive.EventResync:
	default:
		return drive.ChangeEvent{}, fmt.Errorf("unknown event type: %q", e.Type)
	}
	ev := drive.ChangeEvent{
		Type:      drive.EventType(e.Type),
		OwnerID:   e.OwnerID,
		Table:     e.Table,
		ID:        e.ID,
		ParentID:  e.ParentID,
		HasParent: e.HasParent,
		At:        e.At,
	}
	if e.Entry != nil {
		entry, err := e.Entry.Model()
		if err != nil {
			return drive.ChangeEvent{}, err
		}
		ev.Entry = &entry
	}
	return ev, nil
}
