package drive

import (
	"context"
	"time"

	"minix/internal/model"
)

// EventType identifies the kind of change carried by a ChangeEvent.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"

	// EventResync tells a subscriber that events may have been lost and any
	// derived state must be refetched.
	EventResync EventType = "resync"
)

// Tables named in ChangeEvent.Table.
const (
	TableFolders = "folders"
	TableFiles   = "files"
)

// ChangeEvent describes one committed change to a folder or file row.
type ChangeEvent struct {
	Type    EventType
	OwnerID string
	Table   string
	ID      string

	// ParentID is the folder containing the row. It is only meaningful when
	// HasParent is set; a nil ParentID with HasParent means the root.
	ParentID  *string
	HasParent bool

	// Entry is the row after the change. Nil for deletes.
	Entry *model.DriveEntry
	At    time.Time
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// Subscription is a live stream of change events for one owner.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Feed is a Publisher that can also be subscribed to.
type Feed interface {
	Publisher
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ChangeEvent) error { return nil }

func folderEvent(t EventType, f *model.Folder, at time.Time) ChangeEvent {
	ev := ChangeEvent{
		Type:      t,
		OwnerID:   f.OwnerID,
		Table:     TableFolders,
		ID:        f.ID,
		ParentID:  f.ParentID,
		HasParent: true,
		At:        at,
	}
	if t != EventDelete {
		e := model.FolderEntry(f)
		ev.Entry = &e
	}
	return ev
}

func fileEvent(t EventType, f *model.File, at time.Time) ChangeEvent {
	ev := ChangeEvent{
		Type:      t,
		OwnerID:   f.OwnerID,
		Table:     TableFiles,
		ID:        f.ID,
		ParentID:  f.FolderID,
		HasParent: true,
		At:        at,
	}
	if t != EventDelete {
		e := model.FileEntry(f)
		ev.Entry = &e
	}
	return ev
}

// publish emits events, logging rather than failing on errors: the change is
// already committed and subscribers recover on their next resync.
func (s *DriveService) publish(ctx context.Context, events ...ChangeEvent) {
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("publishing change event failed", "type", string(ev.Type), "table", ev.Table, "id", ev.ID, "error", err)
		}
	}
}
