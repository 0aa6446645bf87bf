package synccache

import (
	"context"
	"testing"
	"time"

	"minix/internal/drive"
	"minix/internal/model"
)

const owner = "owner-1"

type listResult struct {
	entries []model.DriveEntry
	err     error
}

type listCall struct {
	ctx      context.Context
	folderID *string
	reply    chan listResult
}

func (c *listCall) respond(entries []model.DriveEntry, err error) {
	c.reply <- listResult{entries: entries, err: err}
}

// gatedLister hands every ListFolder call to the test and blocks until the
// test responds or the call's context is cancelled.
type gatedLister struct {
	calls chan *listCall
}

func newGatedLister() *gatedLister {
	return &gatedLister{calls: make(chan *listCall, 16)}
}

func (l *gatedLister) ListFolder(ctx context.Context, folderID *string) ([]model.DriveEntry, error) {
	c := &listCall{ctx: ctx, folderID: folderID, reply: make(chan listResult, 1)}
	l.calls <- c
	select {
	case r := <-c.reply:
		return r.entries, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *gatedLister) expectCall(t *testing.T) *listCall {
	t.Helper()
	select {
	case c := <-l.calls:
		return c
	case <-time.After(time.Second):
		t.Fatal("expected a fetch")
	}
	return nil
}

func (l *gatedLister) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-l.calls:
		t.Fatalf("unexpected fetch of %v", c.folderID)
	case <-time.After(50 * time.Millisecond):
	}
}

func folderRow(id, name string, parent *string) model.DriveEntry {
	return model.FolderEntry(&model.Folder{ID: id, Name: name, ParentID: parent, OwnerID: owner})
}

func fileRow(id, name string, folder *string) model.DriveEntry {
	return model.FileEntry(&model.File{ID: id, Name: name, FolderID: folder, OwnerID: owner, Kind: model.KindFile})
}

func insertEvent(e model.DriveEntry) drive.ChangeEvent {
	return changeEvent(drive.EventInsert, e)
}

func changeEvent(t drive.EventType, e model.DriveEntry) drive.ChangeEvent {
	table := drive.TableFiles
	if e.Type == model.EntryFolder {
		table = drive.TableFolders
	}
	ev := drive.ChangeEvent{Type: t, OwnerID: owner, Table: table, ID: e.ID(), ParentID: e.ParentID(), HasParent: true}
	if t != drive.EventDelete {
		ev.Entry = &e
	}
	return ev
}

// publishAndWait publishes ev and waits until v reports a change.
func publishAndWait(t *testing.T, feed drive.Publisher, v *View, ev drive.ChangeEvent) {
	t.Helper()
	changed := v.Changes()
	if err := feed.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatalf("view did not change after %s %s", ev.Type, ev.ID)
	}
}

func waitReady(t *testing.T, v *View) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := v.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
}

func ids(entries []model.DriveEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID())
	}
	return out
}

func assertIDs(t *testing.T, v *View, want ...string) {
	t.Helper()
	got := ids(v.Entries())
	if len(got) != len(want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entries = %v, want %v", got, want)
		}
	}
}
