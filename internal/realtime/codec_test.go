package realtime

import (
	"strings"
	"testing"
	"time"

	"minix/internal/drive"
	"minix/internal/model"
)

func TestEncodeDecode(t *testing.T) {
	parent := "folder-1"
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	f := &model.File{ID: "file-1", Name: "a.txt", OwnerID: "alice", FolderID: &parent, Size: 3, Kind: model.KindPaste, CreatedAt: at}
	entry := model.FileEntry(f)
	in := drive.ChangeEvent{
		Type:      drive.EventUpdate,
		OwnerID:   "alice",
		Table:     drive.TableFiles,
		ID:        f.ID,
		ParentID:  &parent,
		HasParent: true,
		Entry:     &entry,
		At:        at,
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if out.Type != in.Type || out.ID != in.ID || !out.HasParent || *out.ParentID != parent || !out.At.Equal(at) {
		t.Errorf("Decode() = %+v", out)
	}
	if out.Entry == nil || out.Entry.Type != model.EntryPaste || out.Entry.File.Name != "a.txt" {
		t.Errorf("Entry = %+v, want paste a.txt", out.Entry)
	}
}

func TestDecode_Root(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"delete","owner_id":"alice","table":"folders","id":"x","has_parent":true}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !ev.HasParent || ev.ParentID != nil || ev.Entry != nil {
		t.Errorf("Decode() = %+v, want root delete without entry", ev)
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"not json", `{`, "decoding change event"},
		{"unknown type", `{"type":"truncate"}`, "unknown event type"},
		{"entry without row", `{"type":"insert","entry":{"type":"folder"}}`, "folder entry without folder"},
		{"unknown entry", `{"type":"insert","entry":{"type":"link"}}`, "unknown entry type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
