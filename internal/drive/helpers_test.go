package drive_test

import (
	"strings"
	"testing"

	"minix/internal/drive"
	"minix/internal/model"
	"minix/internal/testutil"
)

func mustCreateFolder(t *testing.T, h *testutil.Harness, name string, parent *model.Folder) *model.Folder {
	t.Helper()
	var parentID *string
	if parent != nil {
		parentID = &parent.ID
	}
	f, err := h.Service.CreateFolder(h.Ctx, name, parentID)
	if err != nil {
		t.Fatalf("CreateFolder(%q) error = %v", name, err)
	}
	return f
}

func mustUpload(t *testing.T, h *testutil.Harness, folder *model.Folder, name, contentType, content string) *model.File {
	t.Helper()
	var folderID *string
	if folder != nil {
		folderID = &folder.ID
	}
	report, err := h.Service.UploadFiles(h.Ctx, folderID, []drive.Upload{{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(content)),
		Body:        strings.NewReader(content),
	}})
	if err != nil {
		t.Fatalf("UploadFiles(%q) error = %v", name, err)
	}
	if len(report.Uploaded) != 1 {
		t.Fatalf("UploadFiles(%q) uploaded %d files, failures %v", name, len(report.Uploaded), report.Failed)
	}
	return report.Uploaded[0]
}

func entryIDs(entries []model.DriveEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID())
	}
	return ids
}

func folderIDs(folders []*model.Folder) []string {
	ids := make([]string, 0, len(folders))
	for _, f := range folders {
		ids = append(ids, f.ID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
