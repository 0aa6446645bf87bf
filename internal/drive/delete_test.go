package drive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"minix/internal/drive"
	"minix/internal/model"
	"minix/internal/testutil"
)

// tree is A -> B -> C with one file per level, plus a sibling root folder S.
type tree struct {
	A, B, C, S     *model.Folder
	fA, fB, fC, fS *model.File
}

func buildTree(t *testing.T, h *testutil.Harness) tree {
	t.Helper()
	var tr tree
	tr.A = mustCreateFolder(t, h, "A", nil)
	tr.B = mustCreateFolder(t, h, "B", tr.A)
	tr.C = mustCreateFolder(t, h, "C", tr.B)
	tr.S = mustCreateFolder(t, h, "S", nil)
	tr.fA = mustUpload(t, h, tr.A, "a.txt", "text/plain", "aaa")
	tr.fB = mustUpload(t, h, tr.B, "b.png", "image/png", "bbbb")
	tr.fC = mustUpload(t, h, tr.C, "c.mp4", "video/mp4", "ccccc")
	tr.fS = mustUpload(t, h, tr.S, "s.bin", "", "s")
	return tr
}

func TestDeleteFolders_DeepTree(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	tr := buildTree(t, h)
	h.Events.Reset()

	report, err := h.Service.DeleteFolders(h.Ctx, []string{tr.A.ID})
	if err != nil {
		t.Fatalf("DeleteFolders() error = %v", err)
	}
	if report.FoldersDeleted != 3 || report.FilesDeleted != 3 {
		t.Errorf("deleted %d folders, %d files; want 3, 3", report.FoldersDeleted, report.FilesDeleted)
	}
	if len(report.Results) != 1 || !report.Results[0].Success {
		t.Errorf("Results = %+v, want one success", report.Results)
	}

	for _, f := range []*model.Folder{tr.A, tr.B, tr.C} {
		got, _ := h.DB.FindFolder(context.Background(), testutil.TestOwner, f.ID)
		if got != nil {
			t.Errorf("folder %s still exists", f.Name)
		}
	}
	for _, f := range []*model.File{tr.fA, tr.fB, tr.fC} {
		got, _ := h.DB.FindFile(context.Background(), testutil.TestOwner, f.ID)
		if got != nil {
			t.Errorf("file %s still exists", f.Name)
		}
		if h.Objects.Has(f.StoragePath) {
			t.Errorf("blob %s still exists", f.StoragePath)
		}
	}

	if got, _ := h.DB.FindFolder(context.Background(), testutil.TestOwner, tr.S.ID); got == nil {
		t.Error("sibling folder was deleted")
	}
	if !h.Objects.Has(tr.fS.StoragePath) {
		t.Error("sibling blob was deleted")
	}
}

func TestDeleteFolders_EventOrder(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	tr := buildTree(t, h)
	h.Events.Reset()

	if _, err := h.Service.DeleteFolders(h.Ctx, []string{tr.A.ID}); err != nil {
		t.Fatalf("DeleteFolders() error = %v", err)
	}

	events := h.Events.Events()
	if len(events) != 6 {
		t.Fatalf("published %d events, want 6", len(events))
	}
	for _, ev := range events[:3] {
		if ev.Type != drive.EventDelete || ev.Table != drive.TableFiles {
			t.Errorf("event %+v, want file delete first", ev)
		}
	}
	var folders []string
	for _, ev := range events[3:] {
		if ev.Type != drive.EventDelete || ev.Table != drive.TableFolders {
			t.Errorf("event %+v, want folder delete", ev)
		}
		if ev.Entry != nil {
			t.Error("delete events carry no entry")
		}
		folders = append(folders, ev.ID)
	}
	want := []string{tr.C.ID, tr.B.ID, tr.A.ID}
	if !equalStrings(folders, want) {
		t.Errorf("folder delete order = %v, want deepest first %v", folders, want)
	}
}

func TestDeleteFolders_PartialStorageFailure(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	tr := buildTree(t, h)
	h.Objects.FailRemove(tr.fB.StoragePath)

	report, err := h.Service.DeleteFolders(h.Ctx, []string{tr.A.ID})
	var psf *drive.PartialStorageFailure
	if !errors.As(err, &psf) {
		t.Fatalf("DeleteFolders() error = %v, want *PartialStorageFailure", err)
	}
	if !errors.Is(err, testutil.ErrInjected) {
		t.Error("PartialStorageFailure does not unwrap to the storage error")
	}
	if len(psf.Failures) != 1 || psf.Failures[0].FileID != tr.fB.ID || psf.Failures[0].Path != tr.fB.StoragePath {
		t.Errorf("Failures = %+v, want one for %s", psf.Failures, tr.fB.StoragePath)
	}

	if report == nil {
		t.Fatal("report is nil on partial failure")
	}
	if report.FoldersDeleted != 3 || report.FilesDeleted != 3 {
		t.Errorf("deleted %d folders, %d files; want 3, 3", report.FoldersDeleted, report.FilesDeleted)
	}
	if len(report.StorageErrors) != 1 {
		t.Errorf("StorageErrors = %d, want 1", len(report.StorageErrors))
	}

	// Rows are gone even though one blob is left behind.
	if got, _ := h.DB.FindFile(context.Background(), testutil.TestOwner, tr.fB.ID); got != nil {
		t.Error("row of the failed blob still exists")
	}
	if !h.Objects.Has(tr.fB.StoragePath) {
		t.Error("failed blob should still be present")
	}
	if h.Objects.Has(tr.fA.StoragePath) || h.Objects.Has(tr.fC.StoragePath) {
		t.Error("other blobs should have been removed")
	}
}

func TestDeleteFolders_PartialOwnership(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	mine := mustCreateFolder(t, h, "Mine", nil)
	other := testutil.UserContext("owner-2")
	theirs, err := h.Service.CreateFolder(other, "Theirs", nil)
	if err != nil {
		t.Fatalf("CreateFolder() as owner-2 error = %v", err)
	}

	report, err := h.Service.DeleteFolders(h.Ctx, []string{theirs.ID, mine.ID, "missing"})
	if err != nil {
		t.Fatalf("DeleteFolders() error = %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("Results = %+v, want 3", report.Results)
	}
	wantIDs := []string{theirs.ID, mine.ID, "missing"}
	for i, r := range report.Results {
		if r.ID != wantIDs[i] {
			t.Errorf("Results[%d].ID = %s, want %s", i, r.ID, wantIDs[i])
		}
	}
	if report.Results[0].Success || !errors.Is(report.Results[0].Err, drive.ErrNotFoundOrForbidden) {
		t.Errorf("foreign folder result = %+v, want ErrNotFoundOrForbidden", report.Results[0])
	}
	if !report.Results[1].Success {
		t.Errorf("own folder result = %+v, want success", report.Results[1])
	}
	if !errors.Is(report.Results[2].Err, drive.ErrNotFoundOrForbidden) {
		t.Errorf("missing folder result = %+v, want ErrNotFoundOrForbidden", report.Results[2])
	}

	if got, _ := h.DB.FindFolder(context.Background(), "owner-2", theirs.ID); got == nil {
		t.Error("another owner's folder was deleted")
	}
}

func TestDeleteFolders_NothingOwned(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	theirs, _ := h.Service.CreateFolder(testutil.UserContext("owner-2"), "Theirs", nil)

	report, err := h.Service.DeleteFolders(h.Ctx, []string{theirs.ID})
	if !errors.Is(err, drive.ErrNotFoundOrForbidden) {
		t.Fatalf("DeleteFolders() error = %v, want ErrNotFoundOrForbidden", err)
	}
	if report == nil || len(report.Results) != 1 {
		t.Errorf("report = %+v, want one failed result", report)
	}
	if len(h.Objects.RemoveCalls()) != 0 {
		t.Error("no blobs should be touched when nothing is owned")
	}
}

func TestDeleteFolders_DescendantAlsoRequested(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	tr := buildTree(t, h)

	report, err := h.Service.DeleteFolders(h.Ctx, []string{tr.A.ID, tr.C.ID, tr.A.ID})
	if err != nil {
		t.Fatalf("DeleteFolders() error = %v", err)
	}
	if report.FoldersDeleted != 3 || report.FilesDeleted != 3 {
		t.Errorf("deleted %d folders, %d files; want 3, 3", report.FoldersDeleted, report.FilesDeleted)
	}
	if len(report.Results) != 2 {
		t.Errorf("Results = %+v, want one per distinct id", report.Results)
	}
	for _, r := range report.Results {
		if !r.Success {
			t.Errorf("result %+v, want success", r)
		}
	}
}

func TestDeleteFolders_Idempotent(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	tr := buildTree(t, h)

	if _, err := h.Service.DeleteFolders(h.Ctx, []string{tr.A.ID}); err != nil {
		t.Fatalf("first DeleteFolders() error = %v", err)
	}
	calls := len(h.Objects.RemoveCalls())

	_, err := h.Service.DeleteFolders(h.Ctx, []string{tr.A.ID})
	if !errors.Is(err, drive.ErrNotFoundOrForbidden) {
		t.Errorf("second DeleteFolders() error = %v, want ErrNotFoundOrForbidden", err)
	}
	if got := len(h.Objects.RemoveCalls()); got != calls {
		t.Errorf("second delete issued %d extra Remove calls", got-calls)
	}
}

func TestDeleteFolders_RemovesExpiredPastes(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	tr := buildTree(t, h)
	expires := h.Clock.Now().Add(time.Hour)
	paste, err := h.Service.CreatePaste(h.Ctx, drive.PasteInput{
		Title:     "note",
		Content:   "ephemeral",
		FolderID:  &tr.B.ID,
		ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("CreatePaste() error = %v", err)
	}
	h.Clock.Advance(2 * time.Hour)

	report, err := h.Service.DeleteFolders(h.Ctx, []string{tr.A.ID})
	if err != nil {
		t.Fatalf("DeleteFolders() error = %v", err)
	}
	if report.FilesDeleted != 4 {
		t.Errorf("FilesDeleted = %d, want 4 including the expired paste", report.FilesDeleted)
	}
	if h.Objects.Has(paste.StoragePath) {
		t.Error("expired paste blob was left behind")
	}
	if got, _ := h.DB.FindFile(context.Background(), testutil.TestOwner, paste.ID); got != nil {
		t.Error("expired paste row was left behind")
	}
}

func TestDeleteFolders_BatchesBlobRemoval(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{BatchSize: 2})
	folder := mustCreateFolder(t, h, "Big", nil)
	for _, name := range []string{"1", "2", "3", "4", "5"} {
		mustUpload(t, h, folder, name, "text/plain", name)
	}

	if _, err := h.Service.DeleteFolders(h.Ctx, []string{folder.ID}); err != nil {
		t.Fatalf("DeleteFolders() error = %v", err)
	}

	total := 0
	for _, batch := range h.Objects.RemoveCalls() {
		if len(batch) > 2 {
			t.Errorf("Remove batch of %d exceeds BatchSize", len(batch))
		}
		total += len(batch)
	}
	if total != 5 {
		t.Errorf("removed %d blobs, want 5", total)
	}
}

func TestDeleteFolders_Validation(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})

	if _, err := h.Service.DeleteFolders(h.Ctx, nil); !errors.Is(err, drive.ErrValidation) {
		t.Errorf("DeleteFolders(nil) error = %v, want ErrValidation", err)
	}
	if _, err := h.Service.DeleteFolders(h.Ctx, []string{""}); !errors.Is(err, drive.ErrValidation) {
		t.Errorf("DeleteFolders([\"\"]) error = %v, want ErrValidation", err)
	}
	if _, err := h.Service.DeleteFolders(context.Background(), []string{"x"}); !errors.Is(err, drive.ErrUnauthenticated) {
		t.Errorf("DeleteFolders() without user error = %v, want ErrUnauthenticated", err)
	}
}

func TestDeleteFiles(t *testing.T) {
	h := testutil.NewHarness(t, drive.Options{})
	keep := mustUpload(t, h, nil, "keep.txt", "text/plain", "k")
	gone := mustUpload(t, h, nil, "gone.txt", "text/plain", "g")
	broken := mustUpload(t, h, nil, "broken.txt", "text/plain", "b")
	h.Objects.FailRemove(broken.StoragePath)

	report, err := h.Service.DeleteFiles(h.Ctx, []string{gone.ID, "missing", broken.ID})
	var psf *drive.PartialStorageFailure
	if !errors.As(err, &psf) {
		t.Fatalf("DeleteFiles() error = %v, want *PartialStorageFailure", err)
	}
	if report.FilesDeleted != 2 {
		t.Errorf("FilesDeleted = %d, want 2", report.FilesDeleted)
	}
	if len(report.Results) != 3 || report.Results[1].Success {
		t.Errorf("Results = %+v, want missing id reported second", report.Results)
	}

	entries, err := h.Service.ListFolder(h.Ctx, nil)
	if err != nil {
		t.Fatalf("ListFolder() error = %v", err)
	}
	if got := entryIDs(entries); !equalStrings(got, []string{keep.ID}) {
		t.Errorf("remaining entries = %v, want [%s]", got, keep.ID)
	}
}
