package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"minix/internal/config"
	"minix/internal/objectstore"
	"minix/internal/synccache"
	"minix/internal/testutil"
)

// testConfig returns a config backed entirely by in-memory adapters.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(testutil.TestOwner, t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.ObjectStore = config.ObjectStoreConfig{Type: "memory", Name: "test"}
	cfg.Realtime = config.RealtimeConfig{Type: "memory"}
	return cfg
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(cfg.BaseDir, "db")}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *DriveApp {
	t.Helper()
	a, err := NewDriveApp(context.Background(), cfg, operation, Options{
		LogLevel: slog.LevelError,
		Clock:    testutil.FixedClock(),
		IDs:      testutil.NewStubIDGenerator(),
	})
	if err != nil {
		t.Fatalf("NewDriveApp() error = %v", err)
	}
	return a
}

func writeLocalFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}
	return p
}

func TestNewDriveApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.OwnerID = ""
	if _, err := NewDriveApp(context.Background(), cfg, "ListFolder", Options{}); err == nil {
		t.Fatal("NewDriveApp() should reject a config without owner_id")
	}
}

func TestNewDriveApp_RequiresMigratedDatabase(t *testing.T) {
	cfg := sqliteConfig(t)
	_, err := NewDriveApp(context.Background(), cfg, "ListFolder", Options{LogLevel: slog.LevelError})
	if err == nil || !strings.Contains(err.Error(), "db migrate") {
		t.Fatalf("NewDriveApp() error = %v, want hint to migrate", err)
	}

	db, err := MigrateDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	db.Close()

	a := newTestApp(t, cfg, "ListFolder")
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDriveApp_OperationLog(t *testing.T) {
	cfg := sqliteConfig(t)
	db, err := MigrateDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	db.Close()
	ctx := context.Background()

	a := newTestApp(t, cfg, "CreateFolder")
	if _, err := a.CreateFolder(ctx, "Docs", nil); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = newTestApp(t, cfg, "RenameFolder")
	if _, err := a.RenameFolder(ctx, "missing", "x"); err == nil {
		t.Fatal("RenameFolder() of a missing folder should fail")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	a = newTestApp(t, cfg, "ListFolder")
	if _, err := a.ListFolder(ctx, nil); err != nil {
		t.Fatalf("ListFolder() error = %v", err)
	}
	ops, err := a.History(ctx, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	a.Close()

	if len(ops) != 2 {
		t.Fatalf("History() returned %d operations, want 2 (reads are not logged)", len(ops))
	}
	rename, create := ops[0], ops[1]
	if create.Operation != "CreateFolder" || create.Parameters != "Docs root" || create.Status != StatusSuccess {
		t.Errorf("create operation = %+v", create)
	}
	if rename.Operation != "RenameFolder" || rename.Status != StatusError {
		t.Errorf("rename operation = %+v, want status error", rename)
	}
	for _, op := range ops {
		if op.FinishedAt == nil {
			t.Errorf("operation %d was not finished", op.ID)
		}
	}
}

func TestDriveApp_FilesAndArchive(t *testing.T) {
	a := newTestApp(t, testConfig(t), "UploadFiles")
	defer a.Close()
	ctx := context.Background()
	local := t.TempDir()

	docs, err := a.CreateFolder(ctx, "Docs", nil)
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	paths := []string{
		writeLocalFile(t, local, "notes.txt", "hello"),
		writeLocalFile(t, local, "photo.png", "png!"),
	}
	report, err := a.UploadPaths(ctx, &docs.ID, paths)
	if err != nil {
		t.Fatalf("UploadPaths() error = %v", err)
	}
	if len(report.Uploaded) != 2 {
		t.Fatalf("uploaded %d files, want 2", len(report.Uploaded))
	}
	if ct := report.Uploaded[1].ContentType; ct != "image/png" {
		t.Errorf("ContentType = %q, want image/png", ct)
	}

	var buf bytes.Buffer
	if _, err := a.GetFile(ctx, report.Uploaded[0].ID, &buf); err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if buf.String() != "hello" {
		t.Errorf("GetFile() content = %q, want hello", buf.String())
	}

	dest := filepath.Join(local, "docs.zip")
	ar, err := a.DownloadFolder(ctx, docs.ID, dest)
	if err != nil {
		t.Fatalf("DownloadFolder() error = %v", err)
	}
	if ar.Files != 2 {
		t.Errorf("archived %d files, want 2", ar.Files)
	}
	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 3 {
		t.Errorf("archive has %d entries, want 3", len(zr.File))
	}

	if _, err := a.DownloadFolder(ctx, "missing", filepath.Join(local, "missing.zip")); err == nil {
		t.Error("DownloadFolder() of a missing folder should fail")
	}
	if _, err := os.Stat(filepath.Join(local, "missing.zip")); !os.IsNotExist(err) {
		t.Error("failed download left an archive behind")
	}
	leftovers, _ := filepath.Glob(filepath.Join(local, ".minix-archive-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp archives left behind: %v", leftovers)
	}
}

func TestDriveApp_UploadPaths_Errors(t *testing.T) {
	a := newTestApp(t, testConfig(t), "UploadFiles")
	defer a.Close()
	dir := t.TempDir()

	tests := []struct {
		name  string
		paths []string
	}{
		{name: "missing file", paths: []string{filepath.Join(dir, "absent.txt")}},
		{name: "directory", paths: []string{dir}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.UploadPaths(context.Background(), nil, tt.paths); err == nil {
				t.Error("UploadPaths() should fail")
			}
		})
	}
	if a.Operation().Status != StatusError {
		t.Errorf("operation status = %q, want %q", a.Operation().Status, StatusError)
	}
}

func TestDriveApp_UploadDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upload.Ignore = []string{"*.tmp"}
	a := newTestApp(t, cfg, "UploadDirectory")
	defer a.Close()
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "Trip")
	if err := os.MkdirAll(filepath.Join(local, "photos"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	writeLocalFile(t, local, "plan.txt", "day 1")
	writeLocalFile(t, local, "scratch.tmp", "x")
	writeLocalFile(t, local, ".minixignore", "drafts/\n")
	writeLocalFile(t, filepath.Join(local, "photos"), "beach.png", "png!")
	if err := os.MkdirAll(filepath.Join(local, "drafts"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	writeLocalFile(t, filepath.Join(local, "drafts"), "old.txt", "old")

	report, err := a.UploadDirectory(ctx, nil, local)
	if err != nil {
		t.Fatalf("UploadDirectory() error = %v", err)
	}
	if report.Root == nil || report.Root.Name != "Trip" {
		t.Fatalf("Root = %+v, want folder Trip", report.Root)
	}
	if report.Folders != 2 {
		t.Errorf("Folders = %d, want 2", report.Folders)
	}
	if len(report.Files) != 2 || len(report.Failed) != 0 {
		t.Fatalf("Files = %d, Failed = %d, want 2 and 0", len(report.Files), len(report.Failed))
	}

	entries, err := a.WalkTree(ctx, &report.Root.ID)
	if err != nil {
		t.Fatalf("WalkTree() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.Folder != nil {
			names = append(names, e.Folder.Name+"/")
		} else {
			names = append(names, e.File.Name)
		}
	}
	got := strings.Join(names, ",")
	for _, want := range []string{"photos/", "plan.txt", "beach.png"} {
		if !strings.Contains(got, want) {
			t.Errorf("tree %q missing %q", got, want)
		}
	}
	for _, skipped := range []string{"scratch.tmp", "drafts", "old.txt", ".minixignore"} {
		if strings.Contains(got, skipped) {
			t.Errorf("tree %q contains ignored %q", got, skipped)
		}
	}

	if _, err := a.UploadDirectory(ctx, nil, filepath.Join(local, "plan.txt")); err == nil {
		t.Error("UploadDirectory() of a regular file should fail")
	}
}

func TestDriveApp_Snapshot(t *testing.T) {
	cfg := sqliteConfig(t)
	db, err := MigrateDatabase(context.Background(), cfg)
	if err != nil {
		t.Fatalf("MigrateDatabase() error = %v", err)
	}
	db.Close()

	a := newTestApp(t, cfg, "Snapshot")
	defer a.Close()

	key, err := a.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if key != "snapshots/minix-20240115T103000Z.db" {
		t.Errorf("Snapshot() key = %q", key)
	}
	store := a.objects.(*objectstore.MemoryStore)
	data, _, ok := store.Content(key)
	if !ok || !bytes.HasPrefix(data, []byte("SQLite format 3")) {
		t.Errorf("snapshot blob missing or not a sqlite file")
	}
}

func TestDriveApp_Snapshot_MemoryDatabase(t *testing.T) {
	a := newTestApp(t, testConfig(t), "Snapshot")
	defer a.Close()
	if _, err := a.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() of memory database error = %v", err)
	}
}

func TestDriveApp_EncryptedStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.ObjectStore.Encrypted = true
	ctx := context.Background()

	if _, err := NewDriveApp(ctx, cfg, "UploadFiles", Options{LogLevel: slog.LevelError}); err == nil || !strings.Contains(err.Error(), "keys init") {
		t.Fatalf("NewDriveApp() error = %v, want hint to create keys", err)
	}
	if err := InitKeys(cfg, "correct horse"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}

	a := newTestApp(t, cfg, "UploadFiles")
	defer a.Close()
	if !a.NeedsUnlock() {
		t.Error("NeedsUnlock() = false for an encrypted store")
	}

	p := writeLocalFile(t, t.TempDir(), "secret.txt", "top secret")
	report, err := a.UploadPaths(ctx, nil, []string{p})
	if err != nil {
		t.Fatalf("UploadPaths() error = %v", err)
	}
	id := report.Uploaded[0].ID

	var buf bytes.Buffer
	if _, err := a.GetFile(ctx, id, &buf); !errors.Is(err, objectstore.ErrLocked) {
		t.Fatalf("GetFile() before unlock error = %v, want ErrLocked", err)
	}
	if err := a.Unlock("wrong"); err == nil {
		t.Fatal("Unlock() with wrong passphrase should fail")
	}
	if err := a.Unlock("correct horse"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	buf.Reset()
	if _, err := a.GetFile(ctx, id, &buf); err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if buf.String() != "top secret" {
		t.Errorf("GetFile() content = %q", buf.String())
	}
}

func TestInitKeys_RefusesOverwrite(t *testing.T) {
	cfg := testConfig(t)
	if err := InitKeys(cfg, "pw"); err != nil {
		t.Fatalf("InitKeys() error = %v", err)
	}
	if err := InitKeys(cfg, "pw"); err == nil {
		t.Fatal("second InitKeys() should fail")
	}
}

func TestDriveApp_Watch(t *testing.T) {
	a := newTestApp(t, testConfig(t), "Watch")
	defer a.Close()
	if a.SharedFeed() {
		t.Error("SharedFeed() = true for the in-memory broker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	states := make(chan WatchState, 64)
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(ctx, nil, func(s WatchState) { states <- s })
	}()

	waitFor := func(desc string, ok func(WatchState) bool) {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case s := <-states:
				if ok(s) {
					return
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %s", desc)
			}
		}
	}

	waitFor("empty ready listing", func(s WatchState) bool {
		return s.State == synccache.Ready && len(s.Entries) == 0
	})
	if _, err := a.CreateFolder(context.Background(), "Docs", nil); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	waitFor("listing with Docs", func(s WatchState) bool {
		return s.State == synccache.Ready && len(s.Entries) == 1 && s.Entries[0].Folder != nil && s.Entries[0].Folder.Name == "Docs"
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}
