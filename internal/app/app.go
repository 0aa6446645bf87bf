package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"minix/internal/config"
	"minix/internal/database"
	"minix/internal/drive"
	"minix/internal/encryption"
	"minix/internal/localfs"
	"minix/internal/model"
	"minix/internal/objectstore"
	"minix/internal/realtime"
	"minix/internal/server"
	"minix/internal/synccache"
)

// DriveApp is the application layer between the CLI and DriveService.
// It constructs all dependencies from config, runs every call as the
// configured owner, records mutating commands in the operation log and
// closes its resources on Close.
type DriveApp struct {
	cfg     *config.Config
	db      *database.SQLDatabase
	objects drive.ObjectStore
	enc     encryption.Encryptor
	feed    drive.Feed
	service *drive.DriveService
	logger  *slog.Logger
	clock   drive.Clock
	op      *Operation
	opID    string
	logFile *os.File
}

// Options adjusts how NewDriveApp builds the app. The zero value is what
// the CLI uses.
type Options struct {
	LogLevel slog.Leveler
	Clock    drive.Clock
	IDs      drive.IDGenerator
}

// NewDriveApp creates a fully wired DriveApp from the given config.
// operation identifies the CLI command being run (e.g. "CreateFolder").
// The caller must call Close when done.
func NewDriveApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*DriveApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = drive.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = drive.UUIDGenerator{}
	}

	a := &DriveApp{
		cfg:   cfg,
		clock: opts.Clock,
		op:    NewOperation(operation, ""),
		opID:  opts.Clock.Now().UTC().Format("20060102T150405Z"),
	}

	logger, logFile, err := newLogger(cfg.LogDir, a.opID, opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logger, a.logFile = logger, logFile
	adapter := &slogAdapter{l: logger}

	a.db, err = database.NewDatabaseFromConfig(ctx, cfg.Database)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := a.db.CheckMigrations(); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("database schema out of date (run `minix db migrate`): %w", err)
	}

	if cfg.ObjectStore.Encrypted {
		a.enc, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
		if !a.enc.IsConfigured() {
			a.closeResources()
			return nil, fmt.Errorf("object store is encrypted but no keys exist (run `minix keys init`)")
		}
	}

	a.objects, err = objectstore.NewObjectStoreFromConfig(ctx, cfg.ObjectStore, a.enc)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("creating object store: %w", err)
	}

	a.feed, err = realtime.NewFeedFromConfig(ctx, cfg.Realtime, adapter)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("creating change feed: %w", err)
	}

	a.service = drive.NewDriveService(a.db, a.objects, a.feed, nil, adapter, opts.Clock, opts.IDs, driveOptions(cfg))
	return a, nil
}

func driveOptions(cfg *config.Config) drive.Options {
	return drive.Options{
		BatchSize:    cfg.Drive.BatchSize,
		RecentLimit:  cfg.Drive.RecentLimit,
		CapacityGB:   cfg.CapacityGB,
		SignedURLTTL: time.Duration(cfg.Drive.SignedURLTTLSeconds) * time.Second,
		ShareTTL:     time.Duration(cfg.Drive.ShareTTLSeconds) * time.Second,
	}
}

// Service exposes the underlying DriveService.
func (a *DriveApp) Service() *drive.DriveService { return a.service }

// Logger returns the app's structured logger.
func (a *DriveApp) Logger() *slog.Logger { return a.logger }

// Operation returns the operation tracked for this command.
func (a *DriveApp) Operation() *Operation { return a.op }

func (a *DriveApp) userContext(ctx context.Context) context.Context {
	return drive.WithUser(ctx, &model.User{ID: a.cfg.OwnerID})
}

// persistOperation saves the operation to the database, giving it an id.
// It is only called by mutating commands.
func (a *DriveApp) persistOperation(ctx context.Context, parameters ...string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = strings.Join(parameters, " ")
	op, err := a.db.CreateOperation(ctx, a.op.Operation, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = op.ID
	return nil
}

func optionalArg(id *string) string {
	if id == nil {
		return "root"
	}
	return *id
}

// NeedsUnlock reports whether reading blobs requires the key passphrase.
func (a *DriveApp) NeedsUnlock() bool {
	return a.enc != nil
}

// Unlock decrypts the private key so encrypted blobs can be read.
func (a *DriveApp) Unlock(passphrase string) error {
	if a.enc == nil {
		return nil
	}
	es, ok := a.objects.(*objectstore.EncryptedStore)
	if !ok {
		return nil
	}
	dec, err := a.enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	es.Unlock(dec)
	return nil
}

// Folders

func (a *DriveApp) CreateFolder(ctx context.Context, name string, parentID *string) (*model.Folder, error) {
	if err := a.persistOperation(ctx, name, optionalArg(parentID)); err != nil {
		return nil, err
	}
	f, err := a.service.CreateFolder(a.userContext(ctx), name, parentID)
	return f, a.op.Record(err)
}

func (a *DriveApp) RenameFolder(ctx context.Context, id, name string) (*model.Folder, error) {
	if err := a.persistOperation(ctx, id, name); err != nil {
		return nil, err
	}
	f, err := a.service.RenameFolder(a.userContext(ctx), id, name)
	return f, a.op.Record(err)
}

// DeleteFolders deletes folders with their subtrees. A partial storage
// failure returns the report together with the error.
func (a *DriveApp) DeleteFolders(ctx context.Context, ids []string) (*drive.DeleteReport, error) {
	if err := a.persistOperation(ctx, ids...); err != nil {
		return nil, err
	}
	report, err := a.service.DeleteFolders(a.userContext(ctx), ids)
	return report, a.op.Record(err)
}

func (a *DriveApp) ListFolder(ctx context.Context, folderID *string) ([]model.DriveEntry, error) {
	return a.service.ListFolder(a.userContext(ctx), folderID)
}

func (a *DriveApp) WalkTree(ctx context.Context, folderID *string) ([]model.DriveEntry, error) {
	return a.service.WalkTree(a.userContext(ctx), folderID)
}

func (a *DriveApp) ListAllFolders(ctx context.Context) ([]*model.Folder, error) {
	return a.service.ListAllFolders(a.userContext(ctx))
}

func (a *DriveApp) FolderPath(ctx context.Context, id string) ([]*model.Folder, error) {
	return a.service.FolderPath(a.userContext(ctx), id)
}

// DownloadFolder writes the zip archive of a folder to destPath. The archive
// is written to a temp file next to destPath and renamed on success.
func (a *DriveApp) DownloadFolder(ctx context.Context, id, destPath string) (*drive.ArchiveReport, error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".minix-archive-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	report, err := a.service.DownloadFolder(a.userContext(ctx), id, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing archive: %w", cerr)
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("moving archive into place: %w", err)
	}
	return report, nil
}

// Files

// UploadPaths uploads local files into folderID. The content type is taken
// from each file's extension.
func (a *DriveApp) UploadPaths(ctx context.Context, folderID *string, paths []string) (*drive.UploadReport, error) {
	if err := a.persistOperation(ctx, append([]string{optionalArg(folderID)}, paths...)...); err != nil {
		return nil, err
	}

	uploads := make([]drive.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, a.op.Record(fmt.Errorf("opening %s: %w", p, err))
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, a.op.Record(fmt.Errorf("stat %s: %w", p, err))
		}
		if info.IsDir() {
			return nil, a.op.Record(fmt.Errorf("%s is a directory", p))
		}
		uploads = append(uploads, drive.Upload{
			Name:        filepath.Base(p),
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			Size:        info.Size(),
			Body:        f,
		})
	}

	report, err := a.service.UploadFiles(a.userContext(ctx), folderID, uploads)
	return report, a.op.Record(err)
}

// DirectoryReport summarizes an UploadDirectory call.
type DirectoryReport struct {
	Root    *model.Folder
	Folders int
	Files   []*model.File
	Failed  []drive.UploadFailure
}

// UploadDirectory recreates the local directory dir as a folder under
// parentID and uploads its files, skipping entries matched by the configured
// ignore patterns or dir's .minixignore. Files that fail to store are listed
// in the report; folder errors abort the upload.
func (a *DriveApp) UploadDirectory(ctx context.Context, parentID *string, dir string) (*DirectoryReport, error) {
	if err := a.persistOperation(ctx, optionalArg(parentID), dir); err != nil {
		return nil, err
	}

	tree, err := localfs.Scan(dir, a.cfg.Upload.Ignore)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("scanning %s: %w", dir, err))
	}
	files, dirs := tree.Count()
	a.logger.Info("uploading directory", "path", tree.Path, "files", files, "dirs", dirs)

	report := &DirectoryReport{}
	root, err := a.uploadDir(a.userContext(ctx), parentID, tree, report)
	report.Root = root
	return report, a.op.Record(err)
}

func (a *DriveApp) uploadDir(ctx context.Context, parentID *string, d *localfs.Dir, report *DirectoryReport) (*model.Folder, error) {
	folder, err := a.service.CreateFolder(ctx, d.Name, parentID)
	if err != nil {
		return nil, fmt.Errorf("creating folder %s: %w", d.Path, err)
	}
	report.Folders++

	if err := a.uploadDirFiles(ctx, folder.ID, d, report); err != nil {
		return folder, err
	}
	for _, sub := range d.Dirs {
		if _, err := a.uploadDir(ctx, &folder.ID, sub, report); err != nil {
			return folder, err
		}
	}
	return folder, nil
}

func (a *DriveApp) uploadDirFiles(ctx context.Context, folderID string, d *localfs.Dir, report *DirectoryReport) error {
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	uploads := make([]drive.Upload, 0, len(d.Files))
	for _, lf := range d.Files {
		f, err := os.Open(lf.Path)
		if err != nil {
			report.Failed = append(report.Failed, drive.UploadFailure{Name: lf.Path, Err: err})
			continue
		}
		opened = append(opened, f)
		uploads = append(uploads, drive.Upload{
			Name:        lf.Name,
			ContentType: mime.TypeByExtension(filepath.Ext(lf.Name)),
			Size:        lf.Size,
			Body:        f,
		})
	}
	if len(uploads) == 0 {
		return nil
	}

	res, err := a.service.UploadFiles(ctx, &folderID, uploads)
	if err != nil {
		return fmt.Errorf("uploading files in %s: %w", d.Path, err)
	}
	report.Files = append(report.Files, res.Uploaded...)
	report.Failed = append(report.Failed, res.Failed...)
	return nil
}

func (a *DriveApp) DeleteFiles(ctx context.Context, ids []string) (*drive.DeleteReport, error) {
	if err := a.persistOperation(ctx, ids...); err != nil {
		return nil, err
	}
	report, err := a.service.DeleteFiles(a.userContext(ctx), ids)
	return report, a.op.Record(err)
}

func (a *DriveApp) FileURL(ctx context.Context, id string, ttl time.Duration) (string, time.Time, error) {
	return a.service.CreateFileURL(a.userContext(ctx), id, ttl)
}

// GetFile writes the content of a file or paste to w.
func (a *DriveApp) GetFile(ctx context.Context, id string, w io.Writer) (*model.File, error) {
	return a.service.DownloadFile(a.userContext(ctx), id, w)
}

// Pastes

func (a *DriveApp) CreatePaste(ctx context.Context, in drive.PasteInput) (*model.Paste, error) {
	if err := a.persistOperation(ctx, in.Title); err != nil {
		return nil, err
	}
	p, err := a.service.CreatePaste(a.userContext(ctx), in)
	return p, a.op.Record(err)
}

func (a *DriveApp) GetPaste(ctx context.Context, id string) (*model.Paste, error) {
	return a.service.GetPaste(a.userContext(ctx), id)
}

func (a *DriveApp) ListPastes(ctx context.Context, folderID *string, limit int) ([]*model.File, error) {
	return a.service.ListPastes(a.userContext(ctx), folderID, limit)
}

func (a *DriveApp) UpdatePaste(ctx context.Context, id string, upd drive.PasteUpdate) (*model.File, error) {
	if err := a.persistOperation(ctx, id); err != nil {
		return nil, err
	}
	f, err := a.service.UpdatePaste(a.userContext(ctx), id, upd)
	return f, a.op.Record(err)
}

func (a *DriveApp) DeletePaste(ctx context.Context, id string) error {
	if err := a.persistOperation(ctx, id); err != nil {
		return err
	}
	return a.op.Record(a.service.DeletePaste(a.userContext(ctx), id))
}

func (a *DriveApp) SharePaste(ctx context.Context, id string) (string, time.Time, error) {
	return a.service.SharePaste(a.userContext(ctx), id)
}

// Aggregates

func (a *DriveApp) Dashboard(ctx context.Context) (*drive.Dashboard, error) {
	return a.service.Dashboard(a.userContext(ctx))
}

func (a *DriveApp) RecentFiles(ctx context.Context) ([]drive.RecentFile, error) {
	return a.service.RecentFiles(a.userContext(ctx))
}

// History returns the most recent operations.
func (a *DriveApp) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	return a.service.History(ctx, limit)
}

// Snapshot copies the database into the object store under snapshots/ and
// returns the object path. Only sqlite databases can be snapshotted.
func (a *DriveApp) Snapshot(ctx context.Context) (string, error) {
	tmp, err := os.CreateTemp("", "minix-db-snapshot-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(ctx, tmpPath); err != nil {
		return "", err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat snapshot: %w", err)
	}

	key := "snapshots/minix-" + a.opID + ".db"
	if err := a.objects.Put(ctx, key, f, info.Size(), "application/vnd.sqlite3"); err != nil {
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}
	a.logger.Info("database snapshot stored", "path", key, "size", info.Size())
	return key, nil
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *DriveApp) Serve(ctx context.Context) error {
	verifier, err := server.NewVerifierFromConfig(ctx, a.cfg.Auth)
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}

	opts := server.Options{
		Service:  a.service,
		Feed:     a.feed,
		Verifier: verifier,
		Logger:   &slogAdapter{l: a.logger},
	}
	// Only local stores hand out URLs that point back at this server.
	switch a.cfg.ObjectStore.Type {
	case "filesystem", "memory":
		opts.Objects = a.objects
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return srv.Serve(ctx, a.cfg.Server.Addr, timeout)
}

// SharedFeed reports whether the change feed reaches other processes.
// The in-memory broker only carries changes made by this process.
func (a *DriveApp) SharedFeed() bool {
	switch a.cfg.Realtime.Type {
	case "redis", "amqp":
		return true
	default:
		return false
	}
}

// WatchState is one rendering of a watched folder.
type WatchState struct {
	State   synccache.State
	Entries []model.DriveEntry
	Err     error
}

// Watch keeps a synchronized listing of folderID (nil for the root) and
// calls render after every change until ctx is cancelled.
func (a *DriveApp) Watch(ctx context.Context, folderID *string, render func(WatchState)) error {
	cache := synccache.New(a.cfg.OwnerID, a.service, a.feed, &slogAdapter{l: a.logger})
	defer cache.Close()

	scope := synccache.Root()
	if folderID != nil {
		scope = synccache.Folder(*folderID)
	}
	view, err := cache.Mount(a.userContext(ctx), scope)
	if err != nil {
		return fmt.Errorf("watching %s: %w", scope, err)
	}
	defer cache.Release(view)

	for {
		changed := view.Changes()
		render(WatchState{State: view.State(), Entries: view.Entries(), Err: view.Err()})
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

// closeResources closes whatever has been opened so far.
func (a *DriveApp) closeResources() error {
	var firstErr error
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			firstErr = fmt.Errorf("closing change feed: %w", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// Close finalizes the operation record of mutating commands and closes all
// resources.
func (a *DriveApp) Close() error {
	var firstErr error
	if a.op.Persisted() {
		if err := a.db.FinishOperation(context.Background(), a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}
	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// InitKeys generates the encryption key pair configured in cfg, protecting
// the private key with passphrase.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}

// MigrateDatabase applies all pending schema migrations.
func MigrateDatabase(ctx context.Context, cfg *config.Config) (*database.SQLDatabase, error) {
	db, err := database.NewDatabaseFromConfig(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDatabase opens the configured database without checking its schema,
// for the db status and db schema commands.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*database.SQLDatabase, error) {
	db, err := database.NewDatabaseFromConfig(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
