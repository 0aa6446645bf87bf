package drive

import (
	"context"
	"time"

	"minix/internal/model"
)

// Store provides durable storage for folders, files and the operation log.
// Every folder and file query is scoped to a single owner. Lookups by id
// return nil, nil when no row matches.
type Store interface {
	// Folder operations

	// InsertFolder stores a new folder.
	InsertFolder(ctx context.Context, folder *model.Folder) error

	// FindFolder returns the owner's folder with the given id.
	FindFolder(ctx context.Context, ownerID, id string) (*model.Folder, error)

	// FindFoldersByIDs returns the owner's folders whose id is in ids.
	FindFoldersByIDs(ctx context.Context, ownerID string, ids []string) ([]*model.Folder, error)

	// FindChildFolders returns the owner's folders whose parent is in parentIDs.
	FindChildFolders(ctx context.Context, ownerID string, parentIDs []string) ([]*model.Folder, error)

	// ListFolders returns the direct child folders of parentID (nil for the
	// root), ordered by name.
	ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*model.Folder, error)

	// ListAllFolders returns every folder of the owner ordered by name.
	ListAllFolders(ctx context.Context, ownerID string) ([]*model.Folder, error)

	// RenameFolder changes a folder's name.
	RenameFolder(ctx context.Context, ownerID, id, name string) error

	// File operations

	// InsertFiles stores new file rows in a single transaction.
	InsertFiles(ctx context.Context, files []*model.File) error

	// FindFile returns the owner's file or paste with the given id, expired or not.
	FindFile(ctx context.Context, ownerID, id string) (*model.File, error)

	// FindFilesByIDs returns the owner's files whose id is in ids, expired or not.
	FindFilesByIDs(ctx context.Context, ownerID string, ids []string) ([]*model.File, error)

	// FindFilesInFolders returns every file and paste, expired included, whose
	// folder is in folderIDs.
	FindFilesInFolders(ctx context.Context, ownerID string, folderIDs []string) ([]*model.File, error)

	// ListFiles returns the files and pastes directly inside folderID (nil for
	// the root) that are visible at now, ordered by creation time.
	ListFiles(ctx context.Context, ownerID string, folderID *string, now time.Time) ([]*model.File, error)

	// ListAllFiles returns every file and paste of the owner visible at now.
	ListAllFiles(ctx context.Context, ownerID string, now time.Time) ([]*model.File, error)

	// RecentFiles returns the owner's most recently created visible files,
	// newest first.
	RecentFiles(ctx context.Context, ownerID string, limit int, now time.Time) ([]*model.File, error)

	// ListPastes returns visible pastes directly inside folderID (nil for the
	// root), newest first.
	ListPastes(ctx context.Context, ownerID string, folderID *string, limit int, now time.Time) ([]*model.File, error)

	// UpdateFile writes the mutable columns of a file row: name, folder,
	// size, content type, syntax, expiry and access URL.
	UpdateFile(ctx context.Context, file *model.File) error

	// UpdateFileAccessURL stores a resolved access URL and its expiry.
	UpdateFileAccessURL(ctx context.Context, ownerID, id, url string, expiresAt *time.Time) error

	// DeleteEntries removes the given file and folder rows in one transaction.
	DeleteEntries(ctx context.Context, ownerID string, fileIDs, folderIDs []string) error

	// Operation log

	// CreateOperation records the start of a mutating command.
	CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error)

	// FinishOperation marks an operation as finished with the given status.
	FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(ctx context.Context, limit int) ([]*model.Operation, error)

	// Close closes the underlying connection.
	Close() error
}
