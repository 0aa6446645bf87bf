package drive

import (
	"context"
	"fmt"
	"strings"

	"minix/internal/model"
)

const maxNameLength = 255

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("name is required")
	}
	if len(name) > maxNameLength {
		return "", validationError("name exceeds %d characters", maxNameLength)
	}
	if strings.ContainsAny(name, "/\x00") {
		return "", validationError("name %q contains a path separator", name)
	}
	return name, nil
}

// ownedFolder returns the owner's folder or ErrNotFoundOrForbidden.
func (s *DriveService) ownedFolder(ctx context.Context, ownerID, id string) (*model.Folder, error) {
	f, err := s.store.FindFolder(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFoundOrForbidden)
	}
	return f, nil
}

// CreateFolder creates a folder under parentID, or at the root when parentID is nil.
func (s *DriveService) CreateFolder(ctx context.Context, name string, parentID *string) (*model.Folder, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		if _, err := s.ownedFolder(ctx, user.ID, *parentID); err != nil {
			return nil, fmt.Errorf("checking parent: %w", err)
		}
	}

	folder := &model.Folder{
		ID:        s.idgen.New(),
		Name:      name,
		ParentID:  parentID,
		OwnerID:   user.ID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.InsertFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}

	s.logger.Info("folder created", "id", folder.ID, "name", folder.Name)
	s.publish(ctx, folderEvent(EventInsert, folder, folder.CreatedAt))
	return folder, nil
}

// RenameFolder changes the name of an owned folder.
func (s *DriveService) RenameFolder(ctx context.Context, id, name string) (*model.Folder, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	name, err = cleanName(name)
	if err != nil {
		return nil, err
	}
	folder, err := s.ownedFolder(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.RenameFolder(ctx, user.ID, id, name); err != nil {
		return nil, fmt.Errorf("renaming folder: %w", err)
	}
	folder.Name = name

	s.logger.Info("folder renamed", "id", id, "name", name)
	s.publish(ctx, folderEvent(EventUpdate, folder, s.clock.Now()))
	return folder, nil
}

// ListFolder returns the direct children of folderID, or of the root when
// folderID is nil: folders ordered by name, then files and pastes ordered by
// creation time. Expired pastes are omitted.
func (s *DriveService) ListFolder(ctx context.Context, folderID *string) ([]model.DriveEntry, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if folderID != nil {
		if _, err := s.ownedFolder(ctx, user.ID, *folderID); err != nil {
			return nil, err
		}
	}

	folders, err := s.store.ListFolders(ctx, user.ID, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	files, err := s.store.ListFiles(ctx, user.ID, folderID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	entries := make([]model.DriveEntry, 0, len(folders)+len(files))
	for _, f := range folders {
		entries = append(entries, model.FolderEntry(f))
	}
	for _, f := range files {
		entries = append(entries, model.FileEntry(f))
	}
	return entries, nil
}

// ListAllFolders returns every folder of the owner ordered by name.
func (s *DriveService) ListAllFolders(ctx context.Context) ([]*model.Folder, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	folders, err := s.store.ListAllFolders(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

// FolderPath returns the chain of folders from the root down to folderID,
// inclusive. It is the breadcrumb for a folder view.
func (s *DriveService) FolderPath(ctx context.Context, folderID string) ([]*model.Folder, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	var path []*model.Folder
	visited := make(map[string]bool)
	id := folderID
	for {
		if visited[id] {
			return nil, fmt.Errorf("folder %s: parent chain contains a cycle", folderID)
		}
		visited[id] = true

		f, err := s.ownedFolder(ctx, user.ID, id)
		if err != nil {
			return nil, err
		}
		path = append(path, f)
		if f.ParentID == nil {
			break
		}
		id = *f.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// WalkTree returns every visible entry inside folderID, at any depth, or the
// whole drive when folderID is nil. The folder itself is not included.
func (s *DriveService) WalkTree(ctx context.Context, folderID *string) ([]model.DriveEntry, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if folderID == nil {
		folders, err := s.store.ListAllFolders(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("listing folders: %w", err)
		}
		files, err := s.store.ListAllFiles(ctx, user.ID, now)
		if err != nil {
			return nil, fmt.Errorf("listing files: %w", err)
		}
		return mergeEntries(folders, files), nil
	}

	root, err := s.ownedFolder(ctx, user.ID, *folderID)
	if err != nil {
		return nil, err
	}
	closure, err := s.descendants(ctx, user.ID, []*model.Folder{root})
	if err != nil {
		return nil, err
	}
	files, err := s.filesInFolders(ctx, user.ID, closure)
	if err != nil {
		return nil, err
	}

	var visible []*model.File
	for _, f := range files {
		if !f.Expired(now) {
			visible = append(visible, f)
		}
	}
	return mergeEntries(closure[1:], visible), nil
}

func mergeEntries(folders []*model.Folder, files []*model.File) []model.DriveEntry {
	entries := make([]model.DriveEntry, 0, len(folders)+len(files))
	for _, f := range folders {
		entries = append(entries, model.FolderEntry(f))
	}
	for _, f := range files {
		entries = append(entries, model.FileEntry(f))
	}
	return entries
}

// descendants computes the transitive closure of roots under the parent
// relation. Each round fetches the children of the whole frontier in batches,
// so round trips grow with tree depth rather than folder count. The result
// starts with roots, in order.
func (s *DriveService) descendants(ctx context.Context, ownerID string, roots []*model.Folder) ([]*model.Folder, error) {
	visited := make(map[string]bool, len(roots))
	closure := make([]*model.Folder, 0, len(roots))
	frontier := make([]string, 0, len(roots))
	for _, r := range roots {
		if visited[r.ID] {
			continue
		}
		visited[r.ID] = true
		closure = append(closure, r)
		frontier = append(frontier, r.ID)
	}

	for len(frontier) > 0 {
		var next []string
		for _, batch := range chunks(frontier, s.opts.BatchSize) {
			children, err := s.store.FindChildFolders(ctx, ownerID, batch)
			if err != nil {
				return nil, fmt.Errorf("finding child folders: %w", err)
			}
			for _, c := range children {
				if visited[c.ID] {
					continue
				}
				visited[c.ID] = true
				closure = append(closure, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return closure, nil
}

// filesInFolders returns every file row, expired pastes included, inside folders.
func (s *DriveService) filesInFolders(ctx context.Context, ownerID string, folders []*model.Folder) ([]*model.File, error) {
	ids := make([]string, 0, len(folders))
	for _, f := range folders {
		ids = append(ids, f.ID)
	}
	var files []*model.File
	for _, batch := range chunks(ids, s.opts.BatchSize) {
		found, err := s.store.FindFilesInFolders(ctx, ownerID, batch)
		if err != nil {
			return nil, fmt.Errorf("finding files in folders: %w", err)
		}
		files = append(files, found...)
	}
	return files, nil
}
