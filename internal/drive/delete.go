package drive

import (
	"context"
	"fmt"
	"sort"

	"minix/internal/model"
)

// DeleteReport summarizes a delete operation.
type DeleteReport struct {
	FoldersDeleted int
	FilesDeleted   int
	StorageErrors  []StorageError
	Results        []ItemResult // one per requested id, in request order
}

// DeleteFolders deletes the requested folders together with every descendant
// folder, every file and paste inside them, and the corresponding blobs.
//
// Ids that do not exist or belong to another owner are reported per id with
// ErrNotFoundOrForbidden while the rest are deleted. If none of the ids can be
// deleted the returned error wraps ErrNotFoundOrForbidden. Blob removal
// failures do not stop row deletion; they are listed in the report and
// returned as a *PartialStorageFailure alongside it.
func (s *DriveService) DeleteFolders(ctx context.Context, ids []string) (*DeleteReport, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	requested := dedupe(ids)
	if len(requested) == 0 {
		return nil, validationError("no folder ids given")
	}

	owned, err := s.foldersByIDs(ctx, user.ID, requested)
	if err != nil {
		return nil, err
	}

	report := &DeleteReport{}
	var roots []*model.Folder
	for _, id := range requested {
		f, ok := owned[id]
		if !ok {
			report.Results = append(report.Results, ItemResult{ID: id, Err: ErrNotFoundOrForbidden})
			continue
		}
		roots = append(roots, f)
	}
	if len(roots) == 0 {
		return report, fmt.Errorf("deleting folders: %w", ErrNotFoundOrForbidden)
	}

	// Nothing is removed until the whole closure is known.
	closure, err := s.descendants(ctx, user.ID, roots)
	if err != nil {
		return nil, fmt.Errorf("computing folder closure: %w", err)
	}
	files, err := s.filesInFolders(ctx, user.ID, closure)
	if err != nil {
		return nil, err
	}

	report.StorageErrors = s.removeBlobs(ctx, files)

	folderIDs := make([]string, 0, len(closure))
	for _, f := range closure {
		folderIDs = append(folderIDs, f.ID)
	}
	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
	}
	if err := s.store.DeleteEntries(ctx, user.ID, fileIDs, folderIDs); err != nil {
		return nil, fmt.Errorf("deleting folder rows: %w", err)
	}
	report.FoldersDeleted = len(folderIDs)
	report.FilesDeleted = len(fileIDs)

	for _, f := range roots {
		report.Results = append(report.Results, ItemResult{ID: f.ID, Success: true})
	}
	sortResults(report.Results, requested)

	now := s.clock.Now()
	events := make([]ChangeEvent, 0, len(files)+len(closure))
	for _, f := range files {
		events = append(events, fileEvent(EventDelete, f, now))
	}
	for i := len(closure) - 1; i >= 0; i-- {
		events = append(events, folderEvent(EventDelete, closure[i], now))
	}
	s.publish(ctx, events...)

	s.logger.Info("folders deleted",
		"requested", len(requested),
		"folders", report.FoldersDeleted,
		"files", report.FilesDeleted,
		"storage_errors", len(report.StorageErrors))

	if len(report.StorageErrors) > 0 {
		return report, &PartialStorageFailure{Failures: report.StorageErrors}
	}
	return report, nil
}

// DeleteFiles deletes individual files or pastes and their blobs. Missing or
// foreign ids are reported per id, as in DeleteFolders.
func (s *DriveService) DeleteFiles(ctx context.Context, ids []string) (*DeleteReport, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	requested := dedupe(ids)
	if len(requested) == 0 {
		return nil, validationError("no file ids given")
	}

	owned := make(map[string]*model.File, len(requested))
	for _, batch := range chunks(requested, s.opts.BatchSize) {
		found, err := s.store.FindFilesByIDs(ctx, user.ID, batch)
		if err != nil {
			return nil, fmt.Errorf("finding files: %w", err)
		}
		for _, f := range found {
			owned[f.ID] = f
		}
	}

	report := &DeleteReport{}
	var files []*model.File
	for _, id := range requested {
		f, ok := owned[id]
		if !ok {
			report.Results = append(report.Results, ItemResult{ID: id, Err: ErrNotFoundOrForbidden})
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return report, fmt.Errorf("deleting files: %w", ErrNotFoundOrForbidden)
	}

	report.StorageErrors = s.removeBlobs(ctx, files)

	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
	}
	if err := s.store.DeleteEntries(ctx, user.ID, fileIDs, nil); err != nil {
		return nil, fmt.Errorf("deleting file rows: %w", err)
	}
	report.FilesDeleted = len(fileIDs)
	for _, f := range files {
		report.Results = append(report.Results, ItemResult{ID: f.ID, Success: true})
	}
	sortResults(report.Results, requested)

	now := s.clock.Now()
	events := make([]ChangeEvent, 0, len(files))
	for _, f := range files {
		events = append(events, fileEvent(EventDelete, f, now))
	}
	s.publish(ctx, events...)

	s.logger.Info("files deleted", "files", report.FilesDeleted, "storage_errors", len(report.StorageErrors))

	if len(report.StorageErrors) > 0 {
		return report, &PartialStorageFailure{Failures: report.StorageErrors}
	}
	return report, nil
}

func (s *DriveService) foldersByIDs(ctx context.Context, ownerID string, ids []string) (map[string]*model.Folder, error) {
	owned := make(map[string]*model.Folder, len(ids))
	for _, batch := range chunks(ids, s.opts.BatchSize) {
		found, err := s.store.FindFoldersByIDs(ctx, ownerID, batch)
		if err != nil {
			return nil, fmt.Errorf("finding folders: %w", err)
		}
		for _, f := range found {
			owned[f.ID] = f
		}
	}
	return owned, nil
}

// removeBlobs removes the blobs of files in batches and returns one
// StorageError per blob that could not be removed.
func (s *DriveService) removeBlobs(ctx context.Context, files []*model.File) []StorageError {
	byPath := make(map[string]*model.File, len(files))
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.StoragePath == "" {
			continue
		}
		if _, dup := byPath[f.StoragePath]; dup {
			continue
		}
		byPath[f.StoragePath] = f
		paths = append(paths, f.StoragePath)
	}

	var failures []StorageError
	for _, batch := range chunks(paths, s.opts.BatchSize) {
		errs := s.objects.Remove(ctx, batch)
		for _, p := range batch {
			err, failed := errs[p]
			if !failed || err == nil {
				continue
			}
			s.logger.Warn("removing blob failed", "path", p, "error", err)
			failures = append(failures, StorageError{FileID: byPath[p].ID, Path: p, Err: err})
		}
	}
	return failures
}

// sortResults orders results to match the order ids were requested in.
func sortResults(results []ItemResult, requested []string) {
	pos := make(map[string]int, len(requested))
	for i, id := range requested {
		pos[id] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		return pos[results[i].ID] < pos[results[j].ID]
	})
}
