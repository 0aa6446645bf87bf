package drive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"minix/internal/model"
)

// ArchiveReport describes a folder archive written by DownloadFolder.
type ArchiveReport struct {
	Folder  *model.Folder
	Files   int
	Skipped []StorageError // blobs that could not be read
}

// DownloadFolder writes a zip archive of a folder's whole subtree to w. Paths
// inside the archive start with the folder's name. Blobs that cannot be read
// are left out of the archive and listed in the report.
func (s *DriveService) DownloadFolder(ctx context.Context, folderID string, w io.Writer) (*ArchiveReport, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	root, err := s.ownedFolder(ctx, user.ID, folderID)
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

	dirs := archiveDirs(closure)
	zw := zip.NewWriter(w)
	for _, f := range closure {
		if _, err := zw.Create(dirs[f.ID] + "/"); err != nil {
			return nil, fmt.Errorf("writing archive directory: %w", err)
		}
	}

	report := &ArchiveReport{Folder: root}
	used := make(map[string]bool)
	now := s.clock.Now()
	for _, f := range files {
		if f.Expired(now) || f.FolderID == nil {
			continue
		}
		name := uniqueName(used, path.Join(dirs[*f.FolderID], archiveFileName(f)))
		if err := s.addToArchive(ctx, zw, name, f); err != nil {
			s.logger.Warn("skipping file in archive", "file", f.ID, "error", err)
			report.Skipped = append(report.Skipped, StorageError{FileID: f.ID, Path: f.StoragePath, Err: err})
			continue
		}
		report.Files++
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	s.logger.Info("folder archived", "id", folderID, "files", report.Files, "skipped", len(report.Skipped))
	return report, nil
}

// addToArchive spools the blob to a temp file first so a failed download
// never leaves a truncated entry in the archive.
func (s *DriveService) addToArchive(ctx context.Context, zw *zip.Writer, name string, f *model.File) error {
	tmp, err := os.CreateTemp("", "minix-archive-*")
	if err != nil {
		return fmt.Errorf("creating spool file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := s.objects.Download(ctx, f.StoragePath, tmp); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding spool file: %w", err)
	}

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: f.CreatedAt}
	entry, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("writing archive entry: %w", err)
	}
	if _, err := io.Copy(entry, tmp); err != nil {
		return fmt.Errorf("copying archive entry: %w", err)
	}
	return nil
}

// archiveDirs maps each folder of a closure to its path inside the archive.
// closure[0] is the archived folder; parents always precede children.
func archiveDirs(closure []*model.Folder) map[string]string {
	dirs := make(map[string]string, len(closure))
	used := make(map[string]bool)
	for i, f := range closure {
		if i == 0 || f.ParentID == nil {
			dirs[f.ID] = uniqueName(used, f.Name)
			continue
		}
		dirs[f.ID] = uniqueName(used, path.Join(dirs[*f.ParentID], f.Name))
	}
	return dirs
}

func archiveFileName(f *model.File) string {
	if f.IsPaste() {
		return f.Name + ".txt"
	}
	return f.Name
}

// uniqueName returns name, or name with a " (n)" suffix before the extension
// when name was already used.
func uniqueName(used map[string]bool, name string) string {
	candidate := name
	ext := path.Ext(name)
	base := name[:len(name)-len(ext)]
	for n := 1; used[candidate]; n++ {
		candidate = base + " (" + strconv.Itoa(n) + ")" + ext
	}
	used[candidate] = true
	return candidate
}
