package drive

import (
	"context"
	"fmt"
	"io"

	"minix/internal/model"
)

const defaultContentType = "application/octet-stream"

// Upload is one file to be stored. Body must yield exactly Size bytes.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadFailure is an upload that could not be stored.
type UploadFailure struct {
	Name string
	Err  error
}

// UploadReport lists the stored files and the uploads that failed.
type UploadReport struct {
	Uploaded []*model.File
	Failed   []UploadFailure
}

// UploadFiles stores each upload's blob and then records all stored files in
// one batch. A failing blob only fails its own upload. If the batch insert
// fails the stored blobs are removed again and the error is returned.
func (s *DriveService) UploadFiles(ctx context.Context, folderID *string, uploads []Upload) (*UploadReport, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, validationError("no files given")
	}
	if folderID != nil {
		if _, err := s.ownedFolder(ctx, user.ID, *folderID); err != nil {
			return nil, err
		}
	}

	report := &UploadReport{}
	for _, u := range uploads {
		f, err := s.storeUpload(ctx, user.ID, folderID, u)
		if err != nil {
			s.logger.Warn("upload failed", "name", u.Name, "error", err)
			report.Failed = append(report.Failed, UploadFailure{Name: u.Name, Err: err})
			continue
		}
		report.Uploaded = append(report.Uploaded, f)
	}
	if len(report.Uploaded) == 0 {
		return report, nil
	}

	if err := s.store.InsertFiles(ctx, report.Uploaded); err != nil {
		paths := make([]string, 0, len(report.Uploaded))
		for _, f := range report.Uploaded {
			paths = append(paths, f.StoragePath)
		}
		for p, rmErr := range s.objects.Remove(ctx, paths) {
			s.logger.Error("removing orphaned blob failed", "path", p, "error", rmErr)
		}
		return nil, fmt.Errorf("recording uploaded files: %w", err)
	}

	events := make([]ChangeEvent, 0, len(report.Uploaded))
	for _, f := range report.Uploaded {
		events = append(events, fileEvent(EventInsert, f, f.CreatedAt))
	}
	s.publish(ctx, events...)

	s.logger.Info("files uploaded", "uploaded", len(report.Uploaded), "failed", len(report.Failed))
	return report, nil
}

func (s *DriveService) storeUpload(ctx context.Context, ownerID string, folderID *string, u Upload) (*model.File, error) {
	name, err := cleanName(u.Name)
	if err != nil {
		return nil, err
	}
	if u.Size < 0 {
		return nil, validationError("negative size for %q", name)
	}
	if u.Body == nil {
		return nil, validationError("no content for %q", name)
	}
	contentType := u.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	id := s.idgen.New()
	f := &model.File{
		ID:          id,
		Name:        name,
		OwnerID:     ownerID,
		FolderID:    folderID,
		Size:        u.Size,
		ContentType: contentType,
		StoragePath: "files/" + id + "-" + name,
		Kind:        model.KindFile,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.objects.Put(ctx, f.StoragePath, u.Body, u.Size, contentType); err != nil {
		return nil, fmt.Errorf("storing blob: %w", err)
	}
	return f, nil
}

// DownloadFile writes the content of a file or paste to w and returns its metadata.
func (s *DriveService) DownloadFile(ctx context.Context, id string, w io.Writer) (*model.File, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.visibleFile(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	if err := s.objects.Download(ctx, f.StoragePath, w); err != nil {
		return nil, fmt.Errorf("downloading %s: %w", f.StoragePath, err)
	}
	return f, nil
}
