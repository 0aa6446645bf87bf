package wire

import (
	"errors"
	"time"

	"minix/internal/drive"
	"minix/internal/model"
)

// ItemResult is the outcome for one requested id.
type ItemResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StorageError is a blob that could not be removed.
type StorageError struct {
	FileID string `json:"file_id"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

// DeleteReport is the response of the delete routes.
type DeleteReport struct {
	FoldersDeleted int            `json:"folders_deleted"`
	FilesDeleted   int            `json:"files_deleted"`
	StorageErrors  []StorageError `json:"storage_errors,omitempty"`
	Results        []ItemResult   `json:"results"`
}

type UploadFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// UploadReport is the response of the upload route.
type UploadReport struct {
	Uploaded []*File        `json:"uploaded"`
	Failed   []UploadFailure `json:"failed,omitempty"`
}

type CategoryStats struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Bytes    int64   `json:"bytes"`
	GB       float64 `json:"gb"`
	Percent  int     `json:"percent"`
}

type StorageInfo struct {
	UsedGB  float64 `json:"used_gb"`
	TotalGB float64 `json:"total_gb"`
	Percent int     `json:"percent"`
}

type FolderCard struct {
	Folder          *Folder   `json:"folder"`
	Items           int       `json:"items"`
	LastUpdate      time.Time `json:"last_update"`
	LastUpdateLabel string    `json:"last_update_label"`
}

type RecentFile struct {
	File *File  `json:"file"`
	URL  string `json:"url,omitempty"`
}

// Dashboard is the response of the dashboard route.
type Dashboard struct {
	Categories []CategoryStats `json:"categories"`
	Total      CategoryStats   `json:"total"`
	Storage    StorageInfo     `json:"storage"`
	Folders    []FolderCard    `json:"folders"`
	Recent     []RecentFile    `json:"recent"`
}

// Paste is a paste with its content.
type Paste struct {
	File
	Content string `json:"content"`
}

// SignedURL is a download or share link with its expiry.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Operation is one entry of the operation log.
type Operation struct {
	ID         int64      `json:"id"`
	Operation  string     `json:"operation"`
	Parameters string     `json:"parameters"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func FromStorageErrors(errs []drive.StorageError) []StorageError {
	out := make([]StorageError, 0, len(errs))
	for _, e := range errs {
		out = append(out, StorageError{FileID: e.FileID, Path: e.Path, Error: errString(e.Err)})
	}
	return out
}

// FromDeleteReport converts a delete report.
func FromDeleteReport(r *drive.DeleteReport) DeleteReport {
	out := DeleteReport{
		FoldersDeleted: r.FoldersDeleted,
		FilesDeleted:   r.FilesDeleted,
		StorageErrors:  FromStorageErrors(r.StorageErrors),
		Results:        make([]ItemResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, ItemResult{ID: res.ID, Success: res.Success, Error: errString(res.Err)})
	}
	return out
}

// FromUploadReport converts an upload report.
func FromUploadReport(r *drive.UploadReport) UploadReport {
	out := UploadReport{Uploaded: FromFiles(r.Uploaded)}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, UploadFailure{Name: f.Name, Error: errString(f.Err)})
	}
	return out
}

func FromFiles(files []*model.File) []*File {
	out := make([]*File, 0, len(files))
	for _, f := range files {
		out = append(out, FromFile(f))
	}
	return out
}

func FromFolders(folders []*model.Folder) []*Folder {
	out := make([]*Folder, 0, len(folders))
	for _, f := range folders {
		out = append(out, FromFolder(f))
	}
	return out
}

func fromCategoryStats(c drive.CategoryStats) CategoryStats {
	return CategoryStats{Category: string(c.Category), Count: c.Count, Bytes: c.Bytes, GB: c.GB, Percent: c.Percent}
}

func FromRecentFiles(recent []drive.RecentFile) []RecentFile {
	out := make([]RecentFile, 0, len(recent))
	for _, r := range recent {
		out = append(out, RecentFile{File: FromFile(r.File), URL: r.URL})
	}
	return out
}

// FromDashboard converts the dashboard statistics.
func FromDashboard(d *drive.Dashboard) Dashboard {
	out := Dashboard{
		Categories: make([]CategoryStats, 0, len(d.Categories)),
		Total:      fromCategoryStats(d.Total),
		Storage:    StorageInfo{UsedGB: d.Storage.UsedGB, TotalGB: d.Storage.TotalGB, Percent: d.Storage.Percent},
		Folders:    make([]FolderCard, 0, len(d.Folders)),
		Recent:     FromRecentFiles(d.Recent),
	}
	for _, c := range d.Categories {
		out.Categories = append(out.Categories, fromCategoryStats(c))
	}
	for _, fc := range d.Folders {
		out.Folders = append(out.Folders, FolderCard{
			Folder:          FromFolder(fc.Folder),
			Items:           fc.Items,
			LastUpdate:      fc.LastUpdate,
			LastUpdateLabel: fc.LastUpdateLabel,
		})
	}
	return out
}

func FromPaste(p *model.Paste) Paste {
	return Paste{File: *FromFile(&p.File), Content: p.Content}
}

func FromOperations(ops []*model.Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, Operation{
			ID:         op.ID,
			Operation:  op.Operation,
			Parameters: op.Parameters,
			StartedAt:  op.StartedAt,
			FinishedAt: op.FinishedAt,
			Status:     op.Status,
		})
	}
	return out
}

// PartialFailure extracts the blob failures from err, if it carries any.
func PartialFailure(err error) ([]StorageError, bool) {
	var pf *drive.PartialStorageFailure
	if !errors.As(err, &pf) {
		return nil, false
	}
	return FromStorageErrors(pf.Failures), true
}
