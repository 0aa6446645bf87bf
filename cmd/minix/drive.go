package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"minix/internal/drive"
	"minix/internal/model"
)

// optionalID turns an empty flag value or "root" into the root folder.
func optionalID(v string) *string {
	if v == "" || v == "root" {
		return nil
	}
	return &v
}

func argOrRoot(args []string) *string {
	if len(args) == 0 {
		return nil
	}
	return optionalID(args[0])
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printEntry(e model.DriveEntry, indent string) {
	switch {
	case e.Folder != nil:
		fmt.Printf("%sd  %-36s  %s/\n", indent, e.Folder.ID, e.Folder.Name)
	case e.File != nil:
		kind := "f"
		if e.File.IsPaste() {
			kind = "p"
		}
		fmt.Printf("%s%s  %-36s  %s  (%s, %s)\n", indent, kind, e.File.ID, e.File.Name, formatSize(e.File.Size), e.File.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func printEntries(entries []model.DriveEntry) {
	if len(entries) == 0 {
		fmt.Println("Empty.")
		return
	}
	for _, e := range entries {
		printEntry(e, "")
	}
}

// printDeleteReport prints the per-item results. A partial storage failure
// is reported but not treated as a command failure.
func printDeleteReport(report *drive.DeleteReport, err error) error {
	var partial *drive.PartialStorageFailure
	if err != nil && !errors.As(err, &partial) {
		return err
	}
	for _, r := range report.Results {
		if r.Success {
			fmt.Printf("deleted  %s\n", r.ID)
		} else {
			fmt.Printf("failed   %s: %v\n", r.ID, r.Err)
		}
	}
	fmt.Printf("Removed %d folder(s), %d file(s)\n", report.FoldersDeleted, report.FilesDeleted)
	for _, se := range report.StorageErrors {
		fmt.Fprintf(os.Stderr, "warning: blob %s of %s not removed: %v\n", se.Path, se.FileID, se.Err)
	}
	return nil
}

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		a, err := newApp(cmd.Context(), "CreateFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.CreateFolder(cmd.Context(), args[0], optionalID(parent))
		if err != nil {
			return fmt.Errorf("creating folder: %w", err)
		}
		fmt.Printf("Created %s (%s)\n", f.Name, f.ID)
		return nil
	},
}

var folderLsCmd = &cobra.Command{
	Use:   "ls [FOLDER_ID]",
	Short: "List a folder, or the root",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ListFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.ListFolder(cmd.Context(), argOrRoot(args))
		if err != nil {
			return err
		}
		printEntries(entries)
		return nil
	},
}

var folderTreeCmd = &cobra.Command{
	Use:   "tree [FOLDER_ID]",
	Short: "Show every entry below a folder, or the whole drive",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "WalkTree")
		if err != nil {
			return err
		}
		defer a.Close()

		root := argOrRoot(args)
		entries, err := a.WalkTree(cmd.Context(), root)
		if err != nil {
			return err
		}

		children := make(map[string][]model.DriveEntry)
		for _, e := range entries {
			key := ""
			if p := e.ParentID(); p != nil {
				key = *p
			}
			children[key] = append(children[key], e)
		}
		var walk func(parent, indent string)
		walk = func(parent, indent string) {
			for _, e := range children[parent] {
				printEntry(e, indent)
				if e.Folder != nil {
					walk(e.Folder.ID, indent+"    ")
				}
			}
		}
		start := ""
		if root != nil {
			start = *root
		}
		walk(start, "")
		if len(entries) == 0 {
			fmt.Println("Empty.")
		}
		return nil
	},
}

var folderPathCmd = &cobra.Command{
	Use:   "path FOLDER_ID",
	Short: "Show the path from the root to a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "FolderPath")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.FolderPath(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		names := make([]string, len(path))
		for i, f := range path {
			names[i] = f.Name
		}
		fmt.Println("/" + strings.Join(names, "/"))
		return nil
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename FOLDER_ID NAME",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "RenameFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.RenameFolder(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("renaming folder: %w", err)
		}
		fmt.Printf("Renamed %s to %s\n", f.ID, f.Name)
		return nil
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm FOLDER_ID...",
	Short: "Delete folders with everything inside them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteFolders")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.DeleteFolders(cmd.Context(), args)
		return printDeleteReport(report, err)
	},
}

var folderUploadCmd = &cobra.Command{
	Use:   "upload DIR",
	Short: "Upload a local directory as a new folder",
	Long: `Upload a local directory as a new folder, recreating its subdirectories.
Entries matching the upload.ignore patterns in the config or the patterns
in DIR/.minixignore are skipped, as are symlinks and special files.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")

		a, err := newApp(cmd.Context(), "UploadDirectory")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.UploadDirectory(cmd.Context(), optionalID(parent), args[0])
		if report != nil {
			for _, f := range report.Failed {
				fmt.Printf("failed    %s: %v\n", f.Name, f.Err)
			}
			if report.Root != nil {
				fmt.Printf("Uploaded %d files into %d folders under %s (%s)\n", len(report.Files), report.Folders, report.Root.Name, report.Root.ID)
			}
		}
		if err != nil {
			return fmt.Errorf("uploading directory: %w", err)
		}
		return nil
	},
}

var folderDownloadCmd = &cobra.Command{
	Use:   "download FOLDER_ID",
	Short: "Download a folder as a zip archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), "DownloadFolder")
		if err != nil {
			return err
		}
		defer a.Close()
		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		if out == "" {
			path, err := a.FolderPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out = path[len(path)-1].Name + ".zip"
		}
		report, err := a.DownloadFolder(cmd.Context(), args[0], out)
		if err != nil {
			return fmt.Errorf("downloading folder: %w", err)
		}
		fmt.Printf("Wrote %s (%d file(s))\n", out, report.Files)
		for _, s := range report.Skipped {
			fmt.Fprintf(os.Stderr, "warning: skipped %s: %v\n", s.Path, s.Err)
		}
		return nil
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage files",
}

var fileUploadCmd = &cobra.Command{
	Use:   "upload PATH...",
	Short: "Upload local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")

		a, err := newApp(cmd.Context(), "UploadFiles")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.UploadPaths(cmd.Context(), optionalID(folder), args)
		if err != nil {
			return fmt.Errorf("uploading: %w", err)
		}
		for _, f := range report.Uploaded {
			fmt.Printf("uploaded  %s  %s (%s)\n", f.ID, f.Name, formatSize(f.Size))
		}
		for _, f := range report.Failed {
			fmt.Printf("failed    %s: %v\n", f.Name, f.Err)
		}
		return nil
	},
}

var fileRmCmd = &cobra.Command{
	Use:   "rm FILE_ID...",
	Short: "Delete files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DeleteFiles")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.DeleteFiles(cmd.Context(), args)
		return printDeleteReport(report, err)
	},
}

var fileURLCmd = &cobra.Command{
	Use:   "url FILE_ID",
	Short: "Create a signed download URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")

		a, err := newApp(cmd.Context(), "CreateFileURL")
		if err != nil {
			return err
		}
		defer a.Close()

		url, expires, err := a.FileURL(cmd.Context(), args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Println(url)
		fmt.Fprintf(os.Stderr, "expires %s\n", expires.Local().Format(time.DateTime))
		return nil
	},
}

var fileGetCmd = &cobra.Command{
	Use:   "get FILE_ID",
	Short: "Download a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), "DownloadFile")
		if err != nil {
			return err
		}
		defer a.Close()
		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		if out == "" || out == "-" {
			_, err := a.GetFile(cmd.Context(), args[0], os.Stdout)
			return err
		}

		tmp, err := os.CreateTemp(filepath.Dir(out), ".minix-get-*")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		defer os.Remove(tmp.Name())
		f, err := a.GetFile(cmd.Context(), args[0], tmp)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if err := os.Rename(tmp.Name(), out); err != nil {
			return fmt.Errorf("moving file into place: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%s)\n", out, formatSize(f.Size))
		return nil
	},
}

func init() {
	folderCmd.AddCommand(folderCreateCmd)
	folderCreateCmd.Flags().StringP("parent", "p", "", "Parent folder id (default: root)")
	folderCmd.AddCommand(folderLsCmd)
	folderCmd.AddCommand(folderTreeCmd)
	folderCmd.AddCommand(folderPathCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderRmCmd)
	folderCmd.AddCommand(folderDownloadCmd)
	folderDownloadCmd.Flags().StringP("output", "o", "", "Archive path (default: <folder name>.zip)")
	folderCmd.AddCommand(folderUploadCmd)
	folderUploadCmd.Flags().StringP("parent", "p", "", "Parent folder id (default: root)")

	fileCmd.AddCommand(fileUploadCmd)
	fileUploadCmd.Flags().StringP("folder", "f", "", "Destination folder id (default: root)")
	fileCmd.AddCommand(fileRmCmd)
	fileCmd.AddCommand(fileURLCmd)
	fileURLCmd.Flags().Duration("ttl", drive.DefaultDownloadTTL, "URL lifetime, clamped to [10s, 1h]")
	fileCmd.AddCommand(fileGetCmd)
	fileGetCmd.Flags().StringP("output", "o", "", "Output path (default: stdout)")

	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(fileCmd)
}
