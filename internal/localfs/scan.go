// Package localfs reads local directory trees for upload into the drive.
package localfs

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is a regular file found by Scan.
type File struct {
	Name string
	Path string
	Size int64
}

// Dir is a directory found by Scan. Files and Dirs are sorted by name.
type Dir struct {
	Name  string
	Path  string
	Files []File
	Dirs  []*Dir
}

// Count returns the number of files and directories below d, d excluded.
func (d *Dir) Count() (files, dirs int) {
	files = len(d.Files)
	dirs = len(d.Dirs)
	for _, sub := range d.Dirs {
		f, s := sub.Count()
		files += f
		dirs += s
	}
	return files, dirs
}

// Scan walks the directory at root. Entries matching the given patterns or
// the patterns in root's .minixignore are skipped, as are symlinks, devices,
// pipes and sockets.
func Scan(root string, patterns []string) (*Dir, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Lstat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absRoot)
	}

	fileRules, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	all := make([]string, 0, len(defaultIgnorePatterns)+len(patterns)+len(fileRules))
	all = append(all, defaultIgnorePatterns...)
	all = append(all, patterns...)
	all = append(all, fileRules...)
	matcher := NewIgnoreMatcher(all)

	dir := &Dir{Name: filepath.Base(absRoot), Path: absRoot}
	if err := scanDir(dir, absRoot, "", matcher); err != nil {
		return nil, err
	}
	return dir, nil
}

func scanDir(dir *Dir, absPath, relPath string, matcher *IgnoreMatcher) error {
	// ReadDir returns entries sorted by filename.
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}
	for _, entry := range entries {
		rel := filepath.Join(relPath, entry.Name())
		if matcher.Match(rel) {
			continue
		}
		full := filepath.Join(absPath, entry.Name())
		switch {
		case entry.IsDir():
			sub := &Dir{Name: entry.Name(), Path: full}
			if err := scanDir(sub, full, rel, matcher); err != nil {
				return err
			}
			dir.Dirs = append(dir.Dirs, sub)
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", full, err)
			}
			dir.Files = append(dir.Files, File{Name: entry.Name(), Path: full, Size: info.Size()})
		}
	}
	return nil
}
