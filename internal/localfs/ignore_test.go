package localfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# drafts", "*.tmp", "/"})
		if len(m.patterns) != 1 {
			t.Fatalf("len(patterns) = %d, want 1", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.tmp" {
			t.Errorf("pattern = %q, want %q", m.patterns[0].pattern, "*.tmp")
		}
	})

	t.Run("drops trailing slash", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"node_modules/", "photos/raw/"})
		if m.patterns[0].pattern != "node_modules" || m.patterns[0].matchPath {
			t.Errorf("patterns[0] = %+v, want basename pattern node_modules", m.patterns[0])
		}
		if m.patterns[1].pattern != "photos/raw" || !m.patterns[1].matchPath {
			t.Errorf("patterns[1] = %+v, want path pattern photos/raw", m.patterns[1])
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"basename glob in root", []string{"*.tmp"}, "draft.tmp", true},
		{"basename glob in subdirectory", []string{"*.tmp"}, filepath.Join("docs", "draft.tmp"), true},
		{"different extension", []string{"*.tmp"}, "draft.txt", false},
		{"ignore file itself", defaultIgnorePatterns, IgnoreFileName, true},
		{"exact basename in subdirectory", []string{".DS_Store"}, filepath.Join("photos", ".DS_Store"), true},
		{"path pattern", []string{"photos/raw"}, filepath.Join("photos", "raw"), true},
		{"path pattern elsewhere", []string{"photos/raw"}, filepath.Join("music", "raw"), false},
		{"path glob", []string{"photos/*.cr2"}, filepath.Join("photos", "img1.cr2"), true},
		{"character class", []string{"*.[ch]"}, "main.c", true},
		{"malformed pattern never matches", []string{"[", "*.log"}, "app.log", true},
		{"no patterns", nil, "notes.txt", false},
		{"empty path", []string{"*"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("returns raw lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(path, []byte("*.tmp\n# comment\n\nbuild/\n"), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(patterns) != 4 {
			t.Fatalf("len(patterns) = %d, want 4 raw lines", len(patterns))
		}
		if m := NewIgnoreMatcher(patterns); len(m.patterns) != 2 {
			t.Errorf("len(parsed) = %d, want 2", len(m.patterns))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("patterns = %v, want nil", patterns)
		}
	})
}
