package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite(t *testing.T) {
	original := &Config{
		OwnerID:    "owner-abc",
		BaseDir:    "/home/user/.local/share/minix",
		LogDir:     "/home/user/.local/share/minix/log",
		CapacityGB: 50,
		Database:   DatabaseConfig{Type: "postgres", DSN: "postgres://localhost/minix?sslmode=disable"},
		ObjectStore: ObjectStoreConfig{
			Type:     "s3",
			Name:     "minix",
			S3Bucket: "minix",
			S3Region: "eu-west-1",
		},
		Realtime: RealtimeConfig{Type: "redis", RedisAddr: "localhost:6379"},
		Auth: AuthConfig{
			Type:   "static",
			Tokens: []TokenConfig{{Token: "secret", UserID: "owner-abc"}},
		},
		Drive:  DriveConfig{BatchSize: 50, RecentLimit: 5},
		Upload: UploadConfig{Ignore: []string{"*.log", ".git"}},
	}

	for _, format := range []Format{FormatTOML, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			m := &Manager{Format: format}

			if err := m.Write(&buf, original); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			got, err := m.Read(&buf)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}

			if got.OwnerID != original.OwnerID {
				t.Errorf("OwnerID = %q, want %q", got.OwnerID, original.OwnerID)
			}
			if got.CapacityGB != 50 {
				t.Errorf("CapacityGB = %v, want 50", got.CapacityGB)
			}
			if got.Database.DSN != original.Database.DSN {
				t.Errorf("Database.DSN = %q, want %q", got.Database.DSN, original.Database.DSN)
			}
			if got.ObjectStore.S3Bucket != "minix" {
				t.Errorf("ObjectStore.S3Bucket = %q, want %q", got.ObjectStore.S3Bucket, "minix")
			}
			if got.Realtime.RedisAddr != "localhost:6379" {
				t.Errorf("Realtime.RedisAddr = %q, want %q", got.Realtime.RedisAddr, "localhost:6379")
			}
			if len(got.Auth.Tokens) != 1 || got.Auth.Tokens[0].UserID != "owner-abc" {
				t.Errorf("Auth.Tokens = %+v, want one token for owner-abc", got.Auth.Tokens)
			}
			if got.Drive.BatchSize != 50 {
				t.Errorf("Drive.BatchSize = %d, want 50", got.Drive.BatchSize)
			}
			if len(got.Upload.Ignore) != 2 {
				t.Errorf("len(Upload.Ignore) = %d, want 2", len(got.Upload.Ignore))
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("owner-1", "/data/minix")

	if cfg.OwnerID != "owner-1" {
		t.Errorf("OwnerID = %q, want %q", cfg.OwnerID, "owner-1")
	}
	if cfg.LogDir != "/data/minix/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/minix/log")
	}
	if cfg.ObjectStore.FSRoot != "/data/minix/objects" {
		t.Errorf("ObjectStore.FSRoot = %q, want %q", cfg.ObjectStore.FSRoot, "/data/minix/objects")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/minix/keys/minix.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/minix/keys/minix.key")
	}
	if cfg.CapacityGB != 25 {
		t.Errorf("CapacityGB = %v, want 25", cfg.CapacityGB)
	}
	if cfg.Drive.ShareTTLSeconds != 604800 {
		t.Errorf("Drive.ShareTTLSeconds = %d, want 604800", cfg.Drive.ShareTTLSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "missing owner", mutate: func(c *Config) { c.OwnerID = "" }, wantErr: "owner_id"},
		{name: "unknown database", mutate: func(c *Config) { c.Database.Type = "mysql" }, wantErr: "unknown database type"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database = DatabaseConfig{Type: "postgres"} }, wantErr: "dsn"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.ObjectStore.Type = "s3" }, wantErr: "s3_bucket"},
		{name: "redis without addr", mutate: func(c *Config) { c.Realtime.Type = "redis" }, wantErr: "redis_addr"},
		{name: "amqp without url", mutate: func(c *Config) { c.Realtime.Type = "amqp" }, wantErr: "amqp_url"},
		{name: "oidc without issuer", mutate: func(c *Config) { c.Auth.Type = "oidc" }, wantErr: "oidc_issuer"},
		{name: "memory everything", mutate: func(c *Config) {
			c.Database = DatabaseConfig{Type: "memory"}
			c.ObjectStore = ObjectStoreConfig{Type: "memory"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("owner-1", "/data/minix")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"minix.toml", FormatTOML},
		{"minix.yaml", FormatYAML},
		{"minix.YML", FormatYAML},
		{"minix", FormatTOML},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.want {
			t.Errorf("FormatForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "minix.toml")

		if err := Init(path, NewConfig("o1", dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "minix.toml")
		cfg := NewConfig("o1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	for _, name := range []string{"minix.toml", "minix.yaml"} {
		t.Run("reads valid "+name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, name)
			cfg := NewConfig("read-test", dir)
			cfg.Database = DatabaseConfig{Type: "memory"}

			if err := Init(path, cfg); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			got, err := ReadFromFile(path)
			if err != nil {
				t.Fatalf("ReadFromFile() error = %v", err)
			}
			if got.OwnerID != "read-test" {
				t.Errorf("OwnerID = %q, want %q", got.OwnerID, "read-test")
			}
			if got.Database.Type != "memory" {
				t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
			}
		})
	}

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/minix.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
