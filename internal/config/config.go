package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for minix.
type Config struct {
	OwnerID     string            `toml:"owner_id" yaml:"owner_id"`
	BaseDir     string            `toml:"base_dir" yaml:"base_dir"`
	LogDir      string            `toml:"log_dir" yaml:"log_dir"`
	CapacityGB  float64           `toml:"capacity_gb" yaml:"capacity_gb"`
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	ObjectStore ObjectStoreConfig `toml:"object_store" yaml:"object_store"`
	Encryption  EncryptionConfig  `toml:"encryption" yaml:"encryption"`
	Realtime    RealtimeConfig    `toml:"realtime" yaml:"realtime"`
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Auth        AuthConfig        `toml:"auth" yaml:"auth"`
	Drive       DriveConfig       `toml:"drive" yaml:"drive"`
	Upload      UploadConfig      `toml:"upload" yaml:"upload"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" yaml:"type"`                             // "sqlite", "memory" or "postgres"
	DataDir string `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty" yaml:"dsn,omitempty"`           // only used for type=postgres
}

// ObjectStoreConfig represents configuration for blob storage.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ObjectStoreConfig struct {
	Type      string `toml:"type" yaml:"type"` // "memory", "filesystem" or "s3"
	Name      string `toml:"name" yaml:"name"`
	Public    bool   `toml:"public" yaml:"public"`       // blobs are readable without a signature
	Encrypted bool   `toml:"encrypted" yaml:"encrypted"` // encrypt blobs at rest with the configured encryptor

	// Filesystem and memory stores serve blobs through the HTTP server.
	BaseURL    string `toml:"base_url,omitempty" yaml:"base_url,omitempty"`
	SigningKey string `toml:"signing_key,omitempty" yaml:"signing_key,omitempty"`
	FSRoot     string `toml:"fs_root,omitempty" yaml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty" yaml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" yaml:"s3_secret_access_key,omitempty"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty" yaml:"s3_use_path_style,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encryption at rest.
type EncryptionConfig struct {
	Type           string `toml:"type" yaml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path" yaml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path" yaml:"private_key_path"`
}

// RealtimeConfig selects the change feed.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RealtimeConfig struct {
	Type       string `toml:"type" yaml:"type"` // "memory", "redis" or "amqp"
	BufferSize int    `toml:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`

	RedisAddr          string `toml:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword      string `toml:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB            int    `toml:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisChannelPrefix string `toml:"redis_channel_prefix,omitempty" yaml:"redis_channel_prefix,omitempty"`

	AMQPURL      string `toml:"amqp_url,omitempty" yaml:"amqp_url,omitempty"`
	AMQPExchange string `toml:"amqp_exchange,omitempty" yaml:"amqp_exchange,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                string `toml:"addr" yaml:"addr"`
	ShutdownTimeoutSecs int    `toml:"shutdown_timeout_seconds,omitempty" yaml:"shutdown_timeout_seconds,omitempty"`
}

// AuthConfig selects how bearer tokens are verified.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type AuthConfig struct {
	Type   string        `toml:"type" yaml:"type"` // "static" or "oidc"
	Tokens []TokenConfig `toml:"tokens,omitempty" yaml:"tokens,omitempty"`

	OIDCIssuer          string `toml:"oidc_issuer,omitempty" yaml:"oidc_issuer,omitempty"`
	OIDCClientID        string `toml:"oidc_client_id,omitempty" yaml:"oidc_client_id,omitempty"`
	OIDCSkipIssuerCheck bool   `toml:"oidc_skip_issuer_check,omitempty" yaml:"oidc_skip_issuer_check,omitempty"`
}

// TokenConfig maps a static bearer token to a user.
type TokenConfig struct {
	Token  string `toml:"token" yaml:"token"`
	UserID string `toml:"user_id" yaml:"user_id"`
	Email  string `toml:"email,omitempty" yaml:"email,omitempty"`
}

// DriveConfig tunes the drive service. Zero values select the service defaults.
type DriveConfig struct {
	BatchSize           int `toml:"batch_size" yaml:"batch_size"`
	RecentLimit         int `toml:"recent_limit" yaml:"recent_limit"`
	SignedURLTTLSeconds int `toml:"signed_url_ttl_seconds" yaml:"signed_url_ttl_seconds"`
	ShareTTLSeconds     int `toml:"share_ttl_seconds" yaml:"share_ttl_seconds"`
}

// UploadConfig holds settings for directory uploads from the CLI.
type UploadConfig struct {
	Ignore []string `toml:"ignore" yaml:"ignore"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(ownerID, baseDir string) *Config {
	return &Config{
		OwnerID:    ownerID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		CapacityGB: 25,
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		ObjectStore: ObjectStoreConfig{
			Type:    "filesystem",
			Name:    "minix",
			FSRoot:  filepath.Join(baseDir, "objects"),
			BaseURL: "http://localhost:8080/objects",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "minix.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "minix.key"),
		},
		Realtime: RealtimeConfig{Type: "memory", BufferSize: 64},
		Server:   ServerConfig{Addr: ":8080", ShutdownTimeoutSecs: 10},
		Auth:     AuthConfig{Type: "static"},
		Drive: DriveConfig{
			BatchSize:           100,
			RecentLimit:         5,
			SignedURLTTLSeconds: 3600,
			ShareTTLSeconds:     604800,
		},
		Upload: UploadConfig{Ignore: []string{".DS_Store", "Thumbs.db"}},
	}
}

// Validate checks that the tagged unions name known types and carry the
// fields their type needs.
func (c *Config) Validate() error {
	if c.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database.data_dir required for sqlite database")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn required for postgres database")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type: %q", c.Database.Type)
	}
	switch c.ObjectStore.Type {
	case "filesystem":
		if c.ObjectStore.FSRoot == "" {
			return fmt.Errorf("object_store.fs_root required for filesystem object store")
		}
	case "s3":
		if c.ObjectStore.S3Bucket == "" {
			return fmt.Errorf("object_store.s3_bucket required for s3 object store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown object store type: %q", c.ObjectStore.Type)
	}
	switch c.Realtime.Type {
	case "", "memory":
	case "redis":
		if c.Realtime.RedisAddr == "" {
			return fmt.Errorf("realtime.redis_addr required for redis feed")
		}
	case "amqp":
		if c.Realtime.AMQPURL == "" {
			return fmt.Errorf("realtime.amqp_url required for amqp feed")
		}
	default:
		return fmt.Errorf("unknown realtime type: %q", c.Realtime.Type)
	}
	switch c.Auth.Type {
	case "", "static":
	case "oidc":
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("auth.oidc_issuer and auth.oidc_client_id required for oidc auth")
		}
	default:
		return fmt.Errorf("unknown auth type: %q", c.Auth.Type)
	}
	return nil
}

// Format is a configuration file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath selects the encoding from a file extension. Anything other
// than .yaml or .yml is TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Manager handles reading and writing configuration.
type Manager struct {
	Format Format // FormatTOML when empty
}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if m.Format == FormatYAML {
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
		return &cfg, nil
	}
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if m.Format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	}
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file carries tokens and keys.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
