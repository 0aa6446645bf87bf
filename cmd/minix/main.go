package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"minix/internal/app"
	"minix/internal/config"
	"minix/internal/objectstore"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a DriveApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateFolder", "DeletePaste").
func newApp(ctx context.Context, operation string) (*app.DriveApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewDriveApp(ctx, cfg, operation, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// readPassphrase takes the passphrase from MINIX_PASSPHRASE or prompts for it
// on the terminal.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("MINIX_PASSPHRASE"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal: set MINIX_PASSPHRASE")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// unlockIfNeeded prompts for the key passphrase when blobs are encrypted.
func unlockIfNeeded(a *app.DriveApp) error {
	if !a.NeedsUnlock() {
		return nil
	}
	p, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	return a.Unlock(p)
}

var rootCmd = &cobra.Command{
	Use:          "minix",
	Short:        "Personal cloud drive and pastebin",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		ownerID := uuid.New().String()
		cfg := config.NewConfig(ownerID, defaults["base_dir"])

		signingKey, err := objectstore.GenerateKey()
		if err != nil {
			return err
		}
		cfg.ObjectStore.SigningKey = signingKey

		token, err := objectstore.GenerateKey()
		if err != nil {
			return err
		}
		cfg.Auth.Tokens = []config.TokenConfig{{Token: token, UserID: ownerID}}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Owner ID:  %s\n", ownerID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		fmt.Printf("API token: %s\n", token)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Owner ID:     %s\n", cfg.OwnerID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Database:     %s\n", cfg.Database.Type)
		fmt.Printf("Object Store: %s (public=%v, encrypted=%v)\n", cfg.ObjectStore.Type, cfg.ObjectStore.Public, cfg.ObjectStore.Encrypted)
		fmt.Printf("Realtime:     %s\n", cfg.Realtime.Type)
		fmt.Printf("Auth:         %s (%d static tokens)\n", cfg.Auth.Type, len(cfg.Auth.Tokens))
		fmt.Printf("Server:       %s\n", cfg.Server.Addr)
		fmt.Printf("Capacity:     %.0f GB\n", cfg.CapacityGB)
		fmt.Printf("Ignore:       %s\n", strings.Join(cfg.Upload.Ignore, ", "))
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nWarning: %v\n", err)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt blobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv("MINIX_PASSPHRASE") == "" {
			again, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != p {
				return fmt.Errorf("passphrases do not match")
			}
		}
		if err := app.InitKeys(cfg, p); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (encrypted)\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := app.MigrateDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		st, err := db.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Database at version %d\n", st.Version)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		st, err := db.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Version: %d\nLatest:  %d\n", st.Version, st.Latest)
		if st.Dirty {
			fmt.Println("State:   dirty (a migration failed)")
		} else if st.Version < st.Latest {
			fmt.Printf("State:   %d migrations pending\n", st.Latest-st.Version)
		} else {
			fmt.Println("State:   up to date")
		}
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		schema, err := db.Schema(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(schema)
		return nil
	},
}

var dbSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy the database into the object store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Snapshot")
		if err != nil {
			return err
		}
		defer a.Close()
		key, err := a.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot stored at %s\n", key)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx, "Serve")
		if err != nil {
			return err
		}
		defer a.Close()
		if err := unlockIfNeeded(a); err != nil {
			return err
		}
		return a.Serve(ctx)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbSchemaCmd)
	dbCmd.AddCommand(dbSnapshotCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
}
