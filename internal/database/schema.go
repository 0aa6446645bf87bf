package database

import (
	"context"
	"fmt"
	"strings"

	"minix/internal/database/migrations"
)

// Schema returns the CREATE statements of the migrated schema, excluding
// SQLite internals and the migration tracking table. For Postgres it lists
// each table with its columns and types.
func (s *SQLDatabase) Schema(ctx context.Context) (string, error) {
	if s.dialect == migrations.Postgres {
		return s.postgresSchema(ctx)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		  END,
		  name`)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}
	return b.String(), nil
}

func (s *SQLDatabase) postgresSchema(ctx context.Context) (string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name != 'schema_migrations'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var (
		b    strings.Builder
		last string
	)
	for rows.Next() {
		var table, column, typ, nullable string
		if err := rows.Scan(&table, &column, &typ, &nullable); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		if table != last {
			if last != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s\n", table)
			last = table
		}
		null := ""
		if nullable == "NO" {
			null = " NOT NULL"
		}
		fmt.Fprintf(&b, "  %s %s%s\n", column, typ, null)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}
	return b.String(), nil
}

// BackupTo creates a complete copy of a SQLite database at destPath using VACUUM INTO.
func (s *SQLDatabase) BackupTo(ctx context.Context, destPath string) error {
	if s.dialect != migrations.SQLite {
		return fmt.Errorf("snapshots are only supported for sqlite databases")
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}
