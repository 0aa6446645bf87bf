package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"minix/internal/database/migrations"
	"minix/internal/drive"
	"minix/internal/model"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// maxInParams bounds the number of ids bound into a single IN list,
// below SQLite's default host parameter limit.
const maxInParams = 500

// SQLDatabase implements drive.Store on database/sql for SQLite and Postgres.
// Times are stored as unix microseconds so both dialects share one query set.
type SQLDatabase struct {
	db      *sql.DB
	dialect string
	path    string
}

var _ drive.Store = (*SQLDatabase)(nil)

// NewSQLiteDatabase opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLDatabase{db: db, dialect: migrations.SQLite, path: path}, nil
}

// NewPostgresDatabase opens a Postgres database from a lib/pq connection string.
func NewPostgresDatabase(ctx context.Context, dsn string) (*SQLDatabase, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SQLDatabase{db: db, dialect: migrations.Postgres}, nil
}

// NewSQLDatabaseFromDB wraps an existing connection of the given dialect.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLDatabaseFromDB(db *sql.DB, dialect string) *SQLDatabase {
	return &SQLDatabase{db: db, dialect: dialect}
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Dialect returns the migration dialect of the connection.
func (s *SQLDatabase) Dialect() string { return s.dialect }

// Path returns the file path of a SQLite database, empty otherwise.
func (s *SQLDatabase) Path() string { return s.path }

// CheckMigrations verifies that the schema is at the latest version.
func (s *SQLDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db, s.dialect)
}

// Migrate applies all pending migrations.
func (s *SQLDatabase) Migrate() error {
	return migrations.MigrateUp(s.db, s.dialect)
}

// MigrationStatus reports the applied and latest schema versions.
func (s *SQLDatabase) MigrationStatus() (*migrations.Status, error) {
	return migrations.GetStatus(s.db, s.dialect)
}

// Close closes the database connection.
func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLDatabase) rebind(query string) string {
	if s.dialect != migrations.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLDatabase) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLDatabase) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

// inList returns "?, ?, ..." for n parameters.
func inList(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func splitIDs(ids []string) [][]string {
	var out [][]string
	for len(ids) > 0 {
		end := min(maxInParams, len(ids))
		out = append(out, ids[:end])
		ids = ids[end:]
	}
	return out
}

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

type scanner interface {
	Scan(dest ...any) error
}

// Folder queries

const folderColumns = "id, name, parent_id, owner_id, created_at"

func scanFolder(sc scanner) (*model.Folder, error) {
	var (
		f       model.Folder
		parent  sql.NullString
		created int64
	)
	if err := sc.Scan(&f.ID, &f.Name, &parent, &f.OwnerID, &created); err != nil {
		return nil, err
	}
	f.ParentID = stringPtr(parent)
	f.CreatedAt = fromMicros(created)
	return &f, nil
}

func (s *SQLDatabase) queryFolders(ctx context.Context, query string, args ...any) ([]*model.Folder, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (s *SQLDatabase) InsertFolder(ctx context.Context, f *model.Folder) error {
	_, err := s.exec(ctx, s.db,
		"INSERT INTO folders ("+folderColumns+") VALUES (?, ?, ?, ?, ?)",
		f.ID, f.Name, nullString(f.ParentID), f.OwnerID, toMicros(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting folder: %w", err)
	}
	return nil
}

func (s *SQLDatabase) FindFolder(ctx context.Context, ownerID, id string) (*model.Folder, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+folderColumns+" FROM folders WHERE id = ? AND owner_id = ?"), id, ownerID)
	f, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return f, nil
}

func (s *SQLDatabase) FindFoldersByIDs(ctx context.Context, ownerID string, ids []string) ([]*model.Folder, error) {
	var folders []*model.Folder
	for _, batch := range splitIDs(ids) {
		args := append([]any{ownerID}, stringArgs(batch)...)
		found, err := s.queryFolders(ctx,
			"SELECT "+folderColumns+" FROM folders WHERE owner_id = ? AND id IN ("+inList(len(batch))+")", args...)
		if err != nil {
			return nil, fmt.Errorf("finding folders by id: %w", err)
		}
		folders = append(folders, found...)
	}
	return folders, nil
}

func (s *SQLDatabase) FindChildFolders(ctx context.Context, ownerID string, parentIDs []string) ([]*model.Folder, error) {
	var folders []*model.Folder
	for _, batch := range splitIDs(parentIDs) {
		args := append([]any{ownerID}, stringArgs(batch)...)
		found, err := s.queryFolders(ctx,
			"SELECT "+folderColumns+" FROM folders WHERE owner_id = ? AND parent_id IN ("+inList(len(batch))+") ORDER BY name, id", args...)
		if err != nil {
			return nil, fmt.Errorf("finding child folders: %w", err)
		}
		folders = append(folders, found...)
	}
	return folders, nil
}

func (s *SQLDatabase) ListFolders(ctx context.Context, ownerID string, parentID *string) ([]*model.Folder, error) {
	var (
		folders []*model.Folder
		err     error
	)
	if parentID == nil {
		folders, err = s.queryFolders(ctx,
			"SELECT "+folderColumns+" FROM folders WHERE owner_id = ? AND parent_id IS NULL ORDER BY name, id", ownerID)
	} else {
		folders, err = s.queryFolders(ctx,
			"SELECT "+folderColumns+" FROM folders WHERE owner_id = ? AND parent_id = ? ORDER BY name, id", ownerID, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

func (s *SQLDatabase) ListAllFolders(ctx context.Context, ownerID string) ([]*model.Folder, error) {
	folders, err := s.queryFolders(ctx,
		"SELECT "+folderColumns+" FROM folders WHERE owner_id = ? ORDER BY name, id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing all folders: %w", err)
	}
	return folders, nil
}

func (s *SQLDatabase) RenameFolder(ctx context.Context, ownerID, id, name string) error {
	res, err := s.exec(ctx, s.db, "UPDATE folders SET name = ? WHERE id = ? AND owner_id = ?", name, id, ownerID)
	if err != nil {
		return fmt.Errorf("renaming folder: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("renaming folder %s: %w", id, drive.ErrNotFoundOrForbidden)
	}
	return nil
}

// File queries

const fileColumns = "id, name, owner_id, folder_id, size, content_type, storage_path, kind, syntax, " +
	"expires_at, access_url, access_url_expires_at, created_at"

const visible = "(expires_at IS NULL OR expires_at >= ?)"

func scanFile(sc scanner) (*model.File, error) {
	var (
		f          model.File
		folder     sql.NullString
		expires    sql.NullInt64
		urlExpires sql.NullInt64
		created    int64
	)
	err := sc.Scan(&f.ID, &f.Name, &f.OwnerID, &folder, &f.Size, &f.ContentType, &f.StoragePath,
		&f.Kind, &f.Syntax, &expires, &f.AccessURL, &urlExpires, &created)
	if err != nil {
		return nil, err
	}
	f.FolderID = stringPtr(folder)
	f.ExpiresAt = timePtr(expires)
	f.AccessURLExpiresAt = timePtr(urlExpires)
	f.CreatedAt = fromMicros(created)
	return &f, nil
}

func (s *SQLDatabase) queryFiles(ctx context.Context, query string, args ...any) ([]*model.File, error) {
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLDatabase) InsertFiles(ctx context.Context, files []*model.File) error {
	if len(files) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, f := range files {
		kind := f.Kind
		if kind == "" {
			kind = model.KindFile
		}
		_, err := s.exec(ctx, tx,
			"INSERT INTO files ("+fileColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			f.ID, f.Name, f.OwnerID, nullString(f.FolderID), f.Size, f.ContentType, f.StoragePath,
			kind, f.Syntax, nullMicros(f.ExpiresAt), f.AccessURL, nullMicros(f.AccessURLExpiresAt), toMicros(f.CreatedAt))
		if err != nil {
			return fmt.Errorf("inserting file %s: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLDatabase) FindFile(ctx context.Context, ownerID, id string) (*model.File, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+fileColumns+" FROM files WHERE id = ? AND owner_id = ?"), id, ownerID)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return f, nil
}

func (s *SQLDatabase) FindFilesByIDs(ctx context.Context, ownerID string, ids []string) ([]*model.File, error) {
	var files []*model.File
	for _, batch := range splitIDs(ids) {
		args := append([]any{ownerID}, stringArgs(batch)...)
		found, err := s.queryFiles(ctx,
			"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND id IN ("+inList(len(batch))+")", args...)
		if err != nil {
			return nil, fmt.Errorf("finding files by id: %w", err)
		}
		files = append(files, found...)
	}
	return files, nil
}

func (s *SQLDatabase) FindFilesInFolders(ctx context.Context, ownerID string, folderIDs []string) ([]*model.File, error) {
	var files []*model.File
	for _, batch := range splitIDs(folderIDs) {
		args := append([]any{ownerID}, stringArgs(batch)...)
		found, err := s.queryFiles(ctx,
			"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND folder_id IN ("+inList(len(batch))+") ORDER BY created_at, id", args...)
		if err != nil {
			return nil, fmt.Errorf("finding files in folders: %w", err)
		}
		files = append(files, found...)
	}
	return files, nil
}

func (s *SQLDatabase) ListFiles(ctx context.Context, ownerID string, folderID *string, now time.Time) ([]*model.File, error) {
	var (
		files []*model.File
		err   error
	)
	if folderID == nil {
		files, err = s.queryFiles(ctx,
			"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND folder_id IS NULL AND "+visible+" ORDER BY created_at, id",
			ownerID, toMicros(now))
	} else {
		files, err = s.queryFiles(ctx,
			"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND folder_id = ? AND "+visible+" ORDER BY created_at, id",
			ownerID, *folderID, toMicros(now))
	}
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

func (s *SQLDatabase) ListAllFiles(ctx context.Context, ownerID string, now time.Time) ([]*model.File, error) {
	files, err := s.queryFiles(ctx,
		"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND "+visible+" ORDER BY created_at, id",
		ownerID, toMicros(now))
	if err != nil {
		return nil, fmt.Errorf("listing all files: %w", err)
	}
	return files, nil
}

func (s *SQLDatabase) RecentFiles(ctx context.Context, ownerID string, limit int, now time.Time) ([]*model.File, error) {
	files, err := s.queryFiles(ctx,
		"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND "+visible+" ORDER BY created_at DESC, id DESC LIMIT ?",
		ownerID, toMicros(now), limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent files: %w", err)
	}
	return files, nil
}

func (s *SQLDatabase) ListPastes(ctx context.Context, ownerID string, folderID *string, limit int, now time.Time) ([]*model.File, error) {
	var (
		files []*model.File
		err   error
	)
	if folderID == nil {
		files, err = s.queryFiles(ctx,
			"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND kind = ? AND folder_id IS NULL AND "+visible+
				" ORDER BY created_at DESC, id DESC LIMIT ?",
			ownerID, model.KindPaste, toMicros(now), limit)
	} else {
		files, err = s.queryFiles(ctx,
			"SELECT "+fileColumns+" FROM files WHERE owner_id = ? AND kind = ? AND folder_id = ? AND "+visible+
				" ORDER BY created_at DESC, id DESC LIMIT ?",
			ownerID, model.KindPaste, *folderID, toMicros(now), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing pastes: %w", err)
	}
	return files, nil
}

func (s *SQLDatabase) UpdateFile(ctx context.Context, f *model.File) error {
	res, err := s.exec(ctx, s.db,
		`UPDATE files SET name = ?, folder_id = ?, size = ?, content_type = ?, syntax = ?, expires_at = ?,
		 access_url = ?, access_url_expires_at = ? WHERE id = ? AND owner_id = ?`,
		f.Name, nullString(f.FolderID), f.Size, f.ContentType, f.Syntax, nullMicros(f.ExpiresAt),
		f.AccessURL, nullMicros(f.AccessURLExpiresAt), f.ID, f.OwnerID)
	if err != nil {
		return fmt.Errorf("updating file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating file %s: %w", f.ID, drive.ErrNotFoundOrForbidden)
	}
	return nil
}

func (s *SQLDatabase) UpdateFileAccessURL(ctx context.Context, ownerID, id, url string, expiresAt *time.Time) error {
	_, err := s.exec(ctx, s.db,
		"UPDATE files SET access_url = ?, access_url_expires_at = ? WHERE id = ? AND owner_id = ?",
		url, nullMicros(expiresAt), id, ownerID)
	if err != nil {
		return fmt.Errorf("updating access url: %w", err)
	}
	return nil
}

func (s *SQLDatabase) DeleteEntries(ctx context.Context, ownerID string, fileIDs, folderIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, batch := range splitIDs(fileIDs) {
		args := append([]any{ownerID}, stringArgs(batch)...)
		if _, err := s.exec(ctx, tx, "DELETE FROM files WHERE owner_id = ? AND id IN ("+inList(len(batch))+")", args...); err != nil {
			return fmt.Errorf("deleting files: %w", err)
		}
	}
	for _, batch := range splitIDs(folderIDs) {
		args := append([]any{ownerID}, stringArgs(batch)...)
		if _, err := s.exec(ctx, tx, "DELETE FROM folders WHERE owner_id = ? AND id IN ("+inList(len(batch))+")", args...); err != nil {
			return fmt.Errorf("deleting folders: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Operation log

func (s *SQLDatabase) CreateOperation(ctx context.Context, operation, parameters string, startedAt time.Time) (*model.Operation, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO operations (operation, parameters, started_at, status) VALUES (?, ?, ?, 'running') RETURNING id"),
		operation, parameters, toMicros(startedAt)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return &model.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  fromMicros(toMicros(startedAt)),
		Status:     "running",
	}, nil
}

func (s *SQLDatabase) FinishOperation(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	_, err := s.exec(ctx, s.db, "UPDATE operations SET status = ?, finished_at = ? WHERE id = ?", status, toMicros(finishedAt), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLDatabase) ListOperations(ctx context.Context, limit int) ([]*model.Operation, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT id, operation, parameters, started_at, finished_at, status FROM operations ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.Operation
	for rows.Next() {
		var (
			op       model.Operation
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &started, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		op.StartedAt = fromMicros(started)
		op.FinishedAt = timePtr(finished)
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}
