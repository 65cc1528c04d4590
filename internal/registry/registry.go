// Package registry stores build records in SQLite.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"promoter/internal/build"
	"promoter/internal/store"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound indicates that no build matches the requested run
	ErrNotFound = errors.New("build not found")

	// ErrAlreadyExists indicates that a build with the same name, number and
	// start time is already recorded
	ErrAlreadyExists = errors.New("build already exists")
)

// Registry manages build records in SQLite
type Registry struct {
	db *sql.DB
}

// NewRegistry opens (or creates) the registry database
func NewRegistry(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Registry{db: db}

	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return r, nil
}

// Close closes the database connection
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS builds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			number TEXT NOT NULL,
			started TEXT NOT NULL,
			document TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (name, number, started)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create builds table: %w", err)
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS build_files (
			build_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			repo TEXT NOT NULL,
			path TEXT NOT NULL,
			sha1 TEXT NOT NULL,
			size INTEGER NOT NULL,
			PRIMARY KEY (build_id, position)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create build_files table: %w", err)
	}

	_, err = r.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_builds_name_number
		ON builds(name, number)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Find returns the runs recorded under name and number, oldest first. An empty
// started matches any start time.
func (r *Registry) Find(ctx context.Context, name, number, started string) ([]build.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, number, started
		FROM builds
		WHERE name = ? AND number = ? AND (? = '' OR started = ?)
		ORDER BY started, id
	`, name, number, started, started)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var runs []build.Run
	for rows.Next() {
		var run build.Run
		if err := rows.Scan(&run.Name, &run.Number, &run.Started); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// LoadDetailed returns the full build document of run, including its files
func (r *Registry) LoadDetailed(ctx context.Context, run build.Run) (*build.Build, error) {
	var id int64
	var document string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, document FROM builds
		WHERE name = ? AND number = ? AND started = ?
	`, run.Name, run.Number, run.Started).Scan(&id, &document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, run)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query build %s: %w", run, err)
	}

	var b build.Build
	if err := json.Unmarshal([]byte(document), &b); err != nil {
		return nil, fmt.Errorf("failed to decode build %s: %w", run, err)
	}

	files, err := r.files(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Files = files

	return &b, nil
}

// ListArtifactFiles returns the stored files attributed to run
func (r *Registry) ListArtifactFiles(ctx context.Context, run build.Run) ([]store.FileInfo, error) {
	id, err := r.buildID(ctx, run)
	if err != nil {
		return nil, err
	}
	return r.files(ctx, id)
}

// Save records a new build. The build's files are stored alongside it.
func (r *Registry) Save(ctx context.Context, b *build.Build) error {
	doc := *b
	doc.Files = nil
	document, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode build %s: %w", b.Run(), err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM builds WHERE name = ? AND number = ? AND started = ?
	`, b.Name, b.Number, b.Started).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for existing build: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s started %s", ErrAlreadyExists, b.Run(), b.Started)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO builds (name, number, started, document, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.Name, b.Number, b.Started, string(document), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert build: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	for i, f := range b.Files {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_files (build_id, position, repo, path, sha1, size)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, f.RepoPath.Repo, f.RepoPath.Path, f.SHA1, f.Size)
		if err != nil {
			return fmt.Errorf("failed to insert build file %s: %w", f.RepoPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build: %w", err)
	}
	return nil
}

// Delete removes the build record of run and its file list
func (r *Registry) Delete(ctx context.Context, run build.Run) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM builds WHERE name = ? AND number = ? AND started = ?
	`, run.Name, run.Number, run.Started).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, run)
	}
	if err != nil {
		return fmt.Errorf("failed to query build %s: %w", run, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM build_files WHERE build_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete files of %s: %w", run, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete build %s: %w", run, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// List returns every run recorded under name, newest first
func (r *Registry) List(ctx context.Context, name string) ([]build.Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, number, started
		FROM builds
		WHERE name = ?
		ORDER BY id DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var runs []build.Run
	for rows.Next() {
		var run build.Run
		if err := rows.Scan(&run.Name, &run.Number, &run.Started); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

func (r *Registry) buildID(ctx context.Context, run build.Run) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM builds WHERE name = ? AND number = ? AND started = ?
	`, run.Name, run.Number, run.Started).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, run)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query build %s: %w", run, err)
	}
	return id, nil
}

func (r *Registry) files(ctx context.Context, id int64) ([]store.FileInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT repo, path, sha1, size
		FROM build_files
		WHERE build_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query build files: %w", err)
	}
	defer rows.Close()

	var files []store.FileInfo
	for rows.Next() {
		var f store.FileInfo
		if err := rows.Scan(&f.RepoPath.Repo, &f.RepoPath.Path, &f.SHA1, &f.Size); err != nil {
			return nil, fmt.Errorf("failed to scan build file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return files, nil
}
