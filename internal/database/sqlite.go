package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cpd-go/internal/cpd"
	"cpd-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
// migrateUp runs pending migrations on open; use it for in-memory
// databases, which always start empty.
func NewSQLiteDatabase(path string, migrateUp bool) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if migrateUp {
		if err := migrations.MigrateUp(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	return &SQLiteDatabase{
		db:   db,
		path: path,
	}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Staging run operations

func (s *SQLiteDatabase) CreateStagingRun(operation, parameters, bundleRoot, targetRoot string) (*cpd.StagingRun, error) {
	run := &cpd.StagingRun{
		Operation:  operation,
		Parameters: parameters,
		BundleRoot: bundleRoot,
		TargetRoot: targetRoot,
		StartedAt:  time.Now(),
		Status:     "success",
	}

	res, err := s.db.ExecContext(context.Background(), `
		INSERT INTO staging_runs (operation, parameters, bundle_root, target_root, started_at, status)
		VALUES (?, ?, ?, ?, ?, 'success')`,
		operation, parameters, bundleRoot, targetRoot, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating staging run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading staging run ID: %w", err)
	}
	run.ID = id
	return run, nil
}

func (s *SQLiteDatabase) FinishStagingRun(id int64, status string) error {
	_, err := s.db.ExecContext(context.Background(), `
		UPDATE staging_runs SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now(), status, id,
	)
	if err != nil {
		return fmt.Errorf("finishing staging run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListStagingRuns(limit int) ([]*cpd.StagingRun, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, operation, parameters, bundle_root, target_root, started_at, finished_at, status
		FROM staging_runs ORDER BY id DESC LIMIT ?`,
		int64(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing staging runs: %w", err)
	}
	defer rows.Close()

	var runs []*cpd.StagingRun
	for rows.Next() {
		var run cpd.StagingRun
		if err := rows.Scan(&run.ID, &run.Operation, &run.Parameters, &run.BundleRoot,
			&run.TargetRoot, &run.StartedAt, &run.FinishedAt, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning staging run: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing staging runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteDatabase) ListRunEntries(runID int64) ([]*cpd.RunEntry, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, run_id, source, destination, kind, status, files, bytes, error, position
		FROM run_entries WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing run entries: %w", err)
	}
	defer rows.Close()

	var entries []*cpd.RunEntry
	for rows.Next() {
		var e cpd.RunEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Source, &e.Destination, &e.Kind,
			&e.Status, &e.Files, &e.Bytes, &e.Error, &e.Position); err != nil {
			return nil, fmt.Errorf("scanning run entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing run entries: %w", err)
	}
	return entries, nil
}

func (s *SQLiteDatabase) RecordRunEntry(entry *cpd.RunEntry) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO run_entries (id, run_id, source, destination, kind, status, files, bytes, error, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.Source, entry.Destination, entry.Kind,
		entry.Status, entry.Files, entry.Bytes, entry.Error, entry.Position,
	)
	if err != nil {
		return fmt.Errorf("recording run entry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) MaxStagingRunID() (int64, error) {
	var id int64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COALESCE(MAX(id), 0) FROM staging_runs`,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting max staging run ID: %w", err)
	}
	return id, nil
}

// Snapshot operations

func (s *SQLiteDatabase) CreateSnapshot(snapshot *cpd.Snapshot) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO snapshots (id, run_id, target_root, encrypted, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.RunID, snapshot.TargetRoot, snapshot.Encrypted, snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) AddSnapshotFile(file *cpd.SnapshotFile) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO snapshot_files (id, snapshot_id, relative_path, checksum, size, permissions, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.SnapshotID, file.RelativePath, file.Checksum,
		file.Size, file.Permissions, file.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("adding snapshot file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindSnapshot(id string) (*cpd.Snapshot, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT id, run_id, target_root, encrypted, created_at
		FROM snapshots WHERE id = ?`,
		id,
	)
	return scanSnapshot(row)
}

func (s *SQLiteDatabase) LatestSnapshot() (*cpd.Snapshot, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT id, run_id, target_root, encrypted, created_at
		FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1`,
	)
	return scanSnapshot(row)
}

// scanSnapshot scans a single snapshot row, mapping no-rows to nil.
func scanSnapshot(row *sql.Row) (*cpd.Snapshot, error) {
	var snap cpd.Snapshot
	err := row.Scan(&snap.ID, &snap.RunID, &snap.TargetRoot, &snap.Encrypted, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteDatabase) ListSnapshots(limit int) ([]*cpd.Snapshot, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, run_id, target_root, encrypted, created_at
		FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?`,
		int64(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*cpd.Snapshot
	for rows.Next() {
		var snap cpd.Snapshot
		if err := rows.Scan(&snap.ID, &snap.RunID, &snap.TargetRoot, &snap.Encrypted, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return snapshots, nil
}

func (s *SQLiteDatabase) ListSnapshotFiles(snapshotID string) ([]*cpd.SnapshotFile, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, snapshot_id, relative_path, checksum, size, permissions, modified_at
		FROM snapshot_files WHERE snapshot_id = ? ORDER BY relative_path`,
		snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot files: %w", err)
	}
	defer rows.Close()

	var files []*cpd.SnapshotFile
	for rows.Next() {
		var f cpd.SnapshotFile
		if err := rows.Scan(&f.ID, &f.SnapshotID, &f.RelativePath, &f.Checksum,
			&f.Size, &f.Permissions, &f.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot file: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshot files: %w", err)
	}
	return files, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements cpd.Database interface
var _ cpd.Database = (*SQLiteDatabase)(nil)
