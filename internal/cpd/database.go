package cpd

// Database provides an interface for run-history and snapshot metadata storage.
type Database interface {
	// Staging run operations

	// CreateStagingRun inserts a new run row and returns it with its
	// auto-increment ID assigned.
	CreateStagingRun(operation, parameters, bundleRoot, targetRoot string) (*StagingRun, error)

	// FinishStagingRun sets the finished timestamp and final status of a run.
	FinishStagingRun(id int64, status string) error

	// ListStagingRuns returns the most recent runs, newest first.
	ListStagingRuns(limit int) ([]*StagingRun, error)

	// ListRunEntries returns the per-entry results of a run in manifest order.
	ListRunEntries(runID int64) ([]*RunEntry, error)

	// RecordRunEntry inserts a per-entry result row.
	RecordRunEntry(entry *RunEntry) error

	// MaxStagingRunID returns the highest run ID, or 0 for an empty database.
	// Used to compare the local database against the vault's metadata version.
	MaxStagingRunID() (int64, error)

	// Snapshot operations

	// CreateSnapshot inserts a snapshot row.
	CreateSnapshot(snapshot *Snapshot) error

	// AddSnapshotFile inserts a snapshot file row.
	AddSnapshotFile(file *SnapshotFile) error

	// FindSnapshot returns a snapshot by ID, or nil if not found.
	FindSnapshot(id string) (*Snapshot, error)

	// LatestSnapshot returns the most recently created snapshot, or nil
	// if none exist.
	LatestSnapshot() (*Snapshot, error)

	// ListSnapshots returns the most recent snapshots, newest first.
	ListSnapshots(limit int) ([]*Snapshot, error)

	// ListSnapshotFiles returns the files captured in a snapshot.
	ListSnapshotFiles(snapshotID string) ([]*SnapshotFile, error)

	// Lifecycle

	// CheckMigrations verifies the database schema is up-to-date.
	CheckMigrations() error

	// BackupTo creates a complete copy of the database at destPath.
	BackupTo(destPath string) error

	// Close closes the database connection.
	Close() error
}
