package cpd

import (
	"database/sql"
	"time"
)

// StagingRun records one invocation of a mutating CLI command.
type StagingRun struct {
	ID         int64
	Operation  string
	Parameters string
	BundleRoot string
	TargetRoot string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string // "success" or "error"
}

// RunEntry records the outcome of one manifest entry within a staging run.
type RunEntry struct {
	ID          string
	RunID       int64
	Source      string
	Destination string
	Kind        string
	Status      string
	Files       int64
	Bytes       int64
	Error       string
	Position    int64 // zero-based manifest order
}

// Snapshot records a capture of device content taken before staging
// overwrote it. Content bytes live in the vault; rows here are metadata.
type Snapshot struct {
	ID         string
	RunID      sql.NullInt64
	TargetRoot string
	Encrypted  bool
	CreatedAt  time.Time
}

// SnapshotFile records one captured file within a snapshot.
// Checksum is the SHA-256 of the plaintext content and is also the
// vault content key.
type SnapshotFile struct {
	ID           string
	SnapshotID   string
	RelativePath string
	Checksum     string
	Size         int64
	Permissions  int64
	ModifiedAt   time.Time
}
