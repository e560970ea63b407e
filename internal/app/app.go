package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cpd-go/internal/config"
	"cpd-go/internal/cpd"
	"cpd-go/internal/database"
	"cpd-go/internal/device"
	"cpd-go/internal/encryption"
	"cpd-go/internal/fs"
	"cpd-go/internal/vault"
)

// CPDApp is the application layer between the CLI and StageService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type CPDApp struct {
	cfg       *config.Config
	db        cpd.Database
	vault     cpd.Vault
	fsmgr     cpd.FilesystemManager
	encryptor cpd.Encryptor
	detector  *device.Detector
	service   *cpd.StageService
	op        *StagingOperation
	logFile   *os.File
}

// NewCPDApp creates a fully wired CPDApp from the given config.
// operation identifies the CLI command being run (e.g. "Stage", "Rollback").
// The caller must call Close when done.
func NewCPDApp(cfg *config.Config, operation string) (*CPDApp, error) {
	ignore := cfg.Filesystem.Ignore
	if cfg.BundleRoot != "" {
		extra, err := fs.ParseIgnoreFile(filepath.Join(cfg.BundleRoot, ".cpdignore"))
		if err != nil {
			return nil, fmt.Errorf("reading bundle ignore file: %w", err)
		}
		ignore = append(append([]string{}, ignore...), extra...)
	}
	fsmgr := fs.NewOSFilesystemManager(ignore)

	if len(cfg.Vaults) == 0 {
		return nil, fmt.Errorf("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// Check local DB version against remote vault version.
	remoteVersion, err := v.GetMetadataVersion(cfg.HostID, "db")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checking remote metadata version: %w", err)
	}

	localMax, err := db.MaxStagingRunID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checking local metadata version: %w", err)
	}

	if remoteVersion > localMax {
		db.Close()
		return nil, fmt.Errorf("local database is behind remote (local=%d, remote=%d): restore from vault or re-initialize", localMax, remoteVersion)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := cpd.NewStageService(db, v, fsmgr, enc, &slogAdapter{l: logger}, cpd.RealClock{}, cpd.UUIDGenerator{})
	op := NewStagingOperation(operation, "")

	return &CPDApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		fsmgr:     fsmgr,
		encryptor: enc,
		detector:  device.NewDetector(cfg.Device),
		service:   svc,
		op:        op,
		logFile:   logFile,
	}, nil
}

// manifest returns the copy instructions for this run. Entries from the
// config file replace the built-in defaults when present.
func (a *CPDApp) manifest() cpd.Manifest {
	if len(a.cfg.Manifest) == 0 {
		return cpd.DefaultManifest()
	}
	m := cpd.Manifest{}
	for _, e := range a.cfg.Manifest {
		m.Entries = append(m.Entries, cpd.Entry{
			Source:      e.Source,
			Destination: e.Destination,
		})
	}
	return m
}

// ResolveRoots determines the bundle and target roots for a run.
// Explicit overrides win, then config values. An empty target falls back
// to device detection, which requires exactly one mounted device.
// The bundle root must be an existing directory; the target root may not
// exist yet (preflight creates it).
func (a *CPDApp) ResolveRoots(bundleOverride, targetOverride string) (string, string, error) {
	bundle := bundleOverride
	if bundle == "" {
		bundle = a.cfg.BundleRoot
	}
	if bundle == "" {
		return "", "", fmt.Errorf("no bundle root: set bundle_root in config or pass --bundle")
	}
	bp, err := a.fsmgr.Resolve(bundle)
	if err != nil {
		return "", "", fmt.Errorf("resolving bundle root: %w", err)
	}
	if !bp.IsDir() {
		return "", "", fmt.Errorf("bundle root is not a directory: %s", bp)
	}

	target := targetOverride
	if target == "" {
		target = a.cfg.TargetRoot
	}
	if target == "" {
		m, err := a.detector.DetectOne()
		if err != nil {
			return "", "", fmt.Errorf("no target root configured and %w", err)
		}
		target = m.Path
	}

	if _, err := a.fsmgr.Stat(target); err == nil {
		tp, err := a.fsmgr.Resolve(target)
		if err != nil {
			return "", "", fmt.Errorf("resolving target root: %w", err)
		}
		return bp.String(), tp.String(), nil
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", "", fmt.Errorf("resolving target root: %w", err)
	}
	return bp.String(), absTarget, nil
}

// persistRun saves the staging operation to the database, giving it an
// auto-increment ID. This should only be called for DB-mutating commands.
func (a *CPDApp) persistRun(bundleRoot, targetRoot string) error {
	if a.op.Persisted() {
		return nil // already persisted
	}
	run, err := a.db.CreateStagingRun(a.op.Operation, a.op.Parameters, bundleRoot, targetRoot)
	if err != nil {
		return fmt.Errorf("persisting staging run: %w", err)
	}
	a.op.ID = run.ID
	return nil
}

// Check validates the manifest against the bundle and target roots without
// copying anything, and verifies the vault is reachable.
// Returns the resolved entries for display.
func (a *CPDApp) Check(bundleRoot, targetRoot string) ([]cpd.ResolvedEntry, error) {
	if err := a.vault.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("vault not usable: %w", err)
	}
	return a.service.Preflight(a.manifest(), bundleRoot, targetRoot)
}

// Stage copies the manifest to the target root. When snapshot is true the
// current destination content is captured to the vault first.
// The run is recorded in the database with per-entry results.
func (a *CPDApp) Stage(bundleRoot, targetRoot string, snapshot bool) (*cpd.Report, error) {
	a.op.Parameters = fmt.Sprintf("bundle=%s target=%s", bundleRoot, targetRoot)
	if err := a.persistRun(bundleRoot, targetRoot); err != nil {
		return nil, err
	}

	opts := cpd.StageOptions{
		RunID:           a.op.ID,
		Snapshot:        snapshot && a.cfg.Snapshot.Enabled,
		EncryptSnapshot: a.cfg.Snapshot.Encrypt,
	}
	report, err := a.service.Stage(a.manifest(), bundleRoot, targetRoot, opts)
	if err != nil {
		a.op.Status = "error"
		return nil, err
	}
	if report.Failed() {
		a.op.Status = "partial"
	}
	return report, nil
}

// Verify compares target content against the bundle without writing anything.
func (a *CPDApp) Verify(bundleRoot, targetRoot string) (*cpd.Report, error) {
	return a.service.Verify(a.manifest(), bundleRoot, targetRoot)
}

// SnapshotEncrypted reports whether the named snapshot (or the latest one
// when snapshotID is empty) was stored encrypted. Used by the CLI to decide
// whether a passphrase prompt is needed before rollback.
func (a *CPDApp) SnapshotEncrypted(snapshotID string) (bool, error) {
	var snap *cpd.Snapshot
	var err error
	if snapshotID == "" {
		snap, err = a.db.LatestSnapshot()
	} else {
		snap, err = a.db.FindSnapshot(snapshotID)
	}
	if err != nil {
		return false, err
	}
	if snap == nil {
		if snapshotID == "" {
			return false, fmt.Errorf("no snapshots recorded")
		}
		return false, fmt.Errorf("snapshot not found: %s", snapshotID)
	}
	return snap.Encrypted, nil
}

// Rollback restores the target root to the state captured in a snapshot.
// An empty snapshotID selects the most recent snapshot. passphrase is
// required when the snapshot is encrypted.
// Returns the list of restored file paths.
func (a *CPDApp) Rollback(snapshotID string, passphrase string) ([]string, error) {
	// Rollback has no bundle root.
	if err := a.persistRun("", ""); err != nil {
		return nil, err
	}

	var decryptCtx cpd.DecryptionContext
	if passphrase != "" {
		var err error
		decryptCtx, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			a.op.Status = "error"
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
	}

	restored, err := a.service.Rollback(snapshotID, decryptCtx)
	if err != nil {
		a.op.Status = "error"
		return nil, err
	}
	return restored, nil
}

// History returns the most recent staging runs.
func (a *CPDApp) History(limit int) ([]*cpd.StagingRun, error) {
	return a.service.GetHistory(limit)
}

// RunEntries returns the per-entry results of a staging run.
func (a *CPDApp) RunEntries(runID int64) ([]*cpd.RunEntry, error) {
	return a.service.GetRunEntries(runID)
}

// Snapshots returns the most recent snapshots.
func (a *CPDApp) Snapshots(limit int) ([]*cpd.Snapshot, error) {
	return a.service.GetSnapshots(limit)
}

// Detect scans well-known mount locations for CircuitPython devices.
func (a *CPDApp) Detect() ([]*device.Mount, error) {
	return a.detector.Detect()
}

// InitKeys generates the snapshot encryption key pair. Refuses to overwrite
// an existing key pair since that would orphan already-encrypted snapshots.
func (a *CPDApp) InitKeys(passphrase string) error {
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	return a.encryptor.Setup(passphrase)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the run record, backs up the DB, and uploads to vault.
// For non-persisted operations: just closes the database.
func (a *CPDApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		// Finalize the run record
		if err := a.db.FinishStagingRun(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing staging run: %w", err)
		}

		// Snapshot the DB to a temp file
		tmpFile, err := os.CreateTemp("", "cpd-db-backup-*.db")
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("creating temp file for db backup: %w", err)
			}
		}

		var tmpPath string
		if tmpFile != nil {
			tmpPath = tmpFile.Name()
			tmpFile.Close()
			// VACUUM INTO refuses to write to an existing file.
			os.Remove(tmpPath)

			if err := a.db.BackupTo(tmpPath); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("backing up database: %w", err)
				}
				tmpPath = "" // skip vault upload
			}
		}

		// Close the database
		if err := a.db.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("closing database: %w", err)
			}
		}

		// Upload DB snapshot to vault with version = run ID
		if tmpPath != "" {
			if err := a.uploadMetadata(tmpPath, a.op.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		// Clean up temp file
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	} else {
		// Non-mutating operation: just close the database, no upload
		if err := a.db.Close(); err != nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// uploadMetadata opens the temp DB file and uploads it to the vault as metadata.
func (a *CPDApp) uploadMetadata(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat db backup: %w", err)
	}

	if err := a.vault.PutMetadata(a.cfg.HostID, "db", f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading metadata to vault: %w", err)
	}

	return nil
}
