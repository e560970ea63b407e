package cpd

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// StageService is the orchestration layer that coordinates across all
// components to perform staging operations needed by the CLI.
type StageService struct {
	database  Database
	vault     Vault
	fsmgr     FilesystemManager
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewStageService creates a new StageService with the provided dependencies.
func NewStageService(database Database, vault Vault, fsmgr FilesystemManager, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator) *StageService {
	return &StageService{
		database:  database,
		vault:     vault,
		fsmgr:     fsmgr,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// ResolvedEntry is a manifest entry bound to absolute source and
// destination paths, with its kind inferred from the source on disk.
type ResolvedEntry struct {
	Entry      Entry
	Kind       EntryKind
	SourcePath string
	DestPath   string
}

// StageOptions controls a staging run.
type StageOptions struct {
	// RunID is the staging_runs row to record entry results under.
	// Zero disables recording.
	RunID int64

	// Snapshot captures existing destination content into the vault
	// before anything is overwritten.
	Snapshot bool

	// EncryptSnapshot encrypts captured content with the configured
	// public key before it enters the vault.
	EncryptSnapshot bool
}

// Preflight validates the manifest against the bundle and target roots
// without copying anything. All sources must exist (ErrSourceMissing
// names every missing one) and the target root must exist or be
// creatable and be writable (ErrDestinationUnwritable). The target
// filesystem is left unchanged apart from creating the root itself.
func (s *StageService) Preflight(m Manifest, bundleRoot, targetRoot string) ([]ResolvedEntry, error) {
	entries, err := s.resolveEntries(m, bundleRoot, targetRoot)
	if err != nil {
		return nil, err
	}

	if err := s.fsmgr.MkdirAll(targetRoot); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDestinationUnwritable, targetRoot, err)
	}
	if err := s.fsmgr.ProbeWritable(targetRoot); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDestinationUnwritable, targetRoot, err)
	}

	return entries, nil
}

// resolveEntries validates the manifest and binds each entry to absolute
// paths, checking that every source exists under the bundle root.
func (s *StageService) resolveEntries(m Manifest, bundleRoot, targetRoot string) ([]ResolvedEntry, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	var resolved []ResolvedEntry
	var missing []string

	for _, e := range m.Entries {
		srcPath := filepath.Join(bundleRoot, e.Source)
		info, err := s.fsmgr.Stat(srcPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, e.Source)
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", srcPath, err)
		}

		kind := EntryFile
		if info.IsDir() {
			kind = EntryDir
		}
		resolved = append(resolved, ResolvedEntry{
			Entry:      e,
			Kind:       kind,
			SourcePath: srcPath,
			DestPath:   filepath.Join(targetRoot, e.Destination),
		})
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, strings.Join(missing, ", "))
	}

	return resolved, nil
}

// Stage copies every manifest entry from the bundle root to the target
// root. Preflight failures abort before any write. A copy failure is
// recorded for its entry and staging continues with the next entry; the
// returned report itemizes every outcome.
func (s *StageService) Stage(m Manifest, bundleRoot, targetRoot string, opts StageOptions) (*Report, error) {
	entries, err := s.Preflight(m, bundleRoot, targetRoot)
	if err != nil {
		return nil, err
	}

	s.logger.Info("staging started", "bundle", bundleRoot, "target", targetRoot, "entries", len(entries))

	if opts.Snapshot {
		snapID, err := s.snapshotDestinations(entries, targetRoot, opts)
		if err != nil {
			return nil, fmt.Errorf("snapshotting target: %w", err)
		}
		if snapID != "" {
			s.logger.Info("snapshot captured", "snapshot_id", snapID)
		}
	}

	report := &Report{}
	for i, re := range entries {
		files, bytes, err := s.copyEntry(re)
		res := EntryResult{
			Entry:  re.Entry,
			Kind:   re.Kind,
			Status: StatusCopied,
			Files:  files,
			Bytes:  bytes,
		}
		if err != nil {
			res.Status = StatusFailed
			res.Detail = err.Error()
			s.logger.Error("entry failed", "entry", re.Entry.String(), "error", err)
		} else {
			s.logger.Info("entry staged", "entry", re.Entry.String(), "files", files, "bytes", bytes)
		}
		report.Add(res)

		if opts.RunID != 0 {
			record := &RunEntry{
				ID:          s.idgen.New(),
				RunID:       opts.RunID,
				Source:      re.Entry.Source,
				Destination: re.Entry.Destination,
				Kind:        string(re.Kind),
				Status:      string(res.Status),
				Files:       int64(files),
				Bytes:       bytes,
				Error:       res.Detail,
				Position:    int64(i),
			}
			if err := s.database.RecordRunEntry(record); err != nil {
				return report, fmt.Errorf("recording entry result: %w", err)
			}
		}
	}

	s.logger.Info("staging complete", "entries", len(entries), "failed", report.FailedCount())
	return report, nil
}

// copyEntry copies a single resolved entry. Returns files and bytes written.
func (s *StageService) copyEntry(re ResolvedEntry) (int, int64, error) {
	switch re.Kind {
	case EntryDir:
		return s.copyDir(re.SourcePath, re.DestPath)
	default:
		n, err := s.copyFile(re.SourcePath, re.DestPath)
		if err != nil {
			return 0, 0, err
		}
		return 1, n, nil
	}
}

// copyDir recursively copies all regular files under srcDir to destDir,
// preserving relative structure and skipping ignored files. The
// destination directory is created even when the source is empty.
func (s *StageService) copyDir(srcDir, destDir string) (int, int64, error) {
	rels, err := s.fsmgr.WalkFiles(srcDir)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: walking %s: %v", ErrCopyFailed, srcDir, err)
	}

	if err := s.fsmgr.MkdirAll(destDir); err != nil {
		return 0, 0, fmt.Errorf("%w: creating %s: %v", ErrCopyFailed, destDir, err)
	}

	files := 0
	var total int64
	for _, rel := range rels {
		if s.fsmgr.Ignored(rel) {
			s.logger.Debug("file ignored", "path", rel)
			continue
		}
		n, err := s.copyFile(filepath.Join(srcDir, rel), filepath.Join(destDir, rel))
		if err != nil {
			return files, total, err
		}
		files++
		total += n
	}

	return files, total, nil
}

// copyFile copies one file verbatim with an atomic write, preserving the
// source's permission bits.
func (s *StageService) copyFile(srcPath, destPath string) (int64, error) {
	info, err := s.fsmgr.Stat(srcPath)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrCopyFailed, srcPath, err)
	}

	f, err := s.fsmgr.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s: %v", ErrCopyFailed, srcPath, err)
	}
	defer f.Close()

	n, err := s.fsmgr.WriteFileAtomic(destPath, f, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("%w: writing %s: %v", ErrCopyFailed, destPath, err)
	}
	if n != info.Size() {
		return n, fmt.Errorf("%w: %s: size mismatch: expected %d bytes, wrote %d", ErrCopyFailed, destPath, info.Size(), n)
	}

	return n, nil
}
