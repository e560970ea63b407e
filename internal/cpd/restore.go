package cpd

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
)

// Rollback restores device content from a snapshot. An empty snapshotID
// selects the most recent snapshot. decryptCtx is required when the
// snapshot is encrypted; pass nil otherwise. Returns the list of
// restored file paths.
func (s *StageService) Rollback(snapshotID string, decryptCtx DecryptionContext) ([]string, error) {
	var snap *Snapshot
	var err error
	if snapshotID == "" {
		snap, err = s.database.LatestSnapshot()
	} else {
		snap, err = s.database.FindSnapshot(snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	if snap == nil {
		if snapshotID == "" {
			return nil, fmt.Errorf("no snapshots recorded")
		}
		return nil, fmt.Errorf("snapshot not found: %s", snapshotID)
	}

	if snap.Encrypted && decryptCtx == nil {
		return nil, fmt.Errorf("snapshot is encrypted but no passphrase was provided")
	}

	files, err := s.database.ListSnapshotFiles(snap.ID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot files: %w", err)
	}

	s.logger.Info("rollback started", "snapshot_id", snap.ID, "target", snap.TargetRoot, "files", len(files))

	var restored []string
	for _, f := range files {
		outPath := filepath.Join(snap.TargetRoot, f.RelativePath)
		if err := s.restoreOneFile(snap, f, outPath, decryptCtx); err != nil {
			return restored, fmt.Errorf("restoring %s: %w", f.RelativePath, err)
		}
		restored = append(restored, outPath)
		s.logger.Info("file restored", "path", outPath)
	}

	s.logger.Info("rollback complete", "snapshot_id", snap.ID, "files", len(restored))
	return restored, nil
}

// restoreOneFile writes a single snapshot file back to disk.
// For encrypted snapshots the vault output is piped straight into the
// decryptor with no intermediate ciphertext buffer.
func (s *StageService) restoreOneFile(snap *Snapshot, f *SnapshotFile, outPath string, decryptCtx DecryptionContext) error {
	var buf bytes.Buffer

	if snap.Encrypted {
		pr, pw := io.Pipe()
		vaultErrCh := make(chan error, 1)
		go func() {
			err := s.vault.GetContent(f.Checksum, pw)
			pw.CloseWithError(err)
			vaultErrCh <- err
		}()

		decryptErr := decryptCtx.Decrypt(pr, &buf)
		pr.CloseWithError(decryptErr) // unblock goroutine if Decrypt failed early
		<-vaultErrCh                  // wait for goroutine to finish (no leak)

		if decryptErr != nil {
			return fmt.Errorf("decrypting content: %w", decryptErr)
		}
	} else {
		if err := s.vault.GetContent(f.Checksum, &buf); err != nil {
			return fmt.Errorf("retrieving content from vault: %w", err)
		}
	}

	n, err := s.fsmgr.WriteFileAtomic(outPath, &buf, fs.FileMode(f.Permissions))
	if err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	if n != f.Size {
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d", f.Size, n)
	}

	return nil
}
