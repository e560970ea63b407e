package cpd

import (
	"bytes"
	"database/sql"
	"fmt"
	"path/filepath"
)

// snapshotDestinations captures every file currently present at a
// manifest destination before staging overwrites it. Content goes to
// the vault keyed by plaintext SHA-256; metadata goes to the database.
// Returns the snapshot ID, or "" when there was nothing to capture.
func (s *StageService) snapshotDestinations(entries []ResolvedEntry, targetRoot string, opts StageOptions) (string, error) {
	type candidate struct {
		rel string // relative to target root
		abs string
	}

	var files []candidate
	for _, re := range entries {
		info, err := s.fsmgr.Stat(re.DestPath)
		if err != nil {
			continue // nothing at this destination yet
		}
		if info.IsDir() {
			rels, err := s.fsmgr.WalkFiles(re.DestPath)
			if err != nil {
				return "", fmt.Errorf("walking %s: %w", re.DestPath, err)
			}
			for _, rel := range rels {
				files = append(files, candidate{
					rel: filepath.Join(re.Entry.Destination, rel),
					abs: filepath.Join(re.DestPath, rel),
				})
			}
		} else {
			files = append(files, candidate{rel: re.Entry.Destination, abs: re.DestPath})
		}
	}

	if len(files) == 0 {
		return "", nil
	}

	if opts.EncryptSnapshot && !s.encryptor.IsConfigured() {
		return "", fmt.Errorf("snapshot encryption requested but keys are not configured")
	}

	snap := &Snapshot{
		ID:         s.idgen.New(),
		TargetRoot: targetRoot,
		Encrypted:  opts.EncryptSnapshot,
		CreatedAt:  s.clock.Now(),
	}
	if opts.RunID != 0 {
		snap.RunID = sql.NullInt64{Int64: opts.RunID, Valid: true}
	}
	if err := s.database.CreateSnapshot(snap); err != nil {
		return "", fmt.Errorf("creating snapshot record: %w", err)
	}

	for _, c := range files {
		if err := s.snapshotOneFile(snap, c.rel, c.abs); err != nil {
			return "", fmt.Errorf("capturing %s: %w", c.rel, err)
		}
	}

	return snap.ID, nil
}

// snapshotOneFile uploads one file's content to the vault and records
// its metadata. The file is read twice: once to compute the checksum
// that keys the vault content, once to upload.
func (s *StageService) snapshotOneFile(snap *Snapshot, rel, abs string) error {
	info, err := s.fsmgr.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	checksum, size, err := HashFile(s.fsmgr, abs)
	if err != nil {
		return err
	}

	f, err := s.fsmgr.Open(abs)
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}
	defer f.Close()

	if snap.Encrypted {
		// Device files are small; buffering the ciphertext gives us its
		// size for the vault upload.
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(f, &buf); err != nil {
			return fmt.Errorf("encrypting: %w", err)
		}
		if err := s.vault.PutContent(checksum, &buf, int64(buf.Len())); err != nil {
			return fmt.Errorf("uploading to vault: %w", err)
		}
	} else {
		if err := s.vault.PutContent(checksum, f, size); err != nil {
			return fmt.Errorf("uploading to vault: %w", err)
		}
	}

	record := &SnapshotFile{
		ID:           s.idgen.New(),
		SnapshotID:   snap.ID,
		RelativePath: rel,
		Checksum:     checksum,
		Size:         size,
		Permissions:  int64(info.Mode().Perm()),
		ModifiedAt:   info.ModTime(),
	}
	if err := s.database.AddSnapshotFile(record); err != nil {
		return fmt.Errorf("recording snapshot file: %w", err)
	}

	s.logger.Debug("file captured", "path", rel, "checksum", checksum)
	return nil
}
