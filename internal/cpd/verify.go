package cpd

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Verify compares the target root against the bundle without writing.
// File entries must match by checksum; directory entries must contain
// every non-ignored source file at the corresponding relative path with
// matching content. Missing sources fail with ErrSourceMissing just as
// staging would.
func (s *StageService) Verify(m Manifest, bundleRoot, targetRoot string) (*Report, error) {
	entries, err := s.resolveEntries(m, bundleRoot, targetRoot)
	if err != nil {
		return nil, err
	}

	if _, err := s.fsmgr.Stat(targetRoot); err != nil {
		return nil, fmt.Errorf("target root not accessible: %w", err)
	}

	report := &Report{}
	for _, re := range entries {
		res := s.verifyEntry(re)
		report.Add(res)
		s.logger.Debug("entry verified", "entry", re.Entry.String(), "status", string(res.Status))
	}

	s.logger.Info("verify complete", "entries", len(entries), "mismatched", report.FailedCount())
	return report, nil
}

// verifyEntry compares one resolved entry and never returns an error:
// problems are reported as a mismatch with detail text.
func (s *StageService) verifyEntry(re ResolvedEntry) EntryResult {
	res := EntryResult{Entry: re.Entry, Kind: re.Kind, Status: StatusMatch}

	if re.Kind == EntryFile {
		res.Files = 1
		if detail := s.compareFile(re.SourcePath, re.DestPath); detail != "" {
			res.Status = StatusMismatch
			res.Detail = detail
		}
		return res
	}

	rels, err := s.fsmgr.WalkFiles(re.SourcePath)
	if err != nil {
		res.Status = StatusMismatch
		res.Detail = "walking source: " + err.Error()
		return res
	}

	var problems []string
	for _, rel := range rels {
		if s.fsmgr.Ignored(rel) {
			continue
		}
		res.Files++
		if detail := s.compareFile(filepath.Join(re.SourcePath, rel), filepath.Join(re.DestPath, rel)); detail != "" {
			problems = append(problems, rel+": "+detail)
		}
	}
	if len(problems) > 0 {
		res.Status = StatusMismatch
		res.Detail = strings.Join(problems, "; ")
	}

	return res
}

// compareFile returns "" when destination content matches the source
// byte-for-byte, or a short description of the difference.
func (s *StageService) compareFile(srcPath, destPath string) string {
	srcSum, _, err := HashFile(s.fsmgr, srcPath)
	if err != nil {
		return "reading source: " + err.Error()
	}

	if _, err := s.fsmgr.Stat(destPath); err != nil {
		return "missing"
	}

	destSum, _, err := HashFile(s.fsmgr, destPath)
	if err != nil {
		return "reading destination: " + err.Error()
	}

	if srcSum != destSum {
		return "content differs"
	}
	return ""
}
