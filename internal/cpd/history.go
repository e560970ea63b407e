package cpd

// GetHistory returns the most recent staging runs, newest first.
func (s *StageService) GetHistory(limit int) ([]*StagingRun, error) {
	return s.database.ListStagingRuns(limit)
}

// GetRunEntries returns the per-entry results of a staging run.
func (s *StageService) GetRunEntries(runID int64) ([]*RunEntry, error) {
	return s.database.ListRunEntries(runID)
}

// GetSnapshots returns the most recent snapshots, newest first.
func (s *StageService) GetSnapshots(limit int) ([]*Snapshot, error) {
	return s.database.ListSnapshots(limit)
}
