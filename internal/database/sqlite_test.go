package database

import (
	"path/filepath"
	"testing"
	"time"

	"cpd-go/internal/cpd"
)

func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()
	db, err := NewSQLiteDatabase(":memory:", true)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db := newTestDB(t)
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
}

func TestSQLiteDatabase_StagingRuns(t *testing.T) {
	db := newTestDB(t)

	run, err := db.CreateStagingRun("Stage", "bundle=/b target=/t", "/b", "/t")
	if err != nil {
		t.Fatalf("CreateStagingRun() error = %v", err)
	}
	if run.ID == 0 {
		t.Fatal("run.ID = 0, want auto-increment ID")
	}
	if run.Status != "success" {
		t.Errorf("Status = %q, want success", run.Status)
	}

	if _, err := db.CreateStagingRun("Rollback", "", "", "/t"); err != nil {
		t.Fatalf("second CreateStagingRun() error = %v", err)
	}

	if err := db.FinishStagingRun(run.ID, "partial"); err != nil {
		t.Fatalf("FinishStagingRun() error = %v", err)
	}

	runs, err := db.ListStagingRuns(10)
	if err != nil {
		t.Fatalf("ListStagingRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	// Newest first.
	if runs[0].Operation != "Rollback" || runs[1].Operation != "Stage" {
		t.Errorf("order = %q, %q, want Rollback, Stage", runs[0].Operation, runs[1].Operation)
	}
	if runs[1].Status != "partial" {
		t.Errorf("finished run Status = %q, want partial", runs[1].Status)
	}
	if !runs[1].FinishedAt.Valid {
		t.Error("finished run FinishedAt not set")
	}
	if runs[1].BundleRoot != "/b" || runs[1].TargetRoot != "/t" {
		t.Errorf("roots = %q, %q, want /b, /t", runs[1].BundleRoot, runs[1].TargetRoot)
	}

	max, err := db.MaxStagingRunID()
	if err != nil {
		t.Fatalf("MaxStagingRunID() error = %v", err)
	}
	if max != runs[0].ID {
		t.Errorf("MaxStagingRunID() = %d, want %d", max, runs[0].ID)
	}
}

func TestSQLiteDatabase_MaxStagingRunID_Empty(t *testing.T) {
	db := newTestDB(t)

	max, err := db.MaxStagingRunID()
	if err != nil {
		t.Fatalf("MaxStagingRunID() error = %v", err)
	}
	if max != 0 {
		t.Errorf("MaxStagingRunID() = %d, want 0", max)
	}
}

func TestSQLiteDatabase_RunEntries(t *testing.T) {
	db := newTestDB(t)

	run, err := db.CreateStagingRun("Stage", "", "/b", "/t")
	if err != nil {
		t.Fatal(err)
	}

	// Insert out of manifest order; listing must sort by position.
	entries := []*cpd.RunEntry{
		{ID: "e-2", RunID: run.ID, Source: "lib/x", Destination: "lib/x", Kind: "dir", Status: "copied", Files: 3, Bytes: 120, Position: 1},
		{ID: "e-1", RunID: run.ID, Source: "a.py", Destination: "code.py", Kind: "file", Status: "failed", Error: "device write error", Position: 0},
	}
	for _, e := range entries {
		if err := db.RecordRunEntry(e); err != nil {
			t.Fatalf("RecordRunEntry() error = %v", err)
		}
	}

	got, err := db.ListRunEntries(run.ID)
	if err != nil {
		t.Fatalf("ListRunEntries() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].ID != "e-1" || got[1].ID != "e-2" {
		t.Errorf("order = %q, %q, want e-1, e-2", got[0].ID, got[1].ID)
	}
	if got[0].Status != "failed" || got[0].Error != "device write error" {
		t.Errorf("got[0] = %q/%q, want failed with error text", got[0].Status, got[0].Error)
	}
	if got[1].Files != 3 || got[1].Bytes != 120 {
		t.Errorf("got[1] Files/Bytes = %d/%d, want 3/120", got[1].Files, got[1].Bytes)
	}

	// Unknown run has no entries.
	none, err := db.ListRunEntries(9999)
	if err != nil {
		t.Fatalf("ListRunEntries(9999) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("len(none) = %d, want 0", len(none))
	}
}

func TestSQLiteDatabase_Snapshots(t *testing.T) {
	db := newTestDB(t)

	// No snapshots yet.
	snap, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if snap != nil {
		t.Fatalf("LatestSnapshot() = %+v, want nil", snap)
	}

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := &cpd.Snapshot{ID: "snap-1", TargetRoot: "/t", CreatedAt: t0}
	second := &cpd.Snapshot{ID: "snap-2", TargetRoot: "/t", Encrypted: true, CreatedAt: t0.Add(time.Hour)}
	for _, s := range []*cpd.Snapshot{first, second} {
		if err := db.CreateSnapshot(s); err != nil {
			t.Fatalf("CreateSnapshot(%s) error = %v", s.ID, err)
		}
	}

	latest, err := db.LatestSnapshot()
	if err != nil {
		t.Fatalf("LatestSnapshot() error = %v", err)
	}
	if latest == nil || latest.ID != "snap-2" {
		t.Fatalf("LatestSnapshot() = %+v, want snap-2", latest)
	}
	if !latest.Encrypted {
		t.Error("latest.Encrypted = false, want true")
	}

	found, err := db.FindSnapshot("snap-1")
	if err != nil {
		t.Fatalf("FindSnapshot() error = %v", err)
	}
	if found == nil || found.ID != "snap-1" {
		t.Fatalf("FindSnapshot() = %+v, want snap-1", found)
	}

	missing, err := db.FindSnapshot("snap-x")
	if err != nil {
		t.Fatalf("FindSnapshot(snap-x) error = %v", err)
	}
	if missing != nil {
		t.Errorf("FindSnapshot(snap-x) = %+v, want nil", missing)
	}

	all, err := db.ListSnapshots(10)
	if err != nil {
		t.Fatalf("ListSnapshots() error = %v", err)
	}
	if len(all) != 2 || all[0].ID != "snap-2" {
		t.Errorf("ListSnapshots() = %d entries, first %q, want 2 newest-first", len(all), all[0].ID)
	}
}

func TestSQLiteDatabase_SnapshotFiles(t *testing.T) {
	db := newTestDB(t)

	snap := &cpd.Snapshot{ID: "snap-1", TargetRoot: "/t", CreatedAt: time.Now()}
	if err := db.CreateSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	files := []*cpd.SnapshotFile{
		{ID: "f-1", SnapshotID: "snap-1", RelativePath: "lib/x.py", Checksum: "sum-x", Size: 10, Permissions: 0644, ModifiedAt: time.Now()},
		{ID: "f-2", SnapshotID: "snap-1", RelativePath: "code.py", Checksum: "sum-c", Size: 20, Permissions: 0644, ModifiedAt: time.Now()},
	}
	for _, f := range files {
		if err := db.AddSnapshotFile(f); err != nil {
			t.Fatalf("AddSnapshotFile() error = %v", err)
		}
	}

	got, err := db.ListSnapshotFiles("snap-1")
	if err != nil {
		t.Fatalf("ListSnapshotFiles() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	// Ordered by relative path.
	if got[0].RelativePath != "code.py" || got[1].RelativePath != "lib/x.py" {
		t.Errorf("order = %q, %q, want code.py, lib/x.py", got[0].RelativePath, got[1].RelativePath)
	}
	if got[0].Checksum != "sum-c" || got[0].Size != 20 {
		t.Errorf("got[0] = %q/%d, want sum-c/20", got[0].Checksum, got[0].Size)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "cpd.db")

	db, err := NewSQLiteDatabase(srcPath, true)
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	if _, err := db.CreateStagingRun("Stage", "", "/b", "/t"); err != nil {
		t.Fatal(err)
	}

	backupPath := filepath.Join(dir, "backup.db")
	if err := db.BackupTo(backupPath); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}
	db.Close()

	restored, err := NewSQLiteDatabase(backupPath, false)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()

	if err := restored.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	max, err := restored.MaxStagingRunID()
	if err != nil {
		t.Fatalf("MaxStagingRunID() error = %v", err)
	}
	if max != 1 {
		t.Errorf("MaxStagingRunID() = %d, want 1", max)
	}
}
