package testutil

import (
	"io"
	"io/fs"
	"path/filepath"

	"cpd-go/internal/cpd"
)

// FaultyFilesystemManager wraps a real FilesystemManager and injects
// failures into selected operations. Used to exercise copy failure and
// unwritable-target paths.
type FaultyFilesystemManager struct {
	cpd.FilesystemManager

	// FailWrites maps destination base names to the error to return.
	FailWrites map[string]error

	// FailProbe, when non-nil, is returned from every ProbeWritable call.
	FailProbe error
}

// NewFaultyFilesystemManager wraps inner with fault injection.
func NewFaultyFilesystemManager(inner cpd.FilesystemManager) *FaultyFilesystemManager {
	return &FaultyFilesystemManager{
		FilesystemManager: inner,
		FailWrites:        make(map[string]error),
	}
}

func (m *FaultyFilesystemManager) WriteFileAtomic(path string, r io.Reader, perm fs.FileMode) (int64, error) {
	if err, ok := m.FailWrites[filepath.Base(path)]; ok {
		return 0, err
	}
	return m.FilesystemManager.WriteFileAtomic(path, r, perm)
}

func (m *FaultyFilesystemManager) ProbeWritable(dir string) error {
	if m.FailProbe != nil {
		return m.FailProbe
	}
	return m.FilesystemManager.ProbeWritable(dir)
}

var _ cpd.FilesystemManager = (*FaultyFilesystemManager)(nil)
