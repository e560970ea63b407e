package cpd

import (
	"io"
	"io/fs"
)

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access so the service layer can be tested with
// fault-injecting implementations.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Stat returns fresh file info for an absolute path.
	Stat(path string) (fs.FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// WriteFileAtomic writes r to path via temp file + rename, creating
	// parent directories as needed. Returns the number of bytes written.
	WriteFileAtomic(path string, r io.Reader, perm fs.FileMode) (int64, error)

	// WalkFiles returns the relative paths of all regular files under
	// root, in lexical order.
	WalkFiles(root string) ([]string, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// ProbeWritable verifies that files can be created in dir.
	// The probe leaves the directory unchanged.
	ProbeWritable(dir string) error

	// Ignored reports whether a relative path matches the configured
	// ignore patterns and should be excluded from directory copies.
	Ignored(relativePath string) bool
}
