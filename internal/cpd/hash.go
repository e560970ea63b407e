package cpd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HashReader consumes r and returns the SHA-256 checksum as a lowercase
// hex string along with the number of bytes read.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile opens path via fsmgr and returns its SHA-256 checksum and size.
func HashFile(fsmgr FilesystemManager, path string) (string, int64, error) {
	f, err := fsmgr.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return HashReader(f)
}
