package cpd

import "errors"

// Error taxonomy for staging runs. Preflight failures abort before any
// write; copy failures are recorded per entry and the run continues.
var (
	// ErrSourceMissing indicates a manifest source does not exist under
	// the bundle root. Detected during preflight, before any copy.
	ErrSourceMissing = errors.New("manifest source missing")

	// ErrDestinationUnwritable indicates the target root cannot be
	// created or written to. Detected during preflight, before any copy.
	ErrDestinationUnwritable = errors.New("target root unwritable")

	// ErrCopyFailed indicates an I/O error while copying a specific
	// manifest entry. The failing entry is reported and staging
	// continues with the next entry.
	ErrCopyFailed = errors.New("copy failed")
)
