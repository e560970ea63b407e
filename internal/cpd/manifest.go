package cpd

import (
	"fmt"
	"path/filepath"
	"strings"
)

// EntryKind distinguishes file and directory manifest entries.
// The kind is inferred from the resolved source during preflight,
// never declared by the manifest itself.
type EntryKind string

const (
	EntryFile EntryKind = "file"
	EntryDir  EntryKind = "dir"
)

// Entry is a single copy instruction: a source path relative to the
// bundle root and a destination path relative to the target root.
type Entry struct {
	Source      string
	Destination string
}

// String renders the entry in "source -> destination" form for reports and logs.
func (e Entry) String() string {
	return e.Source + " -> " + e.Destination
}

// Manifest is an ordered sequence of copy instructions, constructed once
// per run and consumed once. Order is significant: entries are staged in
// the order they appear.
type Manifest struct {
	Entries []Entry
}

// DefaultManifest returns the built-in manifest for the NeoTrellis
// example bundle: the entry-point script and its three support libraries.
func DefaultManifest() Manifest {
	return Manifest{
		Entries: []Entry{
			{Source: "examples/neotrellis_simpletest.py", Destination: "code.py"},
			{Source: "lib/adafruit_bus_device", Destination: "lib/adafruit_bus_device"},
			{Source: "lib/adafruit_neotrellis", Destination: "lib/adafruit_neotrellis"},
			{Source: "lib/adafruit_seesaw", Destination: "lib/adafruit_seesaw"},
		},
	}
}

// Validate checks every entry's source and destination path.
// Paths must be non-empty, relative, and must not escape their root.
func (m Manifest) Validate() error {
	if len(m.Entries) == 0 {
		return fmt.Errorf("manifest has no entries")
	}
	for i, e := range m.Entries {
		if err := validateRelPath(e.Source); err != nil {
			return fmt.Errorf("entry %d source %q: %w", i, e.Source, err)
		}
		if err := validateRelPath(e.Destination); err != nil {
			return fmt.Errorf("entry %d destination %q: %w", i, e.Destination, err)
		}
	}
	return nil
}

// validateRelPath rejects paths that are empty, absolute, or escape
// their root via "..".
func validateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("path must be relative")
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes its root")
	}
	return nil
}
