package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"cpd-go/internal/config"
)

// bootInfoFile is written by CircuitPython firmware to the root of the
// CIRCUITPY volume on every boot. Its presence identifies a mounted device.
const bootInfoFile = "boot_out.txt"

// Mount describes a mounted CircuitPython device.
type Mount struct {
	Path       string // mount point, usable as a target root
	VolumeName string // base name of the mount point
	BootInfo   string // first line of boot_out.txt (firmware version string)
}

// Detector scans well-known mount locations for CircuitPython devices.
type Detector struct {
	scanDirs   []string
	volumeName string
}

// NewDetector creates a Detector from configuration. When cfg.ScanDirs is
// empty the OS-specific default locations are used.
func NewDetector(cfg config.DeviceConfig) *Detector {
	dirs := cfg.ScanDirs
	if len(dirs) == 0 {
		dirs = defaultScanDirs()
	}
	name := cfg.VolumeName
	if name == "" {
		name = "CIRCUITPY"
	}
	return &Detector{
		scanDirs:   dirs,
		volumeName: name,
	}
}

// defaultScanDirs returns the mount locations to scan for the current OS.
func defaultScanDirs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/Volumes"}
	case "linux":
		dirs := []string{"/mnt", "/media"}
		if user := os.Getenv("USER"); user != "" {
			dirs = append(dirs,
				filepath.Join("/media", user),
				filepath.Join("/run/media", user),
			)
		}
		return dirs
	default:
		return nil
	}
}

// Detect returns all mounted CircuitPython devices found under the scan
// directories, sorted by mount path. A directory counts as a device when it
// contains a boot_out.txt file.
func (d *Detector) Detect() ([]*Mount, error) {
	seen := make(map[string]bool)
	var mounts []*Mount

	for _, dir := range d.scanDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Scan locations routinely don't exist (e.g. /run/media/<user>
			// before any device is plugged in).
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			mountPath := filepath.Join(dir, entry.Name())
			if seen[mountPath] {
				continue
			}
			m, err := d.probe(mountPath)
			if err != nil || m == nil {
				continue
			}
			seen[mountPath] = true
			mounts = append(mounts, m)
		}
	}

	sort.Slice(mounts, func(i, j int) bool { return mounts[i].Path < mounts[j].Path })
	return mounts, nil
}

// DetectOne returns the single mounted device. It fails when no device is
// found or when more than one is mounted, since staging needs an unambiguous
// target.
func (d *Detector) DetectOne() (*Mount, error) {
	mounts, err := d.Detect()
	if err != nil {
		return nil, err
	}
	switch len(mounts) {
	case 0:
		return nil, fmt.Errorf("no mounted %s device found", d.volumeName)
	case 1:
		return mounts[0], nil
	default:
		paths := make([]string, len(mounts))
		for i, m := range mounts {
			paths[i] = m.Path
		}
		return nil, fmt.Errorf("multiple devices found: %s", strings.Join(paths, ", "))
	}
}

// probe checks whether mountPath holds a CircuitPython device and reads its
// boot info. Returns nil when the directory is not a device.
func (d *Detector) probe(mountPath string) (*Mount, error) {
	bootPath := filepath.Join(mountPath, bootInfoFile)
	f, err := os.Open(bootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	// Renamed volumes still count as devices as long as boot_out.txt is there.
	m := &Mount{
		Path:       mountPath,
		VolumeName: filepath.Base(mountPath),
	}

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		m.BootInfo = strings.TrimSpace(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", bootPath, err)
	}

	return m, nil
}
