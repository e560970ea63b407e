package cpd_test

import (
	"os"
	"path/filepath"
	"testing"

	"cpd-go/internal/cpd"
	"cpd-go/internal/fs"
	"cpd-go/internal/testutil"
)

// writeFile creates a file with the given content, creating parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// readFile returns the file content, failing the test on error.
func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(b)
}

// makeBundle builds a bundle directory covering every default manifest entry.
func makeBundle(t *testing.T) string {
	t.Helper()
	bundle := t.TempDir()
	writeFile(t, filepath.Join(bundle, "examples", "neotrellis_simpletest.py"), "print('hi')")
	writeFile(t, filepath.Join(bundle, "lib", "adafruit_bus_device", "__init__.py"), "")
	writeFile(t, filepath.Join(bundle, "lib", "adafruit_bus_device", "i2c_device.py"), "class I2CDevice: pass\n")
	writeFile(t, filepath.Join(bundle, "lib", "adafruit_neotrellis", "neotrellis.py"), "class NeoTrellis: pass\n")
	writeFile(t, filepath.Join(bundle, "lib", "adafruit_seesaw", "seesaw.py"), "class Seesaw: pass\n")
	writeFile(t, filepath.Join(bundle, "lib", "adafruit_seesaw", "neopixel.py"), "class NeoPixel: pass\n")
	return bundle
}

// testService wires a StageService against the real filesystem with
// in-memory database and vault.
type testService struct {
	svc   *cpd.StageService
	db    cpd.Database
	vault cpd.Vault
	fsmgr cpd.FilesystemManager
}

// newTestService builds a service with the given filesystem manager.
// Pass nil to use a default OS filesystem manager without ignore patterns.
func newTestService(t *testing.T, fsmgr cpd.FilesystemManager) *testService {
	t.Helper()
	if fsmgr == nil {
		fsmgr = fs.NewOSFilesystemManager(nil)
	}
	db := testutil.NewTestDatabase(t)
	v := testutil.NewTestVault()
	svc := cpd.NewStageService(db, v, fsmgr, testutil.NewTestEncryptor(),
		cpd.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())
	return &testService{svc: svc, db: db, vault: v, fsmgr: fsmgr}
}
