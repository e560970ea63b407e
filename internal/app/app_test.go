package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cpd-go/internal/config"
	"cpd-go/internal/cpd"
)

// testConfig builds a config wired to in-memory backends with a complete
// bundle on disk.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	bundle := t.TempDir()
	for path, content := range map[string]string{
		"examples/neotrellis_simpletest.py":  "print('hi')",
		"lib/adafruit_bus_device/i2c.py":     "i2c\n",
		"lib/adafruit_neotrellis/trellis.py": "trellis\n",
		"lib/adafruit_seesaw/seesaw.py":      "seesaw\n",
	} {
		full := filepath.Join(bundle, path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.NewConfig("host-test", t.TempDir())
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Vaults = []config.VaultConfig{{Type: "memory", Name: "test"}}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.BundleRoot = bundle
	cfg.TargetRoot = t.TempDir()
	return cfg
}

func TestCPDApp_StageAndHistory(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewCPDApp(cfg, "Stage")
	if err != nil {
		t.Fatalf("NewCPDApp() error = %v", err)
	}
	defer a.Close()

	bundleRoot, targetRoot, err := a.ResolveRoots("", "")
	if err != nil {
		t.Fatalf("ResolveRoots() error = %v", err)
	}

	report, err := a.Stage(bundleRoot, targetRoot, true)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if report.Failed() {
		t.Fatalf("report failed: %+v", report.Results)
	}
	if len(report.Results) != 4 {
		t.Fatalf("len(Results) = %d, want 4", len(report.Results))
	}

	b, err := os.ReadFile(filepath.Join(targetRoot, "code.py"))
	if err != nil {
		t.Fatalf("code.py not staged: %v", err)
	}
	if string(b) != "print('hi')" {
		t.Errorf("code.py = %q, want %q", b, "print('hi')")
	}

	runs, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	if runs[0].Operation != "Stage" {
		t.Errorf("Operation = %q, want Stage", runs[0].Operation)
	}

	entries, err := a.RunEntries(runs[0].ID)
	if err != nil {
		t.Fatalf("RunEntries() error = %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("len(entries) = %d, want 4", len(entries))
	}
	for _, e := range entries {
		if e.Status != string(cpd.StatusCopied) {
			t.Errorf("entry %s status = %q, want copied", e.Source, e.Status)
		}
	}
}

func TestCPDApp_VerifyAfterStage(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewCPDApp(cfg, "Verify")
	if err != nil {
		t.Fatalf("NewCPDApp() error = %v", err)
	}
	defer a.Close()

	bundleRoot, targetRoot, err := a.ResolveRoots("", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Stage(bundleRoot, targetRoot, false); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	report, err := a.Verify(bundleRoot, targetRoot)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if report.Failed() {
		t.Errorf("Verify reports mismatch after stage: %+v", report.Results)
	}
}

func TestCPDApp_ResolveRoots(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewCPDApp(cfg, "Check")
	if err != nil {
		t.Fatalf("NewCPDApp() error = %v", err)
	}
	defer a.Close()

	t.Run("overrides win over config", func(t *testing.T) {
		bundle := t.TempDir()
		target := t.TempDir()
		gotBundle, gotTarget, err := a.ResolveRoots(bundle, target)
		if err != nil {
			t.Fatalf("ResolveRoots() error = %v", err)
		}
		if gotBundle != bundle || gotTarget != target {
			t.Errorf("roots = %q, %q, want overrides", gotBundle, gotTarget)
		}
	})

	t.Run("config values used when no overrides", func(t *testing.T) {
		gotBundle, gotTarget, err := a.ResolveRoots("", "")
		if err != nil {
			t.Fatalf("ResolveRoots() error = %v", err)
		}
		if gotBundle != cfg.BundleRoot || gotTarget != cfg.TargetRoot {
			t.Errorf("roots = %q, %q, want config values", gotBundle, gotTarget)
		}
	})

	t.Run("missing bundle root rejected", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "no-such-bundle")
		_, _, err := a.ResolveRoots(missing, t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "resolving bundle root") {
			t.Fatalf("ResolveRoots() error = %v, want resolving bundle root", err)
		}
	})

	t.Run("bundle root must be a directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "bundle.zip")
		if err := os.WriteFile(file, []byte("not a dir"), 0644); err != nil {
			t.Fatal(err)
		}
		_, _, err := a.ResolveRoots(file, t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "not a directory") {
			t.Fatalf("ResolveRoots() error = %v, want not a directory", err)
		}
	})

	t.Run("nonexistent target root accepted", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "CIRCUITPY")
		_, gotTarget, err := a.ResolveRoots(cfg.BundleRoot, target)
		if err != nil {
			t.Fatalf("ResolveRoots() error = %v", err)
		}
		if gotTarget != target {
			t.Errorf("target = %q, want %q", gotTarget, target)
		}
	})
}

func TestCPDApp_ResolveRoots_NoBundle(t *testing.T) {
	cfg := testConfig(t)
	cfg.BundleRoot = ""

	a, err := NewCPDApp(cfg, "Check")
	if err != nil {
		t.Fatalf("NewCPDApp() error = %v", err)
	}
	defer a.Close()

	_, _, err = a.ResolveRoots("", "")
	if err == nil || !strings.Contains(err.Error(), "no bundle root") {
		t.Fatalf("ResolveRoots() error = %v, want no bundle root", err)
	}
}

func TestCPDApp_RequiresVault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vaults = nil

	if _, err := NewCPDApp(cfg, "Check"); err == nil {
		t.Fatal("NewCPDApp() with no vaults succeeded")
	}
}

func TestCPDApp_Close(t *testing.T) {
	cfg := testConfig(t)

	a, err := NewCPDApp(cfg, "GetHistory")
	if err != nil {
		t.Fatalf("NewCPDApp() error = %v", err)
	}

	// Non-mutating operation: Close just shuts everything down.
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
