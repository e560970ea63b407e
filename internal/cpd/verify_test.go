package cpd_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cpd-go/internal/cpd"
)

func TestVerify_AfterStageMatches(t *testing.T) {
	bundle := makeBundle(t)
	target := t.TempDir()
	ts := newTestService(t, nil)
	m := cpd.DefaultManifest()

	if _, err := ts.svc.Stage(m, bundle, target, cpd.StageOptions{}); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	report, err := ts.svc.Verify(m, bundle, target)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if report.Failed() {
		t.Fatalf("Verify reports mismatches after clean stage: %+v", report.Results)
	}
	for i, res := range report.Results {
		if res.Status != cpd.StatusMatch {
			t.Errorf("Results[%d].Status = %q, want match", i, res.Status)
		}
	}
}

func TestVerify_DetectsMismatch(t *testing.T) {
	bundle := makeBundle(t)
	target := t.TempDir()
	ts := newTestService(t, nil)
	m := cpd.DefaultManifest()

	if _, err := ts.svc.Stage(m, bundle, target, cpd.StageOptions{}); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	// Corrupt one file, delete another.
	writeFile(t, filepath.Join(target, "code.py"), "print('tampered')")
	if err := os.Remove(filepath.Join(target, "lib", "adafruit_seesaw", "neopixel.py")); err != nil {
		t.Fatal(err)
	}

	report, err := ts.svc.Verify(m, bundle, target)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if !report.Failed() {
		t.Fatal("Failed() = false, want true")
	}
	if report.FailedCount() != 2 {
		t.Errorf("FailedCount() = %d, want 2", report.FailedCount())
	}

	if res := report.Results[0]; res.Status != cpd.StatusMismatch || !strings.Contains(res.Detail, "content differs") {
		t.Errorf("code.py result = %q (%q), want mismatch with content differs", res.Status, res.Detail)
	}
	if res := report.Results[3]; res.Status != cpd.StatusMismatch || !strings.Contains(res.Detail, "neopixel.py: missing") {
		t.Errorf("seesaw result = %q (%q), want mismatch naming missing file", res.Status, res.Detail)
	}

	// Untouched entries still match.
	if res := report.Results[1]; res.Status != cpd.StatusMatch {
		t.Errorf("bus_device result = %q, want match", res.Status)
	}
}

func TestVerify_SourceMissing(t *testing.T) {
	bundle := t.TempDir()
	target := t.TempDir()
	ts := newTestService(t, nil)

	_, err := ts.svc.Verify(cpd.DefaultManifest(), bundle, target)
	if !errors.Is(err, cpd.ErrSourceMissing) {
		t.Fatalf("Verify() error = %v, want ErrSourceMissing", err)
	}
}

func TestVerify_TargetRootMissing(t *testing.T) {
	bundle := makeBundle(t)
	target := filepath.Join(t.TempDir(), "not-mounted")
	ts := newTestService(t, nil)

	_, err := ts.svc.Verify(cpd.DefaultManifest(), bundle, target)
	if err == nil {
		t.Fatal("Verify() error = nil, want error for missing target root")
	}
}
