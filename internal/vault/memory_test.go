package vault

import (
	"bytes"
	"strings"
	"testing"
)

func TestMemoryVault_ContentRoundTrip(t *testing.T) {
	v := NewMemoryVault("test")

	data := "print('hi')"
	if err := v.PutContent("sum-1", strings.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("PutContent() error = %v", err)
	}

	var buf bytes.Buffer
	if err := v.GetContent("sum-1", &buf); err != nil {
		t.Fatalf("GetContent() error = %v", err)
	}
	if buf.String() != data {
		t.Errorf("GetContent() = %q, want %q", buf.String(), data)
	}

	if err := v.GetContent("missing", &bytes.Buffer{}); err == nil {
		t.Error("GetContent() on missing checksum succeeded")
	}
}

func TestMemoryVault_Metadata(t *testing.T) {
	v := NewMemoryVault("test")

	version, err := v.GetMetadataVersion("host-1", "db")
	if err != nil || version != 0 {
		t.Fatalf("GetMetadataVersion() = %d, %v, want 0, nil", version, err)
	}

	data := "db-bytes"
	if err := v.PutMetadata("host-1", "db", strings.NewReader(data), int64(len(data)), 3); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	version, err = v.GetMetadataVersion("host-1", "db")
	if err != nil {
		t.Fatalf("GetMetadataVersion() error = %v", err)
	}
	if version != 3 {
		t.Errorf("version = %d, want 3", version)
	}

	var buf bytes.Buffer
	if err := v.GetMetadata("host-1", "db", &buf); err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if buf.String() != data {
		t.Errorf("GetMetadata() = %q, want %q", buf.String(), data)
	}
}

func TestMemoryVault_ValidateSetup(t *testing.T) {
	if err := NewMemoryVault("test").ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}
