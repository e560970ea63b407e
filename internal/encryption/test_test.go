package encryption

import (
	"bytes"
	"strings"
	"testing"
)

func TestTestEncryptor_RoundTrip(t *testing.T) {
	e := NewTestEncryptor()

	plaintext := "device content"
	var ciphertext bytes.Buffer
	if err := e.Encrypt(strings.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Output must differ from input so checksums change.
	if ciphertext.String() == plaintext {
		t.Error("ciphertext equals plaintext")
	}

	ctx, err := e.Unlock("any")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var decrypted bytes.Buffer
	if err := ctx.Decrypt(bytes.NewReader(ciphertext.Bytes()), &decrypted); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted.String() != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted.String(), plaintext)
	}
}

func TestTestDecryptionContext_RejectsBadHeader(t *testing.T) {
	ctx := &TestDecryptionContext{}

	err := ctx.Decrypt(strings.NewReader("not encrypted data"), &bytes.Buffer{})
	if err == nil {
		t.Fatal("Decrypt() accepted data without header")
	}
}

func TestTestEncryptor_IsConfigured(t *testing.T) {
	if !NewTestEncryptor().IsConfigured() {
		t.Error("IsConfigured() = false, want true")
	}
}
