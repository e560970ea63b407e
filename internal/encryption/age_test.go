package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cpd-go/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "cpd.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "cpd.key"),
	})
}

func TestAgeEncryptor_Setup(t *testing.T) {
	e := newTestAgeEncryptor(t)

	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true before Setup")
	}

	if err := e.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}

	// Public key is stored in plaintext age format.
	pub, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		t.Fatalf("reading public key: %v", err)
	}
	if !strings.HasPrefix(string(pub), "age1") {
		t.Errorf("public key = %q, want age1... recipient", pub)
	}

	// Private key is passphrase-encrypted, not plaintext.
	priv, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		t.Fatalf("reading private key: %v", err)
	}
	if strings.Contains(string(priv), "AGE-SECRET-KEY-") {
		t.Error("private key stored in plaintext")
	}
}

func TestAgeEncryptor_EncryptDecryptRoundTrip(t *testing.T) {
	e := newTestAgeEncryptor(t)
	if err := e.Setup("passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	plaintext := "print('precious device state')"

	var ciphertext bytes.Buffer
	if err := e.Encrypt(strings.NewReader(plaintext), &ciphertext); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if strings.Contains(ciphertext.String(), plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	ctx, err := e.Unlock("passphrase")
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

func TestAgeEncryptor_Unlock_WrongPassphrase(t *testing.T) {
	e := newTestAgeEncryptor(t)
	if err := e.Setup("right"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := e.Unlock("wrong"); err == nil {
		t.Fatal("Unlock() with wrong passphrase succeeded")
	}
}

func TestAgeEncryptor_Encrypt_NotConfigured(t *testing.T) {
	e := newTestAgeEncryptor(t)

	err := e.Encrypt(strings.NewReader("data"), &bytes.Buffer{})
	if err == nil {
		t.Fatal("Encrypt() without keys succeeded")
	}
}
