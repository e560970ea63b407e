package testutil

import (
	"cpd-go/internal/cpd"
	"cpd-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() cpd.Encryptor {
	return encryption.NewTestEncryptor()
}
