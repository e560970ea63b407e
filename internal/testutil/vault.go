package testutil

import (
	"cpd-go/internal/cpd"
	"cpd-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() cpd.Vault {
	return vault.NewMemoryVault("test-vault")
}
