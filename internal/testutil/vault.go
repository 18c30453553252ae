package testutil

import (
	"fimon/internal/fim"
	"fimon/internal/vault"
)

// NewTestVault creates an in-memory snapshot vault for tests.
func NewTestVault() fim.SnapshotVault {
	return vault.NewMemoryVault("test-vault")
}
