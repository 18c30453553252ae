package testutil

import (
	"fimon/internal/encryption"
	"fimon/internal/fim"
)

// NewTestEncryptor creates a deterministic header-marking encryptor for tests.
func NewTestEncryptor() fim.Encryptor {
	return encryption.NewTestEncryptor()
}
