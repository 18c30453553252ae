package fim

import "io"

// Encryptor encrypts exported reports and database snapshots. Setup
// generates the key material once; Encrypt only needs the public half,
// Unlock requires the passphrase protecting the private half.
type Encryptor interface {
	Setup(passphrase string) error
	Encrypt(r io.Reader, w io.Writer) error
	Unlock(passphrase string) (DecryptionContext, error)
	IsConfigured() bool
}

// DecryptionContext holds unlocked key material for decrypting data.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
