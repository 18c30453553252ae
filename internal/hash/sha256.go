// Package hash provides the streaming SHA-256 hasher used by the scanner.
package hash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"

	"fimon/internal/fim"
)

// chunkSize bounds memory per file regardless of file size.
const chunkSize = 1 << 20 // 1 MiB

// SHA256Hasher implements fim.Hasher by streaming file content through
// crypto/sha256 in fixed-size chunks.
type SHA256Hasher struct{}

// New creates a SHA256Hasher.
func New() *SHA256Hasher { return &SHA256Hasher{} }

// Compute returns the lowercase hex digest of the file at path. Read
// failures are reported through the reason string, not the error return;
// the error return fires only on context cancellation.
func (h *SHA256Hasher) Compute(ctx context.Context, path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", openReason(err), nil
	}
	defer f.Close()

	digest := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err.Error(), nil
		}
	}

	return hex.EncodeToString(digest.Sum(nil)), "", nil
}

func openReason(err error) string {
	switch {
	case os.IsPermission(err):
		return fim.ReasonPermissionDenied
	case os.IsNotExist(err):
		return fim.ReasonFileVanished
	default:
		return err.Error()
	}
}

// Compile-time check that SHA256Hasher implements fim.Hasher.
var _ fim.Hasher = (*SHA256Hasher)(nil)
