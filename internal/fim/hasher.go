package fim

import "context"

// Hasher streams a file's bytes through a cryptographic digest.
type Hasher interface {
	// Compute returns the lowercase hex SHA-256 of the file's content.
	// On failure the hex result is empty and reason carries a canonical
	// error reason (ReasonPermissionDenied, ReasonFileVanished, or the
	// underlying message). The error return is reserved for context
	// cancellation; per-file read failures are reported via reason.
	Compute(ctx context.Context, path string) (hexHash string, reason string, err error)
}

// MetadataProbe reads per-file attributes for one path.
type MetadataProbe interface {
	// Probe fills a FileMetadata for the file at path, excluding the
	// content hash. followSymlinks selects the link-following stat for
	// regular-file classification; otherwise the link itself is examined
	// and symlinks are rejected at the type check.
	Probe(path string, followSymlinks bool) (FileMetadata, error)
}
