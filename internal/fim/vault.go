package fim

import (
	"context"
	"io"
)

// SnapshotVault stores off-host copies of the baseline database, keyed by
// host and stamped with a monotonic version. A host only uploads when its
// local version is ahead of the vault's, so a restored machine does not
// clobber a newer snapshot with an older baseline.
type SnapshotVault interface {
	// Name returns the configured vault name, used in logs.
	Name() string

	// PutSnapshot stores the snapshot for hostID at the given version.
	PutSnapshot(ctx context.Context, hostID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the stored snapshot for hostID to w.
	GetSnapshot(ctx context.Context, hostID string, w io.Writer) error

	// SnapshotVersion returns the stored version for hostID, or zero when
	// no snapshot exists.
	SnapshotVersion(ctx context.Context, hostID string) (int64, error)

	// ValidateSetup verifies the vault is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
