//go:build !unix

package fs

import (
	"io/fs"

	"fimon/internal/fim"
)

// fillStat is a no-op on platforms without POSIX stat fields; uid, gid,
// mode, device, inode, and hardlink count stay zero and only the portable
// permissions bitmask carries access information.
func fillStat(meta *fim.FileMetadata, info fs.FileInfo) {}
