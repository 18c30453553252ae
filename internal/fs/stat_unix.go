//go:build unix

package fs

import (
	"io/fs"
	"syscall"

	"fimon/internal/fim"
)

// fillStat extracts Unix stat fields from a FileInfo.
func fillStat(meta *fim.FileMetadata, info fs.FileInfo) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	meta.UID = stat.Uid
	meta.GID = stat.Gid
	meta.Mode = uint32(stat.Mode)
	meta.Device = uint64(stat.Dev)
	meta.Inode = uint64(stat.Ino)
	meta.HardlinkCount = uint64(stat.Nlink)
}
