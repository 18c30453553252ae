// Package fs implements the OS-backed metadata probe.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"strconv"

	"fimon/internal/fim"
)

// OSProbe reads file attributes from the real filesystem and implements
// fim.MetadataProbe.
type OSProbe struct{}

// NewOSProbe creates a probe over the real filesystem.
func NewOSProbe() *OSProbe { return &OSProbe{} }

// Probe fills a FileMetadata for the file at path. When followSymlinks is
// false the link itself is examined and symlinks fail the regular-file
// check; when true the link target is classified instead.
func (p *OSProbe) Probe(path string, followSymlinks bool) (fim.FileMetadata, error) {
	var info fs.FileInfo
	var err error
	if followSymlinks {
		info, err = os.Stat(path)
	} else {
		info, err = os.Lstat(path)
	}
	if err != nil {
		return fim.FileMetadata{}, err
	}
	if !info.Mode().IsRegular() {
		return fim.FileMetadata{}, fmt.Errorf("not a regular file: %s", path)
	}

	meta := fim.FileMetadata{
		Path:         path,
		Size:         uint64(info.Size()),
		MtimeSeconds: info.ModTime().UTC().Unix(),
		Permissions:  uint32(info.Mode().Perm()),
	}

	// Platform-specific stat fields; zero on platforms without them.
	fillStat(&meta, info)

	if meta.UID != 0 || meta.GID != 0 || meta.Inode != 0 {
		meta.Owner, meta.Group = lookupNames(meta.UID, meta.GID)
	}

	return meta, nil
}

// lookupNames resolves uid/gid to names via the platform name service.
// Failed lookups leave the names empty; display layers fall back to the
// numeric ids.
func lookupNames(uid, gid uint32) (string, string) {
	var owner, group string
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		owner = u.Username
	}
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10)); err == nil {
		group = g.Name
	}
	return owner, group
}

// Compile-time check that OSProbe implements fim.MetadataProbe.
var _ fim.MetadataProbe = (*OSProbe)(nil)
