package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"fimon/internal/fim"
)

// FakeFS is an in-memory filesystem implementing both fim.MetadataProbe and
// fim.Hasher. It lets reconciler and worker tests control file attributes
// and content without touching disk.
type FakeFS struct {
	mu    sync.Mutex
	files map[string]*fakeFile
}

type fakeFile struct {
	meta    fim.FileMetadata
	content []byte
	readErr string // hash failure reason, e.g. fim.ReasonPermissionDenied
}

// NewFakeFS creates an empty in-memory filesystem.
func NewFakeFS() *FakeFS {
	return &FakeFS{files: make(map[string]*fakeFile)}
}

// AddFile registers a regular file with default attributes derived from the
// path and content. Returns the metadata so tests can tweak it via SetMeta.
func (f *FakeFS) AddFile(path string, content []byte) fim.FileMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()

	meta := fim.FileMetadata{
		Path:          path,
		Size:          uint64(len(content)),
		MtimeSeconds:  1700000000,
		UID:           1000,
		GID:           1000,
		Mode:          0100644,
		Device:        1,
		Inode:         uint64(len(f.files) + 1),
		HardlinkCount: 1,
		Permissions:   0644,
		Owner:         "user",
		Group:         "user",
	}
	f.files[path] = &fakeFile{meta: meta, content: append([]byte(nil), content...)}
	return meta
}

// SetMeta replaces the stored metadata for an existing file.
func (f *FakeFS) SetMeta(path string, meta fim.FileMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[path]; ok {
		file.meta = meta
	}
}

// FailReads makes hashing the given file fail with the given reason.
func (f *FakeFS) FailReads(path, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[path]; ok {
		file.readErr = reason
	}
}

// Probe implements fim.MetadataProbe.
func (f *FakeFS) Probe(path string, _ bool) (fim.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	if !ok {
		return fim.FileMetadata{}, fmt.Errorf("stat %s: no such file", path)
	}
	return file.meta, nil
}

// Compute implements fim.Hasher.
func (f *FakeFS) Compute(ctx context.Context, path string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path]
	if !ok {
		return "", fim.ReasonFileVanished, nil
	}
	if file.readErr != "" {
		return "", file.readErr, nil
	}
	sum := sha256.Sum256(file.content)
	return hex.EncodeToString(sum[:]), "", nil
}

// Metadata returns the registered files in insertion-independent map form,
// converted to the scanner's output shape with hashes filled in.
func (f *FakeFS) Metadata(paths ...string) []fim.FileMetadata {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]fim.FileMetadata, 0, len(paths))
	for _, path := range paths {
		file, ok := f.files[path]
		if !ok {
			continue
		}
		meta := file.meta
		if file.readErr == "" {
			sum := sha256.Sum256(file.content)
			meta.Hash = hex.EncodeToString(sum[:])
		} else {
			meta.ErrorReason = file.readErr
		}
		out = append(out, meta)
	}
	return out
}

var (
	_ fim.MetadataProbe = (*FakeFS)(nil)
	_ fim.Hasher        = (*FakeFS)(nil)
)
