package fim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Scanner walks the configured roots and produces one FileMetadata per
// accepted regular file. It never touches the Store; reconciliation against
// the baseline happens elsewhere.
type Scanner struct {
	cfg    ScanConfig
	probe  MetadataProbe
	hasher Hasher
	logger Logger

	// OnFile, when set, is invoked for every emitted FileMetadata in
	// traversal order. Used by the worker for progress events.
	OnFile func(meta *FileMetadata)
}

// NewScanner creates a Scanner over the given config.
func NewScanner(cfg ScanConfig, probe MetadataProbe, hasher Hasher, logger Logger) *Scanner {
	return &Scanner{
		cfg:    cfg,
		probe:  probe,
		hasher: hasher,
		logger: logger,
	}
}

type dirFrame struct {
	path  string
	depth int
}

// Scan traverses all roots and returns the collected metadata in traversal
// order. Cancellation is polled at every file boundary; a cancelled scan
// returns ctx.Err().
func (s *Scanner) Scan(ctx context.Context) ([]FileMetadata, error) {
	var files []FileMetadata

	// Hardlinks to an already-seen inode are reported once per scan.
	seenInodes := make(map[string]struct{})

	for _, root := range s.cfg.Roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			s.logger.Warn("skipping root", "path", root, "reason", "not an existing directory")
			continue
		}

		absRoot, err := filepath.Abs(root)
		if err != nil {
			s.logger.Warn("skipping root", "path", root, "error", err)
			continue
		}

		// Canonical forms of directories already descended into.
		// Protects against symlink cycles and hardlinked directory loops.
		visited := make(map[string]struct{})

		stack := []dirFrame{{path: absRoot, depth: 0}}
		for len(stack) > 0 {
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			canonical := canonicalPath(frame.path)
			if _, ok := visited[canonical]; ok {
				continue
			}
			visited[canonical] = struct{}{}

			entries, err := os.ReadDir(frame.path)
			if err != nil {
				// Unreadable directory: log and move on, never abort.
				s.logger.Warn("skipping directory", "path", frame.path, "error", err)
				continue
			}

			for _, entry := range entries {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				entryPath := filepath.Join(frame.path, entry.Name())
				if Excluded(s.cfg.ExcludeRules, entryPath) {
					continue
				}

				mode := entry.Type()
				isDir := entry.IsDir()
				isRegular := mode.IsRegular()

				if mode&os.ModeSymlink != 0 {
					if !s.cfg.FollowSymlinks {
						continue
					}
					target, err := os.Stat(entryPath)
					if err != nil {
						s.logger.Warn("skipping broken symlink", "path", entryPath, "error", err)
						continue
					}
					isDir = target.IsDir()
					isRegular = target.Mode().IsRegular()
				}

				if isDir {
					if !s.cfg.Recursive {
						continue
					}
					childDepth := frame.depth + 1
					if s.cfg.MaxDepth >= 0 && childDepth > s.cfg.MaxDepth {
						continue
					}
					stack = append(stack, dirFrame{path: entryPath, depth: childDepth})
					continue
				}

				if !isRegular {
					// Sockets, pipes, devices.
					continue
				}

				meta := s.collect(ctx, entryPath)
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				if meta.Hash != "" && meta.Inode != 0 {
					inodeKey := fmt.Sprintf("%d:%d", meta.Device, meta.Inode)
					if _, ok := seenInodes[inodeKey]; ok {
						continue
					}
					seenInodes[inodeKey] = struct{}{}
				}

				if s.OnFile != nil {
					s.OnFile(&meta)
				}
				files = append(files, meta)
			}
		}
	}

	return files, nil
}

// collect probes metadata and hashes one file. Failures never abort the
// scan: they produce a metadata record with an empty hash and an error
// reason, which the reconciler promotes to StatusError.
func (s *Scanner) collect(ctx context.Context, path string) FileMetadata {
	meta, err := s.probe.Probe(path, s.cfg.FollowSymlinks)
	if err != nil {
		s.logger.Warn("probe failed", "path", path, "error", err)
		return FileMetadata{Path: path, ErrorReason: probeReason(err)}
	}

	hash, reason, err := s.hasher.Compute(ctx, path)
	if err != nil {
		// Context cancellation: surface through the caller's ctx check.
		return meta
	}
	meta.Hash = hash
	if reason != "" {
		meta.ErrorReason = reason
	}
	return meta
}

// canonicalPath resolves symlinks where possible, falling back to the
// cleaned absolute path for entries that vanish mid-scan.
func canonicalPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// probeReason maps a probe error onto the canonical per-file reasons.
func probeReason(err error) string {
	switch {
	case os.IsPermission(err):
		return ReasonPermissionDenied
	case os.IsNotExist(err):
		return ReasonFileVanished
	default:
		return err.Error()
	}
}
