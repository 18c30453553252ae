package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteTree materializes files on disk under dir. Keys are slash-separated
// relative paths, values are file contents. Parent directories are created
// as needed. Returns the absolute path of every created file, keyed by the
// relative path.
func WriteTree(t *testing.T, dir string, files map[string]string) map[string]string {
	t.Helper()

	abs := make(map[string]string, len(files))
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
		abs[rel] = path
	}
	return abs
}
