package hash

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fimon/internal/fim"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestCompute(t *testing.T) {
	h := New()

	t.Run("known digest", func(t *testing.T) {
		path := writeFile(t, "hello.txt", "hello")

		got, reason, err := h.Compute(context.Background(), path)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		if reason != "" {
			t.Fatalf("Compute() reason = %q", reason)
		}
		// sha256("hello")
		want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
		if got != want {
			t.Errorf("Compute() = %q, want %q", got, want)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "empty.txt", "")

		got, reason, err := h.Compute(context.Background(), path)
		if err != nil || reason != "" {
			t.Fatalf("Compute() = %q, %q, %v", got, reason, err)
		}
		// sha256 of the empty string
		want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
		if got != want {
			t.Errorf("Compute() = %q, want %q", got, want)
		}
	})

	t.Run("missing file reports reason", func(t *testing.T) {
		got, reason, err := h.Compute(context.Background(), filepath.Join(t.TempDir(), "nope"))
		if err != nil {
			t.Fatalf("Compute() error = %v, want nil for per-file failures", err)
		}
		if got != "" {
			t.Errorf("Compute() = %q, want empty hash", got)
		}
		if reason != fim.ReasonFileVanished {
			t.Errorf("reason = %q, want %q", reason, fim.ReasonFileVanished)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		path := writeFile(t, "hello.txt", "hello")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, _, err := h.Compute(ctx, path); err == nil {
			t.Fatal("expected error from cancelled context")
		}
	})
}

func TestCompute_largeFileStreams(t *testing.T) {
	// Larger than one chunk to exercise the read loop.
	content := make([]byte, chunkSize+chunkSize/2)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "large.bin")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing large file: %v", err)
	}

	h := New()
	got, reason, err := h.Compute(context.Background(), path)
	if err != nil || reason != "" {
		t.Fatalf("Compute() = %q, %q, %v", got, reason, err)
	}
	if len(got) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(got))
	}
}
