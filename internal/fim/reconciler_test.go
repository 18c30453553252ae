package fim_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fimon/internal/database"
	"fimon/internal/fim"
	"fimon/internal/testutil"
)

func newTestReconciler(t *testing.T) (*fim.Reconciler, *database.SQLiteStore) {
	t.Helper()
	store := testutil.NewTestStore(t)
	rec := fim.NewReconciler(store, testutil.FixedClock(), fim.NewNopLogger(), "test-1")
	return rec, store
}

func TestReconcile_firstScanRecordsEverythingAsNew(t *testing.T) {
	rec, store := newTestReconciler(t)
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	pathA := filepath.Join(root, "a.conf")
	pathB := filepath.Join(root, "b.conf")
	fs.AddFile(pathA, []byte("alpha"))
	fs.AddFile(pathB, []byte("beta"))

	summary, records, err := rec.Reconcile(context.Background(), fs.Metadata(pathA, pathB), []string{root})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if summary.TotalFiles != 2 || summary.NewCount != 2 || summary.ChangedCount != 0 {
		t.Errorf("summary = %+v, want 2 total, 2 new", summary)
	}
	for _, r := range records {
		if r.Status != fim.StatusNew {
			t.Errorf("record %s status = %v, want New", r.Path, r.Status)
		}
	}

	baseline, err := store.LoadBaseline()
	if err != nil {
		t.Fatalf("LoadBaseline() error = %v", err)
	}
	if len(baseline) != 2 {
		t.Fatalf("baseline has %d records, want 2", len(baseline))
	}

	history, err := store.LoadHistory(0)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d events, want 2", len(history))
	}
	for _, e := range history {
		if e.OldStatus != fim.HistoryStatusNone {
			t.Errorf("history old status = %d, want none", e.OldStatus)
		}
		if e.NewStatus != int(fim.StatusNew) {
			t.Errorf("history new status = %d, want New", e.NewStatus)
		}
	}
}

func TestReconcile_unchangedRescanIsQuiet(t *testing.T) {
	rec, store := newTestReconciler(t)
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	path := filepath.Join(root, "a.conf")
	fs.AddFile(path, []byte("alpha"))
	state := fs.Metadata(path)

	if _, _, err := rec.Reconcile(context.Background(), state, []string{root}); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	summary, records, err := rec.Reconcile(context.Background(), state, []string{root})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	if summary.ChangedCount != 0 || summary.NewCount != 0 {
		t.Errorf("summary = %+v, want no changes", summary)
	}
	if records[0].Status != fim.StatusOk {
		t.Errorf("record status = %v, want Ok", records[0].Status)
	}

	// No new history rows for an unchanged file.
	history, err := store.LoadHistory(0)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history has %d events, want 1", len(history))
	}
}

func TestReconcile_contentChange(t *testing.T) {
	rec, store := newTestReconciler(t)
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	path := filepath.Join(root, "a.conf")
	fs.AddFile(path, []byte("alpha"))
	before := fs.Metadata(path)

	if _, _, err := rec.Reconcile(context.Background(), before, []string{root}); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	after := append([]fim.FileMetadata(nil), before...)
	after[0].Hash = testutil.SHA256Hex([]byte("tampered"))
	after[0].Size = 8

	summary, records, err := rec.Reconcile(context.Background(), after, []string{root})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	if summary.ChangedCount != 1 {
		t.Errorf("ChangedCount = %d, want 1", summary.ChangedCount)
	}
	r := records[0]
	if r.Status != fim.StatusChanged {
		t.Errorf("status = %v, want Changed", r.Status)
	}
	if r.PreviousHash != before[0].Hash {
		t.Errorf("PreviousHash = %q, want %q", r.PreviousHash, before[0].Hash)
	}
	if r.MetadataChanged {
		t.Error("content-only change must not set MetadataChanged")
	}

	history, err := store.LoadHistory(1)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if history[0].OldHash != before[0].Hash || history[0].NewHash != after[0].Hash {
		t.Errorf("history hashes = %q -> %q, want %q -> %q",
			history[0].OldHash, history[0].NewHash, before[0].Hash, after[0].Hash)
	}
}

func TestReconcile_tamperedSignatureBecomesChanged(t *testing.T) {
	rec, store := newTestReconciler(t)
	store.SetHmacKey([]byte("scan-time-key"))
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	path := filepath.Join(root, "a.conf")
	fs.AddFile(path, []byte("alpha"))
	state := fs.Metadata(path)

	if _, _, err := rec.Reconcile(context.Background(), state, []string{root}); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	// Rows signed under a different key no longer verify, the way a row
	// edited directly in the database would not. The file itself is
	// untouched: same hash, same metadata.
	store.SetHmacKey([]byte("verify-time-key"))

	baseline, err := store.LoadBaseline()
	if err != nil {
		t.Fatalf("LoadBaseline() error = %v", err)
	}
	if baseline[0].SignatureValid || baseline[0].Signature == "" {
		t.Fatalf("baseline row = valid:%v signature:%q, want a failing non-empty signature",
			baseline[0].SignatureValid, baseline[0].Signature)
	}

	summary, records, err := rec.Reconcile(context.Background(), state, []string{root})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	if summary.ChangedCount != 1 {
		t.Errorf("ChangedCount = %d, want 1", summary.ChangedCount)
	}
	r := records[0]
	if r.Status != fim.StatusChanged {
		t.Errorf("status = %v, want Changed despite identical hash and metadata", r.Status)
	}
	if !r.SignatureMismatch {
		t.Error("SignatureMismatch = false, want true")
	}
	if r.MetadataChanged || r.Hash != state[0].Hash {
		t.Errorf("only the signature should differ, got %+v", r)
	}

	history, err := store.LoadHistory(1)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if history[0].FilePath != path || history[0].NewStatus != int(fim.StatusChanged) {
		t.Errorf("history event = %+v, want Changed for %s", history[0], path)
	}
}

func TestReconcile_metadataOnlyChange(t *testing.T) {
	rec, _ := newTestReconciler(t)
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	path := filepath.Join(root, "a.conf")
	fs.AddFile(path, []byte("alpha"))
	before := fs.Metadata(path)

	if _, _, err := rec.Reconcile(context.Background(), before, []string{root}); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	after := append([]fim.FileMetadata(nil), before...)
	after[0].Permissions = 0600
	after[0].Mode = 0100600

	summary, records, err := rec.Reconcile(context.Background(), after, []string{root})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	if summary.ChangedCount != 1 {
		t.Errorf("ChangedCount = %d, want 1", summary.ChangedCount)
	}
	r := records[0]
	if !r.MetadataChanged || !r.PermissionsChanged {
		t.Errorf("change flags = meta:%v perms:%v, want both true", r.MetadataChanged, r.PermissionsChanged)
	}
	if r.OwnerChanged || r.InodeChanged {
		t.Errorf("unexpected owner/inode flags: %+v", r)
	}

	notify := fim.BuildNotifySummary(records)
	if notify.ModifiedCount != 0 {
		t.Errorf("ModifiedCount = %d, want 0 for a metadata-only change", notify.ModifiedCount)
	}
	if notify.MetaChangedCount != 1 || notify.PermissionChangedCount != 1 {
		t.Errorf("notify summary = %+v", notify)
	}
}

func TestReconcile_deletion(t *testing.T) {
	rec, store := newTestReconciler(t)
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	kept := filepath.Join(root, "kept.conf")
	gone := filepath.Join(root, "gone.conf")
	fs.AddFile(kept, []byte("kept"))
	fs.AddFile(gone, []byte("gone"))

	if _, _, err := rec.Reconcile(context.Background(), fs.Metadata(kept, gone), []string{root}); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	// Second scan no longer sees the file, and it is absent on disk.
	summary, _, err := rec.Reconcile(context.Background(), fs.Metadata(kept), []string{root})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}

	if summary.DeletedCount != 1 {
		t.Errorf("DeletedCount = %d, want 1", summary.DeletedCount)
	}
	if summary.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1 (deleted files are not part of the new state)", summary.TotalFiles)
	}

	stored, err := store.LoadRecord(gone)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if stored.Status != fim.StatusDeleted {
		t.Errorf("stored status = %v, want Deleted", stored.Status)
	}

	// A third scan must not report the same deletion again.
	summary, _, err = rec.Reconcile(context.Background(), fs.Metadata(kept), []string{root})
	if err != nil {
		t.Fatalf("third Reconcile() error = %v", err)
	}
	if summary.DeletedCount != 0 {
		t.Errorf("DeletedCount = %d on rescan, want 0", summary.DeletedCount)
	}
}

func TestReconcile_pathOutsideRootsKeepsStatus(t *testing.T) {
	rec, store := newTestReconciler(t)
	rootA := t.TempDir()
	rootB := t.TempDir()

	fs := testutil.NewFakeFS()
	inA := filepath.Join(rootA, "a.conf")
	inB := filepath.Join(rootB, "b.conf")
	fs.AddFile(inA, []byte("a"))
	fs.AddFile(inB, []byte("b"))

	if _, _, err := rec.Reconcile(context.Background(), fs.Metadata(inA, inB), []string{rootA, rootB}); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	// Scan only rootA. The rootB record is outside the scanned roots and
	// must keep its previous status rather than turn Deleted.
	summary, _, err := rec.Reconcile(context.Background(), fs.Metadata(inA), []string{rootA})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if summary.DeletedCount != 0 {
		t.Errorf("DeletedCount = %d, want 0 for a path outside the roots", summary.DeletedCount)
	}

	stored, err := store.LoadRecord(inB)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if stored.Status != fim.StatusNew {
		t.Errorf("stored status = %v, want the previous status New", stored.Status)
	}
}

func TestReconcile_excludedButPresentKeepsStatus(t *testing.T) {
	rec, store := newTestReconciler(t)
	root := t.TempDir()

	// The file really exists on disk; a later scan merely stops reporting
	// it (e.g. a new exclude rule).
	path := filepath.Join(root, "still-here.conf")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	fs := testutil.NewFakeFS()
	fs.AddFile(path, []byte("content"))

	if _, _, err := rec.Reconcile(context.Background(), fs.Metadata(path), []string{root}); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}

	summary, _, err := rec.Reconcile(context.Background(), nil, []string{root})
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if summary.DeletedCount != 0 {
		t.Errorf("DeletedCount = %d, want 0 for an excluded file still on disk", summary.DeletedCount)
	}

	stored, err := store.LoadRecord(path)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if stored.Status != fim.StatusNew {
		t.Errorf("stored status = %v, want the previous status New", stored.Status)
	}
}

func TestReconcile_readFailureBecomesError(t *testing.T) {
	rec, store := newTestReconciler(t)
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	path := filepath.Join(root, "secret.conf")
	fs.AddFile(path, []byte("classified"))
	fs.FailReads(path, fim.ReasonPermissionDenied)

	summary, records, err := rec.Reconcile(context.Background(), fs.Metadata(path), []string{root})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if summary.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", summary.ErrorCount)
	}
	if records[0].Status != fim.StatusError {
		t.Errorf("status = %v, want Error", records[0].Status)
	}
	if records[0].ErrorReason != fim.ReasonPermissionDenied {
		t.Errorf("ErrorReason = %q, want %q", records[0].ErrorReason, fim.ReasonPermissionDenied)
	}

	stored, err := store.LoadRecord(path)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if stored.Status != fim.StatusError {
		t.Errorf("stored status = %v, want Error", stored.Status)
	}
}

func TestReconcile_cancelledContextRollsBack(t *testing.T) {
	rec, store := newTestReconciler(t)
	root := t.TempDir()

	fs := testutil.NewFakeFS()
	path := filepath.Join(root, "a.conf")
	fs.AddFile(path, []byte("alpha"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := rec.Reconcile(ctx, fs.Metadata(path), []string{root}); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	baseline, err := store.LoadBaseline()
	if err != nil {
		t.Fatalf("LoadBaseline() error = %v", err)
	}
	if len(baseline) != 0 {
		t.Errorf("baseline has %d records after rollback, want 0", len(baseline))
	}
}
