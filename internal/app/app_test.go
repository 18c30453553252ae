package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"fimon/internal/config"
	"fimon/internal/report"
	"fimon/internal/testutil"
)

// testConfig builds a config rooted in temp dirs: one monitored directory
// with two files, a filesystem vault, the test encryptor, and no log file.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()

	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	testutil.WriteTree(t, dataDir, map[string]string{
		"app.conf": "key = value",
		"hosts":    "127.0.0.1 localhost",
	})

	cfg := config.NewConfig("host-1", base)
	cfg.MonitoredDirectories = []string{dataDir}
	cfg.Log.Dir = ""
	cfg.Encryption.Type = "test"
	cfg.Vaults = []config.VaultConfig{{
		Type:        "filesystem",
		Name:        "local",
		FSVaultRoot: filepath.Join(base, "vault"),
	}}
	return cfg, dataDir
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *App {
	t.Helper()
	a, err := NewApp(context.Background(), cfg, operation, "test-1")
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	return a
}

func TestAppScanStatusHistory(t *testing.T) {
	cfg, _ := testConfig(t)

	a := newTestApp(t, cfg, "Scan")
	summary, err := a.RunScan(context.Background())
	if err != nil {
		t.Fatalf("RunScan() error = %v", err)
	}
	if summary.TotalFiles != 2 || summary.NewCount != 2 {
		t.Errorf("summary = %+v, want 2 total, 2 new", summary)
	}

	records, err := a.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Status() returned %d records, want 2", len(records))
	}

	events, err := a.History(0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("History() returned %d events, want 2", len(events))
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A mutating operation uploads a snapshot on Close.
	snapshot := filepath.Join(cfg.Vaults[0].FSVaultRoot, "snapshots", "host-1.db")
	if _, err := os.Stat(snapshot); err != nil {
		t.Errorf("expected snapshot at %s: %v", snapshot, err)
	}
}

func TestAppExportEncryptedRoundtrip(t *testing.T) {
	cfg, _ := testConfig(t)

	a := newTestApp(t, cfg, "Scan")
	defer a.Close()

	if _, err := a.RunScan(context.Background()); err != nil {
		t.Fatalf("RunScan() error = %v", err)
	}

	var encrypted bytes.Buffer
	if err := a.Export(&encrypted, report.FormatJSON, true); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var plain bytes.Buffer
	if err := a.Decrypt(&encrypted, &plain, ""); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(plain.Bytes(), &rows); err != nil {
		t.Fatalf("decrypted report is not JSON: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("report has %d rows, want 2", len(rows))
	}
}

func TestAppClearBaseline(t *testing.T) {
	cfg, _ := testConfig(t)

	a := newTestApp(t, cfg, "ClearBaseline")
	defer a.Close()

	if _, err := a.RunScan(context.Background()); err != nil {
		t.Fatalf("RunScan() error = %v", err)
	}
	if err := a.ClearBaseline(); err != nil {
		t.Fatalf("ClearBaseline() error = %v", err)
	}

	records, err := a.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("baseline has %d records after clear, want 0", len(records))
	}
}

func TestAppBackupAndRestore(t *testing.T) {
	cfg, _ := testConfig(t)

	a := newTestApp(t, cfg, "RestoreDB")
	defer a.Close()

	if _, err := a.RunScan(context.Background()); err != nil {
		t.Fatalf("RunScan() error = %v", err)
	}
	if err := a.BackupDB(context.Background()); err != nil {
		t.Fatalf("BackupDB() error = %v", err)
	}

	// Lose the local state, then pull the snapshot back.
	if err := a.ClearBaseline(); err != nil {
		t.Fatalf("ClearBaseline() error = %v", err)
	}
	if err := a.RestoreDB(context.Background()); err != nil {
		t.Fatalf("RestoreDB() error = %v", err)
	}

	records, err := a.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("restored baseline has %d records, want 2", len(records))
	}
}

func TestAppRefusesStaleDatabase(t *testing.T) {
	cfg, _ := testConfig(t)

	a := newTestApp(t, cfg, "Scan")
	if _, err := a.RunScan(context.Background()); err != nil {
		t.Fatalf("RunScan() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Simulate a rolled-back machine: empty local database, vault ahead.
	if err := os.Remove(cfg.DatabasePath); err != nil {
		t.Fatalf("removing database: %v", err)
	}

	if _, err := NewApp(context.Background(), cfg, "Scan", "test-1"); err == nil {
		t.Fatal("expected NewApp to refuse a database behind the vault")
	}
}

func TestAppReadOnlyOpRejectsOutdatedDatabase(t *testing.T) {
	cfg, _ := testConfig(t)

	// A database from before schema versioning existed.
	raw, err := sql.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		t.Fatalf("opening raw database: %v", err)
	}
	if _, err := raw.Exec(
		`CREATE TABLE files (path TEXT PRIMARY KEY, hash TEXT NOT NULL,
			size INTEGER NOT NULL, mtime INTEGER NOT NULL)`); err != nil {
		t.Fatalf("seeding legacy database: %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("closing raw database: %v", err)
	}

	// Read-only commands must report the outdated schema, not upgrade it.
	if _, err := NewApp(context.Background(), cfg, "Status", "test-1"); err == nil {
		t.Fatal("expected NewApp to reject an outdated database for a read-only operation")
	}

	// A scan upgrades the schema in place.
	a := newTestApp(t, cfg, "Scan")
	a.Close()
}

func TestAppKeysInitGeneratesHmacKey(t *testing.T) {
	cfg, _ := testConfig(t)

	a := newTestApp(t, cfg, "KeysInit")
	defer a.Close()

	if err := a.KeysInit("passphrase"); err != nil {
		t.Fatalf("KeysInit() error = %v", err)
	}

	data, err := os.ReadFile(cfg.HmacKeyPath)
	if err != nil {
		t.Fatalf("reading hmac key: %v", err)
	}
	if len(bytes.TrimSpace(data)) != 64 {
		t.Errorf("hmac key is %d chars, want 64 hex chars", len(bytes.TrimSpace(data)))
	}
}

func TestAppWatchRequiresMonitoring(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.MonitoringEnabled = false

	a := newTestApp(t, cfg, "Watch")
	defer a.Close()

	if err := a.Watch(context.Background()); err == nil {
		t.Fatal("expected error with monitoring disabled")
	}
}
