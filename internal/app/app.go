// Package app is the application layer between the CLI and the scan engine.
// It constructs all dependencies from config, exposes high-level operations,
// and manages the database snapshot upload on Close.
package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fimon/internal/config"
	"fimon/internal/database"
	"fimon/internal/encryption"
	"fimon/internal/fim"
	"fimon/internal/fs"
	"fimon/internal/hash"
	"fimon/internal/notify"
	"fimon/internal/report"
	"fimon/internal/vault"
)

// App wires the scan engine to its store, vaults, encryptor, and
// notification sinks. The caller must call Close when done.
type App struct {
	cfg        *config.Config
	store      *database.SQLiteStore
	vaults     []fim.SnapshotVault
	encryptor  fim.Encryptor
	dispatcher *fim.Dispatcher
	sinks      []fim.NotificationSink
	logger     fim.Logger
	logFile    *os.File
	op         *ScanOperation
	hostID     string
	version    string
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Scan", "Export"); version is
// the scanner version stamped into baseline records, overridable via the
// scannerVersion config key.
func NewApp(ctx context.Context, cfg *config.Config, operation, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ScannerVersion != "" {
		version = cfg.ScannerVersion
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.Log.Dir, cfg.Log.Level, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	hostID := cfg.HostID
	if hostID == "" {
		hostID, err = os.Hostname()
		if err != nil {
			if logFile != nil {
				logFile.Close()
			}
			return nil, fmt.Errorf("determining host id: %w", err)
		}
	}

	// Mutating operations migrate the schema forward; read-only ones
	// verify it instead, so 'status' against an outdated database reports
	// the version gap rather than rewriting the file.
	op := NewScanOperation(operation)
	openStore := database.OpenVerify
	if op.Mutating() {
		openStore = database.Open
	}
	store, err := openStore(cfg.DatabasePath)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if key, err := loadHmacKey(cfg.HmacKeyPath); err != nil {
		logger.Warn("row signatures disabled", "error", err)
	} else if key != nil {
		store.SetHmacKey(key)
	}

	var vaults []fim.SnapshotVault
	for _, vcfg := range cfg.Vaults {
		v, err := vault.NewVaultFromConfig(ctx, vcfg)
		if err != nil {
			store.Close()
			if logFile != nil {
				logFile.Close()
			}
			return nil, fmt.Errorf("creating vault %q: %w", vcfg.Name, err)
		}
		vaults = append(vaults, v)
	}

	// Refuse to run against a database the vaults know to be stale: a
	// restored or rolled-back machine must restore the snapshot first.
	localMax, err := store.MaxHistoryID()
	if err != nil {
		store.Close()
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("checking local snapshot version: %w", err)
	}
	for _, v := range vaults {
		remote, err := v.SnapshotVersion(ctx, hostID)
		if err != nil {
			logger.Warn("cannot check vault snapshot version", "vault", v.Name(), "error", err)
			continue
		}
		if remote > localMax {
			store.Close()
			if logFile != nil {
				logFile.Close()
			}
			return nil, fmt.Errorf("local database is behind vault %q (local=%d, remote=%d): restore from vault or clear the baseline", v.Name(), localMax, remote)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	sinks, err := notify.NewSinksFromConfig(cfg.Notify, logger)
	if err != nil {
		store.Close()
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("creating notification sinks: %w", err)
	}

	return &App{
		cfg:        cfg,
		store:      store,
		vaults:     vaults,
		encryptor:  enc,
		dispatcher: fim.NewDispatcher(logger, sinks...),
		sinks:      sinks,
		logger:     logger,
		logFile:    logFile,
		op:         op,
		hostID:     hostID,
		version:    version,
	}, nil
}

// loadHmacKey reads the row-signature key. A missing path or file means
// signing stays disabled; that is not an error.
func loadHmacKey(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading hmac key: %w", err)
	}
	key := bytes.TrimSpace(data)
	if len(key) == 0 {
		return nil, nil
	}
	return key, nil
}

// RunScan executes one scan against the configured roots, reconciles it
// into the baseline, and dispatches the summary to the notification sinks.
func (a *App) RunScan(ctx context.Context) (fim.ScanSummary, error) {
	worker := fim.NewWorker(a.store, fs.NewOSProbe(), hash.New(),
		fim.RealClock{}, a.logger, a.version)

	var summary fim.ScanSummary
	for ev := range worker.Run(ctx, a.cfg.ScanConfig()) {
		switch ev := ev.(type) {
		case fim.FileProcessed:
			a.logger.Debug("scanned", "path", ev.Path)
		case fim.Finished:
			summary = ev.Summary
			a.dispatcher.Dispatch(ev.Notify)
		case fim.Failed:
			a.op.Status = "error"
			return fim.ScanSummary{}, fmt.Errorf("%s", ev.Message)
		}
	}
	return summary, nil
}

// Watch runs scans on the configured interval until the context is
// cancelled. The first scan starts immediately.
func (a *App) Watch(ctx context.Context) error {
	if !a.cfg.MonitoringEnabled {
		return fmt.Errorf("monitoring is disabled in the config (monitoringEnabled = false)")
	}
	interval := time.Duration(a.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		return fmt.Errorf("intervalSeconds must be positive for watch mode")
	}

	trigger := make(chan struct{}, 1)
	sched := fim.NewScheduler(interval, true, func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	defer sched.Stop()

	for {
		sched.ScanStarted()
		summary, err := a.RunScan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("scan failed", "error", err)
		} else {
			a.logger.Info("scan complete",
				"total", summary.TotalFiles,
				"changed", summary.ChangedCount,
				"new", summary.NewCount,
				"deleted", summary.DeletedCount,
				"errors", summary.ErrorCount)
		}
		sched.ScheduleNext()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
		}
	}
}

// Status returns the current baseline, ordered by path.
func (a *App) Status() ([]fim.FileRecord, error) {
	return a.store.LoadBaseline()
}

// History returns up to limit history events, most recent first.
func (a *App) History(limit int) ([]fim.HistoryEvent, error) {
	return a.store.LoadHistory(limit)
}

// Export writes the baseline to w in the given format. With encrypt set,
// the rendered report is age-encrypted with the configured public key.
func (a *App) Export(w io.Writer, format report.Format, encrypt bool) error {
	records, err := a.store.LoadBaseline()
	if err != nil {
		return fmt.Errorf("loading baseline: %w", err)
	}

	if !encrypt {
		return report.Write(w, format, records)
	}

	if !a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys not set up: run 'fimon keys init' first")
	}
	var plain bytes.Buffer
	if err := report.Write(&plain, format, records); err != nil {
		return err
	}
	return a.encryptor.Encrypt(&plain, w)
}

// Decrypt unlocks the private key with the passphrase and decrypts an
// age-encrypted report from r to w.
func (a *App) Decrypt(r io.Reader, w io.Writer, passphrase string) error {
	if !a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys not set up: run 'fimon keys init' first")
	}
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	return dec.Decrypt(r, w)
}

// ClearBaseline removes the baseline and the history log.
func (a *App) ClearBaseline() error {
	if err := a.store.ClearAll(); err != nil {
		a.op.Status = "error"
		return err
	}
	a.logger.Info("baseline cleared")
	return nil
}

// KeysInit generates the age key pair for report encryption and, if no key
// exists yet, a random row-signature key.
func (a *App) KeysInit(passphrase string) error {
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption keys: %w", err)
	}

	if a.cfg.HmacKeyPath == "" {
		return nil
	}
	if _, err := os.Stat(a.cfg.HmacKeyPath); err == nil {
		return nil // keep the existing key, rows are signed with it
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.HmacKeyPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generating signature key: %w", err)
	}
	key := hex.EncodeToString(raw)
	if err := os.WriteFile(a.cfg.HmacKeyPath, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("writing signature key: %w", err)
	}
	a.logger.Info("row signature key generated", "path", a.cfg.HmacKeyPath)
	return nil
}

// BackupDB snapshots the database and uploads it to every configured vault,
// regardless of version. Used by the explicit 'db backup' command.
func (a *App) BackupDB(ctx context.Context) error {
	if len(a.vaults) == 0 {
		return fmt.Errorf("no vaults configured")
	}
	return a.uploadSnapshot(ctx, true)
}

// RestoreDB replaces the local database with the snapshot from the first
// vault holding one. The store is reopened afterwards.
func (a *App) RestoreDB(ctx context.Context) error {
	if len(a.vaults) == 0 {
		return fmt.Errorf("no vaults configured")
	}

	var buf bytes.Buffer
	var lastErr error
	restored := false
	for _, v := range a.vaults {
		buf.Reset()
		if err := v.GetSnapshot(ctx, a.hostID, &buf); err != nil {
			lastErr = err
			continue
		}
		a.logger.Info("restoring database snapshot", "vault", v.Name(), "bytes", buf.Len())
		restored = true
		break
	}
	if !restored {
		return fmt.Errorf("no vault holds a snapshot for host %s: %w", a.hostID, lastErr)
	}

	if err := a.store.Close(); err != nil {
		return fmt.Errorf("closing database before restore: %w", err)
	}
	if err := os.WriteFile(a.cfg.DatabasePath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing restored database: %w", err)
	}

	store, err := database.Open(a.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("reopening restored database: %w", err)
	}
	if key, err := loadHmacKey(a.cfg.HmacKeyPath); err == nil && key != nil {
		store.SetHmacKey(key)
	}
	a.store = store
	return nil
}

// uploadSnapshot writes a consistent copy of the database to a temp file
// and uploads it to every vault. Without force, vaults already at or ahead
// of the local version are skipped.
func (a *App) uploadSnapshot(ctx context.Context, force bool) error {
	localMax, err := a.store.MaxHistoryID()
	if err != nil {
		return fmt.Errorf("reading local snapshot version: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "fimon-db-snapshot-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	os.Remove(tmpPath) // VACUUM INTO refuses to overwrite
	defer os.Remove(tmpPath)

	if _, err := a.store.DB().ExecContext(ctx, "VACUUM INTO ?", tmpPath); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}

	var firstErr error
	for _, v := range a.vaults {
		if !force {
			remote, err := v.SnapshotVersion(ctx, a.hostID)
			if err == nil && remote >= localMax {
				continue
			}
		}
		if err := a.uploadTo(ctx, v, tmpPath, localMax); err != nil {
			a.logger.Warn("snapshot upload failed", "vault", v.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.logger.Info("snapshot uploaded", "vault", v.Name(), "version", localMax)
	}
	return firstErr
}

func (a *App) uploadTo(ctx context.Context, v fim.SnapshotVault, path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	return v.PutSnapshot(ctx, a.hostID, f, info.Size(), version)
}

// Close finalizes the operation and closes all resources. Mutating
// operations upload a fresh database snapshot to the configured vaults
// first.
func (a *App) Close() error {
	var firstErr error

	if a.op.Mutating() && len(a.vaults) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := a.uploadSnapshot(ctx, false); err != nil {
			firstErr = err
		}
		cancel()
	}

	if err := a.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	for _, sink := range a.sinks {
		if closer, ok := sink.(io.Closer); ok {
			closer.Close()
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// Describe returns a human-readable one-line summary of the configuration,
// used by 'config list'.
func (a *App) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "host: %s\n", a.hostID)
	fmt.Fprintf(&b, "database: %s\n", a.cfg.DatabasePath)
	fmt.Fprintf(&b, "directories: %s\n", strings.Join(a.cfg.MonitoredDirectories, ", "))
	fmt.Fprintf(&b, "excludes: %s\n", strings.Join(a.cfg.ExcludeRules, ", "))
	fmt.Fprintf(&b, "interval: %ds, monitoring enabled: %v\n", a.cfg.IntervalSeconds, a.cfg.MonitoringEnabled)
	return b.String()
}
