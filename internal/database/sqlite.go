// Package database provides the SQLite-backed baseline store. Every row in
// the files table carries an HMAC-SHA256 signature over its integrity
// fields, recomputed on write and verified on read, so that out-of-band
// edits to the database itself are detectable.
package database

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"fimon/internal/database/migrations"
	"fimon/internal/fim"
)

// busyRetries bounds how often a statement is retried when SQLite reports
// the database as busy or locked before the error is surfaced.
const busyRetries = 3

const timeFormat = time.RFC3339

// SQLiteStore implements fim.Store on top of a single SQLite database.
// The connection pool is pinned to one connection; SQLite serialises
// writers anyway and a single connection keeps transactions and PRAGMA
// state coherent.
type SQLiteStore struct {
	db      *sql.DB
	tx      *sql.Tx
	path    string
	hmacKey []byte
}

var _ fim.Store = (*SQLiteStore)(nil)

// Open opens (or creates) the baseline database at path and brings its
// schema up to date. The special path ":memory:" creates a private
// in-memory database, used by tests.
func Open(path string) (*SQLiteStore, error) {
	return open(path, true)
}

// OpenVerify opens the database without migrating it. An empty database is
// still initialized, but a legacy or behind-version schema is reported as
// an error so that read-only commands never rewrite the file.
func OpenVerify(path string) (*SQLiteStore, error) {
	return open(path, false)
}

func open(path string, migrateUp bool) (*SQLiteStore, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on"
	if path == ":memory:" {
		// A named shared-cache database: a plain :memory: DSN would give
		// every pool connection its own empty database.
		dsn = "file:" + uuid.New().String() + "?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, mapSQLiteError("failed to connect to database", err)
	}

	if migrateUp {
		err = migrations.Prepare(db)
	} else {
		err = migrations.VerifySchema(db)
	}
	if err != nil {
		db.Close()
		return nil, mapSQLiteError("failed to prepare database", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// SetHmacKey installs the key used to sign and verify baseline rows. An
// empty key disables signing: rows are written with an empty signature and
// every row verifies as valid.
func (s *SQLiteStore) SetHmacKey(key []byte) {
	s.hmacKey = key
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// DB exposes the underlying handle for maintenance operations such as
// VACUUM INTO snapshots.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// Begin starts a write transaction. Reads and writes issued before Commit
// or Rollback run inside it.
func (s *SQLiteStore) Begin() error {
	if s.tx != nil {
		return errors.New("transaction already in progress")
	}
	var tx *sql.Tx
	err := withBusyRetry(func() error {
		var err error
		tx, err = s.db.Begin()
		return err
	})
	if err != nil {
		return mapSQLiteError("failed to begin transaction", err)
	}
	s.tx = tx
	return nil
}

func (s *SQLiteStore) Commit() error {
	if s.tx == nil {
		return errors.New("no transaction in progress")
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return mapSQLiteError("failed to commit transaction", err)
	}
	return nil
}

// Rollback abandons the active transaction, if any. SQLite rolls back
// reliably or not at all, so the error is not propagated.
func (s *SQLiteStore) Rollback() {
	if s.tx == nil {
		return
	}
	s.tx.Rollback()
	s.tx = nil
}

// querier routes statements through the active transaction when one is
// open, and directly at the pool otherwise.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (s *SQLiteStore) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const fileColumns = `path, hash, size, mtime, uid, gid, mode, device, inode,
	hardlink_count, permissions, owner, group_name, status, signature,
	updated_at, last_checked, scanner_version`

// LoadBaseline returns every baseline record ordered by path, with each
// row's signature verified against the configured key.
func (s *SQLiteStore) LoadBaseline() ([]fim.FileRecord, error) {
	rows, err := s.q().Query("SELECT " + fileColumns + " FROM files ORDER BY path")
	if err != nil {
		return nil, mapSQLiteError("failed to load baseline", err)
	}
	defer rows.Close()

	var records []fim.FileRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan baseline row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError("failed to load baseline", err)
	}
	return records, nil
}

// LoadRecord returns the baseline record for path, or fim.ErrRecordNotFound.
func (s *SQLiteStore) LoadRecord(path string) (fim.FileRecord, error) {
	row := s.q().QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path)
	rec, err := s.scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return fim.FileRecord{}, fmt.Errorf("%w: %s", fim.ErrRecordNotFound, path)
	}
	if err != nil {
		return fim.FileRecord{}, mapSQLiteError("failed to load record", err)
	}
	return rec, nil
}

// UpsertRecord inserts or replaces the baseline row for rec.Path. The row
// signature is recomputed from the record's current fields; the Signature
// and SignatureValid fields on rec are updated to match what was stored.
func (s *SQLiteStore) UpsertRecord(rec *fim.FileRecord) error {
	rec.Signature = s.sign(&rec.FileMetadata)
	rec.SignatureValid = true

	err := withBusyRetry(func() error {
		_, err := s.q().Exec(`INSERT INTO files (`+fileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				hash = excluded.hash,
				size = excluded.size,
				mtime = excluded.mtime,
				uid = excluded.uid,
				gid = excluded.gid,
				mode = excluded.mode,
				device = excluded.device,
				inode = excluded.inode,
				hardlink_count = excluded.hardlink_count,
				permissions = excluded.permissions,
				owner = excluded.owner,
				group_name = excluded.group_name,
				status = excluded.status,
				signature = excluded.signature,
				updated_at = excluded.updated_at,
				last_checked = excluded.last_checked,
				scanner_version = excluded.scanner_version`,
			rec.Path, rec.Hash, int64(rec.Size), rec.MtimeSeconds,
			rec.UID, rec.GID, rec.Mode, int64(rec.Device), int64(rec.Inode),
			int64(rec.HardlinkCount), rec.Permissions, rec.Owner, rec.Group,
			rec.Status.String(), rec.Signature,
			rec.UpdatedAt.UTC().Format(timeFormat),
			rec.LastChecked.UTC().Format(timeFormat),
			rec.ScannerVersion)
		return err
	})
	if err != nil {
		return mapSQLiteError("failed to upsert record", err)
	}
	return nil
}

// ClearAll removes the entire baseline and its history.
func (s *SQLiteStore) ClearAll() error {
	err := withBusyRetry(func() error {
		if _, err := s.q().Exec("DELETE FROM files"); err != nil {
			return err
		}
		_, err := s.q().Exec("DELETE FROM scan_history")
		return err
	})
	if err != nil {
		return mapSQLiteError("failed to clear baseline", err)
	}
	return nil
}

// AppendHistory records one change event. An OldStatus of
// fim.HistoryStatusNone is stored as NULL.
func (s *SQLiteStore) AppendHistory(ev *fim.HistoryEvent) error {
	var oldStatus any
	if ev.OldStatus != fim.HistoryStatusNone {
		oldStatus = ev.OldStatus
	}
	err := withBusyRetry(func() error {
		_, err := s.q().Exec(`INSERT INTO scan_history
			(scan_time, file_path, old_status, new_status, old_hash, new_hash, comment)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ScanTime.UTC().Format(timeFormat), ev.FilePath,
			oldStatus, ev.NewStatus, ev.OldHash, ev.NewHash, ev.Comment)
		return err
	})
	if err != nil {
		return mapSQLiteError("failed to append history", err)
	}
	return nil
}

// LoadHistory returns up to limit events, most recent first. A limit of
// zero or less returns everything.
func (s *SQLiteStore) LoadHistory(limit int) ([]fim.HistoryEvent, error) {
	query := `SELECT scan_time, file_path, old_status, new_status,
		old_hash, new_hash, comment FROM scan_history ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.q().Query(query, args...)
	if err != nil {
		return nil, mapSQLiteError("failed to load history", err)
	}
	defer rows.Close()

	var events []fim.HistoryEvent
	for rows.Next() {
		var (
			ev        fim.HistoryEvent
			scanTime  string
			oldStatus sql.NullInt64
			oldHash   sql.NullString
			newHash   sql.NullString
			comment   sql.NullString
		)
		if err := rows.Scan(&scanTime, &ev.FilePath, &oldStatus,
			&ev.NewStatus, &oldHash, &newHash, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		ev.ScanTime, err = time.Parse(timeFormat, scanTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse scan time %q: %w", scanTime, err)
		}
		ev.OldStatus = fim.HistoryStatusNone
		if oldStatus.Valid {
			ev.OldStatus = int(oldStatus.Int64)
		}
		ev.OldHash = oldHash.String
		ev.NewHash = newHash.String
		ev.Comment = comment.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError("failed to load history", err)
	}
	return events, nil
}

// MaxHistoryID returns the id of the newest history row, or zero when the
// history is empty. Snapshot uploads use it as a monotonic version.
func (s *SQLiteStore) MaxHistoryID() (int64, error) {
	var id sql.NullInt64
	err := s.q().QueryRow("SELECT max(id) FROM scan_history").Scan(&id)
	if err != nil {
		return 0, mapSQLiteError("failed to read history id", err)
	}
	return id.Int64, nil
}

type scanFunc func(dest ...any) error

func (s *SQLiteStore) scanRecord(scan scanFunc) (fim.FileRecord, error) {
	var (
		rec           fim.FileRecord
		size          int64
		device        int64
		inode         int64
		hardlinkCount int64
		permissions   sql.NullInt64
		owner         sql.NullString
		group         sql.NullString
		status        string
		updatedAt     string
		lastChecked   string
	)
	err := scan(&rec.Path, &rec.Hash, &size, &rec.MtimeSeconds,
		&rec.UID, &rec.GID, &rec.Mode, &device, &inode, &hardlinkCount,
		&permissions, &owner, &group, &status, &rec.Signature,
		&updatedAt, &lastChecked, &rec.ScannerVersion)
	if err != nil {
		return fim.FileRecord{}, err
	}

	rec.Size = uint64(size)
	rec.Device = uint64(device)
	rec.Inode = uint64(inode)
	rec.HardlinkCount = uint64(hardlinkCount)
	if permissions.Valid {
		rec.Permissions = uint32(permissions.Int64)
	}
	rec.Owner = owner.String
	rec.Group = group.String
	rec.Status = fim.ParseStatus(status)

	if updatedAt != "" {
		rec.UpdatedAt, err = time.Parse(timeFormat, updatedAt)
		if err != nil {
			return fim.FileRecord{}, fmt.Errorf("failed to parse updated_at %q: %w", updatedAt, err)
		}
	}
	if lastChecked != "" {
		rec.LastChecked, err = time.Parse(timeFormat, lastChecked)
		if err != nil {
			return fim.FileRecord{}, fmt.Errorf("failed to parse last_checked %q: %w", lastChecked, err)
		}
	}

	rec.SignatureValid = s.verify(&rec.FileMetadata, rec.Signature)
	return rec, nil
}

// sign computes the row signature over the fields an attacker would have
// to alter to hide a file change. With no key configured the signature is
// empty.
func (s *SQLiteStore) sign(meta *fim.FileMetadata) string {
	if len(s.hmacKey) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write([]byte(signaturePayload(meta)))
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks a stored signature. Rows written before a key was
// configured (empty signature) and unkeyed stores always verify.
func (s *SQLiteStore) verify(meta *fim.FileMetadata, signature string) bool {
	if len(s.hmacKey) == 0 {
		return true
	}
	if signature == "" {
		return true
	}
	expected := s.sign(meta)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func signaturePayload(meta *fim.FileMetadata) string {
	fields := []string{
		meta.Path,
		strconv.FormatUint(meta.Size, 10),
		strconv.FormatInt(meta.MtimeSeconds, 10),
		strconv.FormatUint(uint64(meta.UID), 10),
		strconv.FormatUint(uint64(meta.GID), 10),
		strconv.FormatUint(uint64(meta.Mode), 10),
		meta.Hash,
	}
	return strings.Join(fields, "|")
}

// withBusyRetry retries f a few times when SQLite reports the database as
// busy or locked. The driver-level busy timeout covers most contention;
// this catches the cases where it still surfaces.
func withBusyRetry(f func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = f()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// mapSQLiteError wraps driver errors, translating the read-only and busy
// conditions into the sentinel errors callers branch on.
func mapSQLiteError(msg string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrReadonly:
			return fmt.Errorf("%s: %w: %v", msg, fim.ErrStoreReadOnly, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%s: %w: %v", msg, fim.ErrStoreBusy, err)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
