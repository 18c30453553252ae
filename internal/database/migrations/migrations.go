// Package migrations manages the SQLite schema for the baseline database.
// Migration files are embedded in the binary and applied through
// golang-migrate; databases created by older scanners that predate the
// schema_migrations table are adopted in place before migrating.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Prepare brings the database schema up to the latest version. Legacy
// databases without migration bookkeeping are adopted first so that their
// baseline data survives the upgrade.
func Prepare(db *sql.DB) error {
	if err := AdoptLegacy(db); err != nil {
		return fmt.Errorf("failed to adopt legacy schema: %w", err)
	}
	return MigrateUp(db)
}

// VerifySchema checks the schema without changing existing data. A database
// with no tables at all is initialized in place; anything else must already
// be at the latest version.
func VerifySchema(db *sql.DB) error {
	hasFiles, err := tableExists(db, "files")
	if err != nil {
		return err
	}
	hasVersioning, err := tableExists(db, "schema_migrations")
	if err != nil {
		return err
	}
	if !hasFiles && !hasVersioning {
		return MigrateUp(db)
	}
	if hasFiles && !hasVersioning {
		return fmt.Errorf("database predates schema versioning (run a scan to upgrade it)")
	}
	return CheckDBMigrationStatus(db)
}

// CheckDBMigrationStatus verifies that the database schema is up-to-date.
// Returns nil if the database is at the latest version.
// Returns an error describing any version mismatch or migration issues.
func CheckDBMigrationStatus(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: We don't close m here because it would close the db connection
	// The caller owns the db and is responsible for closing it

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}
		return fmt.Errorf("failed to get database version: %w", err)
	}

	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	// Get the latest version from migration files
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	defer sourceDriver.Close()

	// Find the latest version by checking what migrations are available
	latestVersion, err := getLatestVersion(sourceDriver)
	if err != nil {
		return fmt.Errorf("failed to determine latest version: %w", err)
	}

	if version < latestVersion {
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			version, latestVersion, latestVersion-version)
	}

	if version > latestVersion {
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			version, latestVersion)
	}

	// version == latestVersion
	return nil
}

// MigrateUp runs all pending migrations to bring database to latest version.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: We don't close m here because it would close the db connection
	// The caller owns the db and is responsible for closing it

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			// Database is already at latest version - this is fine
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// AdoptLegacy recognises a database written by a scanner from before schema
// versioning existed: a files table is present but schema_migrations is not.
// It adds the columns the old schema lacked and stamps the database at
// version 1 so MigrateUp can take over from there. Databases that are empty
// or already versioned are left untouched.
func AdoptLegacy(db *sql.DB) error {
	hasFiles, err := tableExists(db, "files")
	if err != nil {
		return err
	}
	hasVersioning, err := tableExists(db, "schema_migrations")
	if err != nil {
		return err
	}
	if !hasFiles || hasVersioning {
		return nil
	}

	columns, err := tableColumns(db, "files")
	if err != nil {
		return err
	}

	// Columns introduced after the original release. SQLite cannot add a
	// column with a non-constant default, so timestamps get empty text.
	added := []struct {
		name string
		ddl  string
	}{
		{"uid", "ALTER TABLE files ADD COLUMN uid INTEGER NOT NULL DEFAULT 0"},
		{"gid", "ALTER TABLE files ADD COLUMN gid INTEGER NOT NULL DEFAULT 0"},
		{"mode", "ALTER TABLE files ADD COLUMN mode INTEGER NOT NULL DEFAULT 0"},
		{"device", "ALTER TABLE files ADD COLUMN device INTEGER NOT NULL DEFAULT 0"},
		{"inode", "ALTER TABLE files ADD COLUMN inode INTEGER NOT NULL DEFAULT 0"},
		{"hardlink_count", "ALTER TABLE files ADD COLUMN hardlink_count INTEGER NOT NULL DEFAULT 0"},
		{"permissions", "ALTER TABLE files ADD COLUMN permissions INTEGER"},
		{"owner", "ALTER TABLE files ADD COLUMN owner TEXT"},
		{"group_name", "ALTER TABLE files ADD COLUMN group_name TEXT"},
		{"status", "ALTER TABLE files ADD COLUMN status TEXT NOT NULL DEFAULT 'Ok'"},
		{"signature", "ALTER TABLE files ADD COLUMN signature TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "ALTER TABLE files ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''"},
		{"last_checked", "ALTER TABLE files ADD COLUMN last_checked TEXT NOT NULL DEFAULT ''"},
		{"scanner_version", "ALTER TABLE files ADD COLUMN scanner_version TEXT NOT NULL DEFAULT ''"},
	}
	for _, col := range added {
		if columns[col.name] {
			continue
		}
		if _, err := db.Exec(col.ddl); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col.name, err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS scan_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_time TEXT NOT NULL,
		file_path TEXT NOT NULL,
		old_status INTEGER,
		new_status INTEGER NOT NULL,
		old_hash TEXT,
		new_hash TEXT,
		comment TEXT
	)`); err != nil {
		return fmt.Errorf("failed to create scan_history: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create meta: %w", err)
	}

	// Stamp the adopted database at version 1 so the remaining migrations
	// (including the status label rewrite in 0002) run normally.
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Force(1); err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}
	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// newMigrate creates a new migrate instance for the given database.
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	// Create source driver from embedded files
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	// Create database driver (wraps *sql.DB with SQLite-specific migration logic)
	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migrate instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// getLatestVersion returns the highest version number available in the source.
func getLatestVersion(src source.Driver) (uint, error) {
	// Read the first migration version
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	// Keep reading next versions until we reach the end
	latestVersion := version
	for {
		nextVersion, err := src.Next(latestVersion)
		if err != nil {
			// Any error from Next() means we've reached the end
			// (no more migrations available)
			break
		}
		latestVersion = nextVersion
	}

	return latestVersion, nil
}
