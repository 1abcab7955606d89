// Package store persists the flushed rewrite table in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // bundles the SQLite wasm build

	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/rewrite"
)

// DefaultFilename is the database filename inside the data directory.
const DefaultFilename = "rewrite.db"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed rewrite.Persister.
type Store struct {
	db *sql.DB
}

var _ rewrite.Persister = (*Store)(nil)

// Open opens (or creates) the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored rule set in a single transaction.
func (s *Store) Save(ctx context.Context, rules []rewrite.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rewrite_rules`); err != nil {
		return fmt.Errorf("clearing rules: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i, r := range rules {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rewrite_rules (position, pattern, query, flushed_at) VALUES (?, ?, ?, ?)`,
			i, r.Pattern, r.Query, now)
		if err != nil {
			return fmt.Errorf("inserting rule %q: %w", r.Pattern, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Debug(log.CatStore, "saved rewrite rules", "count", len(rules))
	return nil
}

// Load returns the stored rules in match order.
func (s *Store) Load(ctx context.Context) ([]rewrite.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern, query FROM rewrite_rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []rewrite.Rule
	for rows.Next() {
		var r rewrite.Rule
		if err := rows.Scan(&r.Pattern, &r.Query); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// FlushedAt returns when the stored rule set was written, or the zero time
// if the table is empty.
func (s *Store) FlushedAt(ctx context.Context) (time.Time, error) {
	var stamp sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(flushed_at) FROM rewrite_rules`).Scan(&stamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying flush time: %w", err)
	}
	if !stamp.Valid || stamp.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, stamp.String)
}

// newMigrator drives the embedded migrations against db. Closing the
// returned Migrate also closes db.
func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("preparing schema_migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, fmt.Errorf("loading migrations: %w", err)
	}
	return m, nil
}

// migrateUp applies every embedded up-migration newer than the recorded
// schema version.
func migrateUp(db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Debug(log.CatStore, "schema ready", "version", version, "dirty", dirty)
	return nil
}
