// Package sqlite persists medicine records in a local SQLite file. It backs
// single-machine runs where a Postgres server is not available.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

const (
	defaultTable = "medicines"
	timeLayout   = "2006-01-02 15:04:05"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var recordColumns = []string{
	"external_id",
	"complete_name",
	"brand_name",
	"generic_name",
	"pack_size",
	"listing_price",
	"listing_original_price",
	"detail_price",
	"detail_original_price",
	"generic_ref_link",
	"drug_external_link",
	"image_path",
}

// Config locates the database file.
type Config struct {
	Path  string
	Table string
}

// Store implements medicine.Store on SQLite through sqlx.
type Store struct {
	db    *sqlx.DB
	table string
}

// Open creates the parent directory, connects and pings the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	store, err := NewWithDB(db, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an existing connection (primarily for testing).
func NewWithDB(db *sqlx.DB, table string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{db: db, table: table}, nil
}

// Close releases the connection.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return nil
}

// EnsureSchema creates the medicine table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	complete_name TEXT,
	brand_name TEXT,
	generic_name TEXT,
	pack_size TEXT,
	listing_price REAL,
	listing_original_price REAL,
	detail_price REAL,
	detail_original_price REAL,
	generic_ref_link TEXT,
	drug_external_link TEXT NOT NULL,
	image_path TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Exists reports whether externalID has been persisted.
func (s *Store) Exists(ctx context.Context, externalID string) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").
		From(s.table).
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, fmt.Errorf("check medicine %s: %w", externalID, err)
	}
	return n > 0, nil
}

// Insert writes record once. An existing external id yields medicine.ErrDuplicate.
func (s *Store) Insert(ctx context.Context, record medicine.Record) (int64, error) {
	if record.ExternalID == "" {
		return 0, fmt.Errorf("external id is required")
	}
	query, args, err := sq.Insert(s.table).
		Options("OR IGNORE").
		Columns(recordColumns...).
		Values(
			record.ExternalID,
			record.CompleteName,
			record.BrandName,
			record.GenericName,
			record.PackSize,
			record.ListingPrice,
			record.ListingOriginalPrice,
			record.DetailPrice,
			record.DetailOriginalPrice,
			record.GenericRefLink,
			record.DrugExternalLink,
			record.ImagePath,
		).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert medicine %s: %w", record.ExternalID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert medicine %s: %w", record.ExternalID, err)
	}
	if affected == 0 {
		return 0, medicine.ErrDuplicate
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert medicine %s: %w", record.ExternalID, err)
	}
	return id, nil
}

// UpdateImagePath records the stored image filename for externalID.
func (s *Store) UpdateImagePath(ctx context.Context, externalID, filename string) error {
	query, args, err := sq.Update(s.table).
		Set("image_path", filename).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update image path for %s: %w", externalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update image path for %s: %w", externalID, medicine.ErrNotFound)
	}
	return nil
}

// Statistics summarizes the persisted records.
func (s *Store) Statistics(ctx context.Context) (medicine.Statistics, error) {
	query, args, err := sq.Select(
		"COUNT(*)",
		"COUNT(image_path)",
		"COUNT(generic_name)",
		"COUNT(listing_price)",
		"COUNT(detail_price)",
		"MIN(created_at)",
		"MAX(created_at)",
	).From(s.table).ToSql()
	if err != nil {
		return medicine.Statistics{}, fmt.Errorf("build statistics query: %w", err)
	}

	var (
		stats       medicine.Statistics
		first, last sql.NullString
	)
	err = s.db.QueryRowxContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.WithImages,
		&stats.WithGenericNames,
		&stats.WithListingPrices,
		&stats.WithDetailPrices,
		&first,
		&last,
	)
	if err != nil {
		return medicine.Statistics{}, fmt.Errorf("query statistics: %w", err)
	}
	stats.FirstRecord = parseTimestamp(first)
	stats.LastRecord = parseTimestamp(last)
	return stats, nil
}

// parseTimestamp reads SQLite's CURRENT_TIMESTAMP text; aggregates lose the
// column type so the driver hands back a string.
func parseTimestamp(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, v.String); err == nil {
			return &ts
		}
	}
	return nil
}
