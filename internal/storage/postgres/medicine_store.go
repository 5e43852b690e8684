// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

const defaultTable = "medicines"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for medicine rows.
type Config struct {
	DSN   string
	Table string
	// MaxConns caps the pool. Zero means a single connection, which keeps the
	// crawler's footprint on the database at one session.
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store persists medicine records into Postgres.
type Store struct {
	pool  pool
	table string
}

// New connects to Postgres using cfg and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 1
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the medicine table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL(s.table)); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// schemaDDL keeps text columns unbounded so long scraped values never
// reject an insert.
func schemaDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	complete_name TEXT,
	brand_name TEXT,
	generic_name TEXT,
	pack_size TEXT,
	listing_price NUMERIC(10,2),
	listing_original_price NUMERIC(10,2),
	detail_price NUMERIC(10,2),
	detail_original_price NUMERIC(10,2),
	generic_ref_link TEXT,
	drug_external_link TEXT NOT NULL,
	image_path TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Exists reports whether a record with externalID has been persisted.
func (s *Store) Exists(ctx context.Context, externalID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE external_id = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, externalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check medicine %s: %w", externalID, err)
	}
	return exists, nil
}

// Insert writes record and returns its identity. A concurrent or repeated
// insert of the same external id yields medicine.ErrDuplicate.
func (s *Store) Insert(ctx context.Context, record medicine.Record) (int64, error) {
	if record.ExternalID == "" {
		return 0, fmt.Errorf("external id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	external_id,
	complete_name,
	brand_name,
	generic_name,
	pack_size,
	listing_price,
	listing_original_price,
	detail_price,
	detail_original_price,
	generic_ref_link,
	drug_external_link,
	image_path
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (external_id) DO NOTHING
RETURNING id`, s.table)

	args := []any{
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
	}
	var id int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, medicine.ErrDuplicate
		}
		return 0, fmt.Errorf("insert medicine %s: %w", record.ExternalID, err)
	}
	return id, nil
}

// UpdateImagePath records the stored image filename for externalID.
func (s *Store) UpdateImagePath(ctx context.Context, externalID, filename string) error {
	query := fmt.Sprintf(`UPDATE %s SET image_path = $1, updated_at = now() WHERE external_id = $2`, s.table)
	tag, err := s.pool.Exec(ctx, query, filename, externalID)
	if err != nil {
		return fmt.Errorf("update image path for %s: %w", externalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update image path for %s: %w", externalID, medicine.ErrNotFound)
	}
	return nil
}

// Statistics summarizes the persisted records.
func (s *Store) Statistics(ctx context.Context) (medicine.Statistics, error) {
	query := fmt.Sprintf(`
SELECT
	COUNT(*),
	COUNT(image_path),
	COUNT(generic_name),
	COUNT(listing_price),
	COUNT(detail_price),
	MIN(created_at),
	MAX(created_at)
FROM %s`, s.table)

	var stats medicine.Statistics
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.WithImages,
		&stats.WithGenericNames,
		&stats.WithListingPrices,
		&stats.WithDetailPrices,
		&stats.FirstRecord,
		&stats.LastRecord,
	)
	if err != nil {
		return medicine.Statistics{}, fmt.Errorf("query statistics: %w", err)
	}
	return stats, nil
}
