// Package postgres provides the Postgres-backed catalog writer.
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

	"github.com/sudan-digital-archive/archive-api/internal/archive"
	"github.com/sudan-digital-archive/archive-api/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Catalog writes archived records into Postgres.
type Catalog struct {
	pool  rowQuerier
	table string
}

// New creates a Postgres-backed Catalog using the provided config.
func New(ctx context.Context, cfg Config) (*Catalog, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "archives"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Catalog{pool: pool, table: table}, nil
}

// NewWithPool constructs a Catalog from an existing pool (primarily for testing).
func NewWithPool(pool rowQuerier, table string) (*Catalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "archives"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Catalog{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (c *Catalog) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

// WriteRecord inserts one archived record and returns its id. The insert
// is a single statement, so it either lands fully or not at all. Unique
// violations surface as catalog.ErrDuplicate.
func (c *Catalog) WriteRecord(ctx context.Context, record archive.ArchivedRecord) (int64, error) {
	if c == nil || c.pool == nil {
		return 0, fmt.Errorf("catalog is not configured")
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			url, language, title, description, subjects, is_private,
			crawl_id, job_run_id, storage_key, crawl_status, requested_by, record_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, c.table)

	var id int64
	err := c.pool.QueryRow(ctx, query,
		record.URL,
		string(record.Language),
		record.Title,
		nullable(record.Description),
		subjectsParam(record.Subjects),
		record.Private,
		record.CrawlID,
		record.JobRunID,
		record.StorageKey,
		record.Status,
		record.RequestedBy,
		record.RecordDate,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("insert archive record: %w", catalog.ErrDuplicate)
		}
		return 0, fmt.Errorf("insert archive record: %w", err)
	}
	return id, nil
}

// GetRecord reads one archived record by id.
func (c *Catalog) GetRecord(ctx context.Context, id int64) (archive.ArchivedRecord, error) {
	if c == nil || c.pool == nil {
		return archive.ArchivedRecord{}, fmt.Errorf("catalog is not configured")
	}
	query := fmt.Sprintf(`
		SELECT url, language, title, description, subjects, is_private,
			crawl_id, job_run_id, storage_key, crawl_status, requested_by, record_date
		FROM %s WHERE id = $1
	`, c.table)

	var (
		record      archive.ArchivedRecord
		language    string
		description *string
		subjects    []int32
	)
	err := c.pool.QueryRow(ctx, query, id).Scan(
		&record.URL,
		&language,
		&record.Title,
		&description,
		&subjects,
		&record.Private,
		&record.CrawlID,
		&record.JobRunID,
		&record.StorageKey,
		&record.Status,
		&record.RequestedBy,
		&record.RecordDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return archive.ArchivedRecord{}, catalog.ErrNotFound
		}
		return archive.ArchivedRecord{}, fmt.Errorf("select archive record: %w", err)
	}
	record.Language = archive.Language(language)
	if description != nil {
		record.Description = *description
	}
	record.Subjects = make([]int, len(subjects))
	for i, s := range subjects {
		record.Subjects[i] = int(s)
	}
	return record, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func subjectsParam(subjects []int) []int32 {
	out := make([]int32, len(subjects))
	for i, s := range subjects {
		out[i] = int32(s)
	}
	return out
}
