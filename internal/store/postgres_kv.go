package store

import (
	"context"
	"database/sql"
	"embed"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // database/sql driver for migrations
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

const (
	MaxConns        = 10
	MinConns        = 2
	MaxConnLifetime = 10 * time.Minute
	MaxConnIdleTime = 5 * time.Minute
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresKV stores records in the kv_records table.
//
// Every row carries a version. A Put of a key this instance has read before
// only succeeds if the row still has the version that was read, so two
// processes sharing one database cannot silently overwrite each other's
// ratchet state.
type PostgresKV struct {
	pool     *pgxpool.Pool
	versions sync.Map // key -> int64
}

// NewPostgresPool parses databaseURL, configures and pings a pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres config")
	}
	config.MaxConns = MaxConns
	config.MinConns = MinConns
	config.MaxConnLifetime = MaxConnLifetime
	config.MaxConnIdleTime = MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return pool, nil
}

// Migrate applies the embedded schema migrations with goose.
func Migrate(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return errors.Wrap(err, "open migration connection")
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

func NewPostgresKV(pool *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{pool: pool}
}

func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value   []byte
		version int64
	)
	err := p.pool.QueryRow(ctx,
		`SELECT value, version FROM kv_records WHERE key = $1`, key,
	).Scan(&value, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		p.versions.Delete(key)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "select %s", key)
	}
	p.versions.Store(key, version)
	return value, nil
}

func (p *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	seen, ok := p.versions.Load(key)
	if !ok {
		var version int64
		err := p.pool.QueryRow(ctx,
			`INSERT INTO kv_records (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE
			 SET value = EXCLUDED.value, version = kv_records.version + 1, updated_at = NOW()
			 RETURNING version`,
			key, value,
		).Scan(&version)
		if err != nil {
			return errors.Wrapf(err, "upsert %s", key)
		}
		p.versions.Store(key, version)
		return nil
	}

	var version int64
	err := p.pool.QueryRow(ctx,
		`UPDATE kv_records
		 SET value = $2, version = version + 1, updated_at = NOW()
		 WHERE key = $1 AND version = $3
		 RETURNING version`,
		key, value, seen.(int64),
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		p.versions.Delete(key)
		return errors.Wrapf(ErrVersionConflict, "update %s", key)
	}
	if err != nil {
		return errors.Wrapf(err, "update %s", key)
	}
	p.versions.Store(key, version)
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM kv_records WHERE key = $1`, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	p.versions.Delete(key)
	return nil
}

func (p *PostgresKV) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key FROM kv_records WHERE left(key, length($1::text)) = $1::text ORDER BY key COLLATE "C"`, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "scan key")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate keys")
	}
	return keys, nil
}

func (p *PostgresKV) Close() error {
	p.pool.Close()
	return nil
}
