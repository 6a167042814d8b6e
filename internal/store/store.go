// Package store owns the kiosk's datastore connections: Postgres for the
// attendance ledger and redis for the cache mirror and the scan queue.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection sized for a kiosk workload and ensures
// the schema exists.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance_records (
		id           TEXT PRIMARY KEY,
		student_id   TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		attend_date  TEXT NOT NULL,
		attend_time  TEXT NOT NULL DEFAULT '',
		occurred_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		source_token TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'present'
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_dedup
		ON attendance_records(student_id, attend_date);
	CREATE INDEX IF NOT EXISTS idx_attendance_occurred
		ON attendance_records(occurred_at);

	CREATE TABLE IF NOT EXISTS students (
		id            TEXT PRIMARY KEY,
		nis           TEXT UNIQUE NOT NULL,
		name          TEXT NOT NULL,
		class         TEXT NOT NULL DEFAULT '',
		major         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS teachers (
		id            TEXT PRIMARY KEY,
		username      TEXT UNIQUE NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Redis wraps a redis client with short timeouts so cache operations never
// stall a display tick.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
