package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"reuse-console/internal/logging"
)

// Database stores snapshots in a Postgres table, one row per key.
type Database struct {
	DBDSN string
	DB    *sqlx.DB
}

func (ms *Database) NewStorage(ctx context.Context, DBDSN string) error {
	ms.DBDSN = DBDSN

	sqlDB, err := sql.Open("pgx", ms.DBDSN)
	if err != nil {
		logging.Logg.Error("Couldn't connect to the database with an error", "error", err)
		return err
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	ms.DB = sqlx.NewDb(sqlDB, "pgx")

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ms.DB.PingContext(pingCtx); err != nil {
		ms.DB.Close()
		return fmt.Errorf("ping db: %w", err)
	}

	if err := ms.initDBTables(ctx); err != nil {
		logging.Logg.Error("Failed to initialize DB", "error", err)
		return err
	}
	logging.Logg.Info("Database storage ready")
	return nil
}

func (ms *Database) initDBTables(ctx context.Context) error {
	_, err := ms.DB.ExecContext(ctx, `create table if not exists client_storage (
		storage_key VARCHAR(100) PRIMARY KEY,
		value       JSONB NOT NULL,
		updated_at  TIMESTAMP NOT NULL DEFAULT (now() at time zone 'utc')
	);`)
	return err
}

func (ms *Database) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := ms.DB.GetContext(ctx, &value, `SELECT value FROM client_storage WHERE storage_key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (ms *Database) Set(ctx context.Context, key string, value []byte) error {
	_, err := ms.DB.ExecContext(ctx, `
		INSERT INTO client_storage (storage_key, value, updated_at)
		VALUES ($1, $2, now() at time zone 'utc')
		ON CONFLICT (storage_key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	return err
}

func (ms *Database) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM client_storage WHERE storage_key IN (?)`, keys)
	if err != nil {
		return err
	}
	_, err = ms.DB.ExecContext(ctx, ms.DB.Rebind(query), args...)
	return err
}

func (ms *Database) Close() error {
	if ms.DB == nil {
		return nil
	}
	return ms.DB.Close()
}
