// Package postgres — queries.go содержит миграции схемы и общие утилиты запросов.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

// Migrate создаёт таблицу schema_migrations и применяет все миграции по порядку.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ошибка создания таблицы миграций: %w", err)
	}

	for _, m := range migrations {
		applied, err := ExecMigrationSQL(ctx, pool, m.version, m.sql)
		if err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		if applied {
			log.WithField("version", m.version).Info("Миграция применена")
		}
	}
	return nil
}

// ExecMigrationSQL выполняет одну миграцию в транзакции.
// Возвращает false, если миграция уже была применена.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	return true, tx.Commit(ctx)
}

// mapError переводит ошибки pgx в ошибки хранилища.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", what, storage.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, migration001Tracker},
	{2, migration002Contributions},
	{3, migration003Vault},
	{4, migration004Admin},
}

var migration001Tracker = `
CREATE TABLE IF NOT EXISTS tracker (
    id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    admin TEXT NOT NULL,
    current_period BIGINT NOT NULL DEFAULT 0,
    period_duration BIGINT NOT NULL,
    total_points_all_time BIGINT NOT NULL DEFAULT 0,
    minimum_points_threshold BIGINT NOT NULL,
    reserve_pool_amount BIGINT NOT NULL DEFAULT 0,
    tokens_per_period BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS periods (
    number BIGINT PRIMARY KEY,
    start_time BIGINT NOT NULL,
    end_time BIGINT NOT NULL,
    total_points BIGINT NOT NULL DEFAULT 0,
    tokens_allocated BIGINT NOT NULL,
    tokens_distributed BIGINT NOT NULL DEFAULT 0,
    is_finalized BOOLEAN NOT NULL DEFAULT FALSE,
    distribution_processed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP DEFAULT NOW(),
    CHECK (end_time > start_time),
    CHECK (tokens_distributed <= tokens_allocated)
);
`

var migration002Contributions = `
CREATE TABLE IF NOT EXISTS contributors (
    authority TEXT PRIMARY KEY,
    total_points_all_time BIGINT NOT NULL DEFAULT 0,
    current_period_points BIGINT NOT NULL DEFAULT 0,
    last_claimed_period BIGINT NOT NULL DEFAULT -1,
    contributions UUID[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS contributions (
    id UUID PRIMARY KEY,
    contributor TEXT NOT NULL REFERENCES contributors(authority),
    period BIGINT NOT NULL REFERENCES periods(number),
    category SMALLINT NOT NULL,
    severity SMALLINT NOT NULL,
    points SMALLINT NOT NULL CHECK (points BETWEEN 1 AND 10),
    submitted_at BIGINT NOT NULL,
    description VARCHAR(100) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    seq BIGSERIAL
);
CREATE INDEX IF NOT EXISTS idx_contributions_contributor ON contributions(contributor);
CREATE INDEX IF NOT EXISTS idx_contributions_period_status ON contributions(period, status);
`

var migration003Vault = `
CREATE TABLE IF NOT EXISTS vault_accounts (
    account TEXT PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    total_in BIGINT NOT NULL DEFAULT 0,
    total_out BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS vault_transfers (
    id BIGSERIAL PRIMARY KEY,
    from_account TEXT,
    to_account TEXT NOT NULL,
    amount BIGINT NOT NULL CHECK (amount > 0),
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS settlements (
    id BIGSERIAL PRIMARY KEY,
    kind VARCHAR(16) NOT NULL,
    period BIGINT NOT NULL,
    from_account TEXT NOT NULL,
    to_account TEXT NOT NULL,
    amount BIGINT NOT NULL,
    created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_settlements_from ON settlements(from_account);
CREATE INDEX IF NOT EXISTS idx_settlements_to ON settlements(to_account);
`

var migration004Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMP DEFAULT NOW(),
    expires_at TIMESTAMP,
    last_activity TIMESTAMP DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT,
    attempt_time TIMESTAMP DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
`
