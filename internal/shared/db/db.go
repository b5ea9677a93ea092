package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func ConnectPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// schema contém as tabelas usadas pela saga de decisão de pagamento.
// Apostas e campanhas vivem no Redis; aqui ficam só os intents.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS payment_intents (
		id          TEXT PRIMARY KEY,
		invite_id   TEXT NOT NULL,
		bet_id      TEXT NOT NULL DEFAULT '',
		decision    TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'open',
		affected    INTEGER NOT NULL DEFAULT 0,
		attempts    INTEGER NOT NULL DEFAULT 0,
		last_error  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_intents_open ON payment_intents (status, created_at)`,
}

// EnsureSchema aplica o DDL idempotente no startup
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
