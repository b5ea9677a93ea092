package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/shared/store"
)

var ErrIntentNotFound = errors.New("intent not found")

// PostgresIntents implementa IntentStore sobre a tabela payment_intents.
// Toda chamada ao banco roda sob timeout.
type PostgresIntents struct {
	db      *sql.DB
	timeout store.Timeout
	now     func() time.Time
}

func NewPostgresIntents(db *sql.DB, timeout time.Duration) *PostgresIntents {
	return &PostgresIntents{db: db, timeout: store.Timeout(timeout), now: time.Now}
}

// Open grava o intent. Reabrir o mesmo id é no-op (ON CONFLICT).
func (p *PostgresIntents) Open(ctx context.Context, in Intent) error {
	ctx, cancel := p.timeout.Context(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payment_intents (id, invite_id, bet_id, decision, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'open',$5,$5)
		ON CONFLICT (id) DO NOTHING`,
		in.ID, in.InviteID, in.BetID, string(in.Decision), p.now().UTC())
	if err != nil {
		return fmt.Errorf("open intent %s: %w", in.ID, err)
	}
	return nil
}

// Finish fecha o intent (completed ou aborted)
func (p *PostgresIntents) Finish(ctx context.Context, id string, status IntentStatus, affected int, lastErr string) error {
	ctx, cancel := p.timeout.Context(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, `
		UPDATE payment_intents
		   SET status=$2, affected=$3, last_error=$4, updated_at=$5
		 WHERE id=$1`,
		id, string(status), affected, lastErr, p.now().UTC())
	if err != nil {
		return fmt.Errorf("finish intent %s: %w", id, err)
	}
	return mustAffect(res, id)
}

// RecordAttempt conta uma tentativa falha, mantendo o intent open
func (p *PostgresIntents) RecordAttempt(ctx context.Context, id string, lastErr string) error {
	ctx, cancel := p.timeout.Context(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, `
		UPDATE payment_intents
		   SET attempts = attempts + 1, last_error=$2, updated_at=$3
		 WHERE id=$1`,
		id, lastErr, p.now().UTC())
	if err != nil {
		return fmt.Errorf("record intent attempt %s: %w", id, err)
	}
	return mustAffect(res, id)
}

// ListOpen devolve os intents abertos criados antes de createdBefore, mais antigos primeiro
func (p *PostgresIntents) ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]Intent, error) {
	ctx, cancel := p.timeout.Context(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, invite_id, bet_id, decision, status, affected, attempts, last_error, created_at, updated_at
		  FROM payment_intents
		 WHERE status='open' AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`, createdBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list open intents: %w", err)
	}
	defer rows.Close()

	var out []Intent
	for rows.Next() {
		var (
			in               Intent
			decision, status string
		)
		if err := rows.Scan(&in.ID, &in.InviteID, &in.BetID, &decision, &status,
			&in.Affected, &in.Attempts, &in.LastError, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		in.Decision = bets.PaymentStatus(decision)
		in.Status = IntentStatus(status)
		out = append(out, in)
	}
	return out, rows.Err()
}

func mustAffect(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	return nil
}
