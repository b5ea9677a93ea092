package payment

import (
	"context"
	"time"

	"github.com/radieske/bolao-facil/internal/bets"
)

type IntentStatus string

const (
	IntentOpen      IntentStatus = "open"
	IntentCompleted IntentStatus = "completed"
	IntentAborted   IntentStatus = "aborted" // decisão recusada pela guarda de estado terminal
)

// Intent é o registro da decisão do operador, gravado antes do fan-out no Redis.
// Enquanto estiver open, o reconciliador reaplica a decisão (idempotente).
type Intent struct {
	ID        string
	InviteID  string
	BetID     string
	Decision  bets.PaymentStatus
	Status    IntentStatus
	Affected  int
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IntentStore persiste os intents da saga de decisão
type IntentStore interface {
	Open(ctx context.Context, in Intent) error
	Finish(ctx context.Context, id string, status IntentStatus, affected int, lastErr string) error
	RecordAttempt(ctx context.Context, id string, lastErr string) error
	ListOpen(ctx context.Context, createdBefore time.Time, limit int) ([]Intent, error)
}
