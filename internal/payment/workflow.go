package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/shared/store"
	"github.com/radieske/bolao-facil/pkg/contracts/events"
)

var (
	ErrInvalidDecision   = errors.New("invalid payment decision")
	ErrPartialGroupWrite = errors.New("partial group write")
	ErrNoBets            = errors.New("no bets for invite")
)

const announceTimeout = 2 * time.Second

// Ledger é o subconjunto do livro de apostas usado pelo fluxo de pagamento
type Ledger interface {
	ByInvite(ctx context.Context, inviteID string) ([]bets.Bet, error)
	ByCampaign(ctx context.Context, campaignID string, status bets.PaymentStatus) ([]bets.Bet, error)
	ByPaymentStatus(ctx context.Context, status bets.PaymentStatus) ([]bets.Bet, error)
	SetPaymentStatus(ctx context.Context, betID string, status bets.PaymentStatus) (bets.Bet, bool, error)
	ApplyGroupDecision(ctx context.Context, inviteID string, decision bets.PaymentStatus) (bets.GroupWrite, error)
}

// Publisher publica decisões no Kafka
type Publisher interface {
	PublishPaymentDecided(ctx context.Context, e events.PaymentDecided) error
}

// Feed repassa eventos ao painel em tempo real (Redis Pub/Sub → WebSocket)
type Feed interface {
	PublishFeed(ctx context.Context, msg events.FeedMessage) error
}

// Decision é o resultado de uma decisão de pagamento
type Decision struct {
	DecisionID     string             `json:"decisionId"`
	InviteID       string             `json:"inviteId,omitempty"`
	BetID          string             `json:"betId,omitempty"`
	Status         bets.PaymentStatus `json:"status"`
	Affected       int                `json:"affected"`
	AlreadyInState int                `json:"alreadyInState"`
	BetIDs         []string           `json:"betIds"`
}

// Workflow conduz a aprovação manual de pagamentos: pending → approved | rejected.
// Decisões de grupo seguem a saga: intent gravado no Postgres, fan-out atômico
// no Redis, intent fechado. Callbacks OnX alimentam as métricas.
type Workflow struct {
	Log       *zap.Logger
	Ledger    Ledger
	Intents   IntentStore
	Publisher Publisher // opcional
	Feed      Feed      // opcional

	Now   func() time.Time
	NewID func() string

	OnDecision     func(outcome string) // approved | rejected | noop | conflict | error
	OnPartialWrite func()
	OnReconciled   func(result string) // completed | aborted | failed
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Workflow) newID() string {
	if w.NewID != nil {
		return w.NewID()
	}
	return uuid.NewString()
}

func (w *Workflow) outcome(o string) {
	if w.OnDecision != nil {
		w.OnDecision(o)
	}
}

// ListPendingGroups agrupa as apostas pendentes por convite. Com campaignID
// vazio usa o índice global de status (modo legado de campanha única).
func (w *Workflow) ListPendingGroups(ctx context.Context, campaignID string) ([]InviteGroup, error) {
	var (
		pending []bets.Bet
		err     error
	)
	if campaignID != "" {
		pending, err = w.Ledger.ByCampaign(ctx, campaignID, bets.PaymentPending)
	} else {
		pending, err = w.Ledger.ByPaymentStatus(ctx, bets.PaymentPending)
	}
	if err != nil {
		return nil, err
	}
	return GroupByInvite(pending), nil
}

// GroupForInvite devolve o grupo do convite com todas as apostas, qualquer status
func (w *Workflow) GroupForInvite(ctx context.Context, inviteID string) (InviteGroup, error) {
	list, err := w.Ledger.ByInvite(ctx, inviteID)
	if err != nil {
		return InviteGroup{}, err
	}
	if len(list) == 0 {
		return InviteGroup{}, ErrNoBets
	}
	return GroupByInvite(list)[0], nil
}

// DecideGroup aplica a decisão a todas as apostas do convite, tudo ou nada.
//
// Apostas já no status pedido contam em AlreadyInState; uma aposta no estado
// terminal oposto devolve bets.ErrTerminalState sem escrita. Convite sem apostas
// é no-op com Affected=0. Se o Redis falhar no meio, o grupo é relido: estado
// misto sai como ErrPartialGroupWrite e o intent fica open para o reconciliador.
func (w *Workflow) DecideGroup(ctx context.Context, inviteID string, decision bets.PaymentStatus) (Decision, error) {
	if inviteID == "" || !decision.Terminal() {
		return Decision{}, fmt.Errorf("%w: inviteId and a status of approved or rejected are required", ErrInvalidDecision)
	}

	intent := Intent{ID: w.newID(), InviteID: inviteID, Decision: decision, Status: IntentOpen}
	if err := w.Intents.Open(ctx, intent); err != nil {
		w.outcome("error")
		return Decision{}, store.Unavailable("payment.open_intent", err)
	}

	// foto dos pendentes antes do fan-out, para detectar escrita parcial
	before, err := w.Ledger.ByInvite(ctx, inviteID)
	if err != nil {
		w.outcome("error")
		_ = w.Intents.RecordAttempt(ctx, intent.ID, err.Error())
		return Decision{}, err
	}

	gw, err := w.Ledger.ApplyGroupDecision(ctx, inviteID, decision)
	if err != nil {
		return Decision{}, w.groupFailed(ctx, intent, pendingIDs(before), err)
	}

	if err := w.Intents.Finish(ctx, intent.ID, IntentCompleted, len(gw.Changed), ""); err != nil {
		// a decisão já está no Redis; o reconciliador reaplica como no-op
		w.Log.Warn("finish intent failed", zap.String("intentId", intent.ID), zap.Error(err))
	}

	d := Decision{
		DecisionID:     intent.ID,
		InviteID:       inviteID,
		Status:         decision,
		Affected:       len(gw.Changed),
		AlreadyInState: gw.AlreadyInState,
		BetIDs:         gw.BetIDs,
	}
	if d.Affected == 0 {
		w.outcome("noop")
	} else {
		w.outcome(string(decision))
	}
	w.Log.Info("payment group decided",
		zap.String("inviteId", inviteID),
		zap.String("status", string(decision)),
		zap.Int("affected", d.Affected),
		zap.Int("alreadyInState", d.AlreadyInState),
	)
	if d.Affected > 0 {
		w.announce(ctx, d)
	}
	return d, nil
}

// groupFailed trata a falha do fan-out: aborta o intent em conflito de estado,
// ou registra a tentativa e verifica se o grupo ficou misto.
func (w *Workflow) groupFailed(ctx context.Context, intent Intent, wasPending map[string]bool, cause error) error {
	if errors.Is(cause, bets.ErrTerminalState) {
		w.outcome("conflict")
		if err := w.Intents.Finish(ctx, intent.ID, IntentAborted, 0, cause.Error()); err != nil {
			w.Log.Warn("abort intent failed", zap.String("intentId", intent.ID), zap.Error(err))
		}
		return cause
	}

	w.outcome("error")
	if err := w.Intents.RecordAttempt(ctx, intent.ID, cause.Error()); err != nil {
		w.Log.Warn("record intent attempt failed", zap.String("intentId", intent.ID), zap.Error(err))
	}

	group, err := w.Ledger.ByInvite(ctx, intent.InviteID)
	if err != nil {
		// sem como verificar; o intent open cobre a reconciliação
		return cause
	}
	if isMixed(group, wasPending, intent.Decision) {
		if w.OnPartialWrite != nil {
			w.OnPartialWrite()
		}
		w.Log.Error("partial group write",
			zap.String("inviteId", intent.InviteID),
			zap.String("decision", string(intent.Decision)),
			zap.String("intentId", intent.ID),
			zap.Error(cause),
		)
		return fmt.Errorf("%w: invite %s: %w", ErrPartialGroupWrite, intent.InviteID, cause)
	}
	return cause
}

// DecideBet é o caminho de exceção: decide uma aposta isolada, com a mesma guarda terminal
func (w *Workflow) DecideBet(ctx context.Context, betID string, decision bets.PaymentStatus) (Decision, error) {
	if betID == "" || !decision.Terminal() {
		return Decision{}, fmt.Errorf("%w: betId and a status of approved or rejected are required", ErrInvalidDecision)
	}

	b, changed, err := w.Ledger.SetPaymentStatus(ctx, betID, decision)
	if err != nil {
		switch {
		case errors.Is(err, bets.ErrTerminalState):
			w.outcome("conflict")
		case !errors.Is(err, bets.ErrNotFound):
			w.outcome("error")
		}
		return Decision{}, err
	}

	d := Decision{
		DecisionID: w.newID(),
		InviteID:   b.InviteID,
		BetID:      betID,
		Status:     decision,
		BetIDs:     []string{betID},
	}
	if changed {
		d.Affected = 1
		w.outcome(string(decision))
		w.announce(ctx, d)
	} else {
		d.AlreadyInState = 1
		w.outcome("noop")
	}
	w.Log.Info("payment bet decided",
		zap.String("betId", betID),
		zap.String("status", string(decision)),
		zap.Bool("changed", changed),
	)
	return d, nil
}

// announce publica a decisão (Kafka + feed). Falhas só geram log e a
// publicação não segura a resposta além de announceTimeout.
func (w *Workflow) announce(ctx context.Context, d Decision) {
	ctx, cancel := context.WithTimeout(ctx, announceTimeout)
	defer cancel()

	ev := events.PaymentDecided{
		DecisionID:     d.DecisionID,
		InviteID:       d.InviteID,
		BetID:          d.BetID,
		Status:         string(d.Status),
		Affected:       d.Affected,
		AlreadyInState: d.AlreadyInState,
		BetIDs:         d.BetIDs,
		TsUnixMs:       w.now().UnixMilli(),
	}
	if w.Publisher != nil {
		if err := w.Publisher.PublishPaymentDecided(ctx, ev); err != nil {
			w.Log.Warn("publish payment_decided failed", zap.String("decisionId", d.DecisionID), zap.Error(err))
		}
	}
	if w.Feed != nil {
		if err := w.Feed.PublishFeed(ctx, events.FeedMessage{Type: "payment_decided", Payload: ev}); err != nil {
			w.Log.Warn("feed publish failed", zap.String("decisionId", d.DecisionID), zap.Error(err))
		}
	}
}

// isMixed: entre as apostas que estavam pending, parte foi decidida e parte não
func isMixed(group []bets.Bet, wasPending map[string]bool, decision bets.PaymentStatus) bool {
	var decided, pending bool
	for _, b := range group {
		if !wasPending[b.ID] {
			continue
		}
		switch b.PaymentStatus {
		case decision:
			decided = true
		case bets.PaymentPending:
			pending = true
		}
	}
	return decided && pending
}

func pendingIDs(list []bets.Bet) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, b := range list {
		if b.PaymentStatus == bets.PaymentPending {
			out[b.ID] = true
		}
	}
	return out
}
