package payment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/shared/store"
)

const reconcileBatch = 100

// ReconcileReport resume uma passada do reconciliador
type ReconcileReport struct {
	Scanned   int
	Completed int
	Aborted   int
	Failed    int
}

// Reconcile reaplica os intents open mais antigos que grace. ApplyGroupDecision
// é idempotente: apostas já decididas contam como AlreadyInState.
func (w *Workflow) Reconcile(ctx context.Context, grace time.Duration) (ReconcileReport, error) {
	var rep ReconcileReport

	open, err := w.Intents.ListOpen(ctx, w.now().Add(-grace), reconcileBatch)
	if err != nil {
		return rep, store.Unavailable("payment.list_intents", err)
	}

	for _, in := range open {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		rep.Scanned++
		log := w.Log.With(zap.String("intentId", in.ID), zap.String("inviteId", in.InviteID))

		gw, err := w.Ledger.ApplyGroupDecision(ctx, in.InviteID, in.Decision)
		switch {
		case err == nil:
			rep.Completed++
			w.reconciled("completed")
			if ferr := w.Intents.Finish(ctx, in.ID, IntentCompleted, len(gw.Changed), ""); ferr != nil {
				log.Warn("finish intent failed", zap.Error(ferr))
			}
			log.Info("intent reconciled", zap.Int("affected", len(gw.Changed)), zap.Int("attempts", in.Attempts+1))
			if len(gw.Changed) > 0 {
				w.announce(ctx, Decision{
					DecisionID:     in.ID,
					InviteID:       in.InviteID,
					Status:         in.Decision,
					Affected:       len(gw.Changed),
					AlreadyInState: gw.AlreadyInState,
					BetIDs:         gw.BetIDs,
				})
			}
		case errors.Is(err, bets.ErrTerminalState), errors.Is(err, bets.ErrInvalidBet):
			rep.Aborted++
			w.reconciled("aborted")
			if ferr := w.Intents.Finish(ctx, in.ID, IntentAborted, 0, err.Error()); ferr != nil {
				log.Warn("abort intent failed", zap.Error(ferr))
			}
			log.Warn("intent aborted", zap.Error(err))
		default:
			rep.Failed++
			w.reconciled("failed")
			if rerr := w.Intents.RecordAttempt(ctx, in.ID, err.Error()); rerr != nil {
				log.Warn("record intent attempt failed", zap.Error(rerr))
			}
			log.Warn("intent replay failed", zap.Error(err))
		}
	}
	return rep, nil
}

func (w *Workflow) reconciled(result string) {
	if w.OnReconciled != nil {
		w.OnReconciled(result)
	}
}

// Reconciler roda Reconcile periodicamente até o contexto ser cancelado
type Reconciler struct {
	Log      *zap.Logger
	Workflow *Workflow
	Interval time.Duration
	Grace    time.Duration
}

// Run inicia o loop; devolve ctx.Err() ao encerrar
func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	for {
		rep, err := r.Workflow.Reconcile(ctx, r.Grace)
		if err != nil && ctx.Err() == nil {
			r.Log.Warn("reconcile pass failed", zap.Error(err))
		} else if rep.Scanned > 0 {
			r.Log.Info("reconcile pass",
				zap.Int("scanned", rep.Scanned),
				zap.Int("completed", rep.Completed),
				zap.Int("aborted", rep.Aborted),
				zap.Int("failed", rep.Failed),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
