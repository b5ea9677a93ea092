package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/shared/store"
	"github.com/radieske/bolao-facil/pkg/contracts/events"
)

// memIntents é um IntentStore em memória
type memIntents struct {
	mu      sync.Mutex
	items   map[string]*Intent
	openErr error
}

func newMemIntents() *memIntents { return &memIntents{items: map[string]*Intent{}} }

func (m *memIntents) Open(_ context.Context, in Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	in.Status = IntentOpen
	in.CreatedAt = t0
	m.items[in.ID] = &in
	return nil
}

func (m *memIntents) Finish(_ context.Context, id string, status IntentStatus, affected int, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.items[id]
	if !ok {
		return ErrIntentNotFound
	}
	in.Status, in.Affected, in.LastError = status, affected, lastErr
	return nil
}

func (m *memIntents) RecordAttempt(_ context.Context, id string, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.items[id]
	if !ok {
		return ErrIntentNotFound
	}
	in.Attempts++
	in.LastError = lastErr
	return nil
}

func (m *memIntents) ListOpen(_ context.Context, before time.Time, limit int) ([]Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Intent
	for _, in := range m.items {
		if in.Status == IntentOpen && in.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, *in)
		}
	}
	return out, nil
}

func (m *memIntents) get(id string) Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

type recPublisher struct {
	decided []events.PaymentDecided
	feed    []events.FeedMessage
}

func (r *recPublisher) PublishPaymentDecided(_ context.Context, e events.PaymentDecided) error {
	r.decided = append(r.decided, e)
	return nil
}

func (r *recPublisher) PublishFeed(_ context.Context, m events.FeedMessage) error {
	r.feed = append(r.feed, m)
	return nil
}

type fixture struct {
	wf       *Workflow
	ledger   *bets.RedisLedger
	intents  *memIntents
	pub      *recPublisher
	outcomes []string
	partial  int
	mr       *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		ledger:  bets.NewRedisLedger(rdb, time.Second),
		intents: newMemIntents(),
		pub:     &recPublisher{},
		mr:      mr,
	}
	n := 0
	f.wf = &Workflow{
		Log:            zap.NewNop(),
		Ledger:         f.ledger,
		Intents:        f.intents,
		Publisher:      f.pub,
		Feed:           f.pub,
		Now:            func() time.Time { return t0.Add(time.Hour) },
		NewID:          func() string { n++; return fmt.Sprintf("dec-%d", n) },
		OnDecision:     func(o string) { f.outcomes = append(f.outcomes, o) },
		OnPartialWrite: func() { f.partial++ },
	}
	return f
}

func (f *fixture) seed(t *testing.T, list ...bets.Bet) {
	t.Helper()
	for _, b := range list {
		require.NoError(t, f.ledger.Append(context.Background(), b))
	}
}

func TestListPendingGroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := bet("z1", "inv-z", 9, 0, bets.PaymentPending, "Zé")
	other.CampaignID = "c2"
	f.seed(t,
		bet("a1", "inv-a", 2, time.Minute, bets.PaymentPending, "Ana"),
		bet("a2", "inv-a", 1, 2*time.Minute, bets.PaymentPending, "Ana"),
		bet("b1", "inv-b", 4, 0, bets.PaymentPending, ""),
		bet("c1", "inv-c", 1, 0, bets.PaymentApproved, "Caio"),
		other,
	)

	groups, err := f.wf.ListPendingGroups(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, "inv-b", groups[0].InviteID)
	require.Equal(t, "inv-a", groups[1].InviteID)
	require.Equal(t, 3, groups[1].TotalShares)

	all, err := f.wf.ListPendingGroups(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestDecideGroupApprovesWholeGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t,
		bet("a1", "inv-a", 2, 0, bets.PaymentPending, "Ana"),
		bet("a2", "inv-a", 1, time.Minute, bets.PaymentPending, "Ana"),
		bet("a3", "inv-a", 1, 2*time.Minute, bets.PaymentApproved, "Ana"),
	)

	d, err := f.wf.DecideGroup(ctx, "inv-a", bets.PaymentApproved)
	require.NoError(t, err)
	require.Equal(t, 2, d.Affected)
	require.Equal(t, 1, d.AlreadyInState)
	require.Equal(t, []string{"a1", "a2", "a3"}, d.BetIDs)

	g, err := f.wf.GroupForInvite(ctx, "inv-a")
	require.NoError(t, err)
	require.Equal(t, bets.PaymentApproved, g.PaymentStatusOverall)

	require.Equal(t, IntentCompleted, f.intents.get(d.DecisionID).Status)
	require.Equal(t, 2, f.intents.get(d.DecisionID).Affected)
	require.Len(t, f.pub.decided, 1)
	require.Equal(t, "approved", f.pub.decided[0].Status)
	require.Len(t, f.pub.feed, 1)
	require.Equal(t, []string{"approved"}, f.outcomes)
}

func TestDecideGroupOppositeTerminalIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t,
		bet("a1", "inv-a", 1, 0, bets.PaymentPending, ""),
		bet("a2", "inv-a", 1, time.Minute, bets.PaymentRejected, ""),
	)

	_, err := f.wf.DecideGroup(ctx, "inv-a", bets.PaymentApproved)
	require.ErrorIs(t, err, bets.ErrTerminalState)

	g, err := f.wf.GroupForInvite(ctx, "inv-a")
	require.NoError(t, err)
	require.Equal(t, bets.PaymentPending, g.Bets[0].PaymentStatus)
	require.Equal(t, IntentAborted, f.intents.get("dec-1").Status)
	require.Empty(t, f.pub.decided)
	require.Equal(t, []string{"conflict"}, f.outcomes)
}

func TestDecideGroupWithoutBetsIsNoop(t *testing.T) {
	f := newFixture(t)

	d, err := f.wf.DecideGroup(context.Background(), "ghost", bets.PaymentRejected)
	require.NoError(t, err)
	require.Zero(t, d.Affected)
	require.Empty(t, d.BetIDs)
	require.Equal(t, IntentCompleted, f.intents.get(d.DecisionID).Status)
	require.Empty(t, f.pub.decided)
	require.Equal(t, []string{"noop"}, f.outcomes)
}

func TestDecideGroupValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.DecideGroup(context.Background(), "inv-a", bets.PaymentPending)
	require.ErrorIs(t, err, ErrInvalidDecision)
	_, err = f.wf.DecideGroup(context.Background(), "", bets.PaymentApproved)
	require.ErrorIs(t, err, ErrInvalidDecision)
	_, err = f.wf.DecideGroup(context.Background(), "inv-a", "paid")
	require.ErrorIs(t, err, ErrInvalidDecision)
}

func TestDecideGroupIntentStoreDown(t *testing.T) {
	f := newFixture(t)
	f.seed(t, bet("a1", "inv-a", 1, 0, bets.PaymentPending, ""))
	f.intents.openErr = errors.New("pg down")

	_, err := f.wf.DecideGroup(context.Background(), "inv-a", bets.PaymentApproved)
	require.ErrorIs(t, err, store.ErrUnavailable)

	g, err := f.wf.GroupForInvite(context.Background(), "inv-a")
	require.NoError(t, err)
	require.Equal(t, bets.PaymentPending, g.PaymentStatusOverall)
}

// splitLedger simula um fan-out que grava só a primeira aposta antes de falhar
type splitLedger struct {
	*bets.RedisLedger
	cause error
}

func (s *splitLedger) ApplyGroupDecision(ctx context.Context, inviteID string, decision bets.PaymentStatus) (bets.GroupWrite, error) {
	list, err := s.ByInvite(ctx, inviteID)
	if err != nil {
		return bets.GroupWrite{}, err
	}
	if _, _, err := s.SetPaymentStatus(ctx, list[0].ID, decision); err != nil {
		return bets.GroupWrite{}, err
	}
	return bets.GroupWrite{}, s.cause
}

func TestDecideGroupDetectsPartialWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t,
		bet("a1", "inv-a", 1, 0, bets.PaymentPending, ""),
		bet("a2", "inv-a", 1, time.Minute, bets.PaymentPending, ""),
	)
	core, logs := observer.New(zap.ErrorLevel)
	f.wf.Log = zap.New(core)
	f.wf.Ledger = &splitLedger{RedisLedger: f.ledger, cause: store.Unavailable("exec", errors.New("i/o timeout"))}

	_, err := f.wf.DecideGroup(ctx, "inv-a", bets.PaymentApproved)
	require.ErrorIs(t, err, ErrPartialGroupWrite)
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Equal(t, 1, f.partial)
	require.Equal(t, 1, logs.FilterMessage("partial group write").Len())

	in := f.intents.get("dec-1")
	require.Equal(t, IntentOpen, in.Status)
	require.Equal(t, 1, in.Attempts)

	// o reconciliador completa o grupo
	f.wf.Ledger = f.ledger
	f.wf.Now = func() time.Time { return t0.Add(24 * time.Hour) }
	rep, err := f.wf.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, ReconcileReport{Scanned: 1, Completed: 1}, rep)

	g, err := f.wf.GroupForInvite(ctx, "inv-a")
	require.NoError(t, err)
	require.Equal(t, bets.PaymentApproved, g.PaymentStatusOverall)
	require.Equal(t, IntentCompleted, f.intents.get("dec-1").Status)
}

func TestDecideGroupStoreFailureWithoutMixedState(t *testing.T) {
	f := newFixture(t)
	f.seed(t, bet("a1", "inv-a", 1, 0, bets.PaymentPending, ""))
	cause := store.Unavailable("exec", errors.New("timeout"))
	f.wf.Ledger = &failingApply{RedisLedger: f.ledger, err: cause}

	_, err := f.wf.DecideGroup(context.Background(), "inv-a", bets.PaymentApproved)
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.NotErrorIs(t, err, ErrPartialGroupWrite)
	require.Zero(t, f.partial)
	require.Equal(t, IntentOpen, f.intents.get("dec-1").Status)
}

type failingApply struct {
	*bets.RedisLedger
	err error
}

func (f *failingApply) ApplyGroupDecision(context.Context, string, bets.PaymentStatus) (bets.GroupWrite, error) {
	return bets.GroupWrite{}, f.err
}

func TestDecideBet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t,
		bet("a1", "inv-a", 1, 0, bets.PaymentPending, ""),
		bet("a2", "inv-a", 1, time.Minute, bets.PaymentPending, ""),
	)

	d, err := f.wf.DecideBet(ctx, "a1", bets.PaymentRejected)
	require.NoError(t, err)
	require.Equal(t, 1, d.Affected)
	require.Equal(t, "inv-a", d.InviteID)

	d, err = f.wf.DecideBet(ctx, "a1", bets.PaymentRejected)
	require.NoError(t, err)
	require.Equal(t, 1, d.AlreadyInState)

	_, err = f.wf.DecideBet(ctx, "a1", bets.PaymentApproved)
	require.ErrorIs(t, err, bets.ErrTerminalState)

	_, err = f.wf.DecideBet(ctx, "nope", bets.PaymentApproved)
	require.ErrorIs(t, err, bets.ErrNotFound)

	// grupo misto por override: pending vence, depois rejected
	g, err := f.wf.GroupForInvite(ctx, "inv-a")
	require.NoError(t, err)
	require.Equal(t, bets.PaymentPending, g.PaymentStatusOverall)

	_, err = f.wf.DecideBet(ctx, "a2", bets.PaymentApproved)
	require.NoError(t, err)
	g, err = f.wf.GroupForInvite(ctx, "inv-a")
	require.NoError(t, err)
	require.Equal(t, bets.PaymentRejected, g.PaymentStatusOverall)
}

func TestGroupForInviteWithoutBets(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.GroupForInvite(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNoBets)
}

func TestReconcileAbortsOnTerminalConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, bet("a1", "inv-a", 1, 0, bets.PaymentRejected, ""))
	require.NoError(t, f.intents.Open(ctx, Intent{ID: "old", InviteID: "inv-a", Decision: bets.PaymentApproved}))

	results := []string{}
	f.wf.OnReconciled = func(r string) { results = append(results, r) }

	rep, err := f.wf.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, ReconcileReport{Scanned: 1, Aborted: 1}, rep)
	require.Equal(t, IntentAborted, f.intents.get("old").Status)
	require.Equal(t, []string{"aborted"}, results)
}

func TestReconcileRespectsGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.intents.Open(ctx, Intent{ID: "fresh", InviteID: "inv-a", Decision: bets.PaymentApproved}))

	f.wf.Now = func() time.Time { return t0.Add(10 * time.Second) }
	rep, err := f.wf.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	require.Zero(t, rep.Scanned)
	require.Equal(t, IntentOpen, f.intents.get("fresh").Status)
}

func TestReconcilerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{Log: zap.NewNop(), Workflow: f.wf, Interval: 10 * time.Millisecond, Grace: time.Minute}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
