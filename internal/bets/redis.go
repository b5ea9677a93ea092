package bets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/bolao-facil/internal/shared/store"
)

const maxTxRetries = 3

func betKey(id string) string                 { return "bet:" + id }
func inviteIndex(inviteID string) string      { return "bets:invite:" + inviteID }
func campaignIndex(campaignID string) string  { return "bets:campaign:" + campaignID }
func statusIndex(status PaymentStatus) string { return "bets:status:" + string(status) }

// reader é o subconjunto comum a *redis.Client e *redis.Tx usado nas leituras
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// abort marca um erro de domínio devolvido de dentro da transação:
// sai como está, sem retry e sem virar store.ErrUnavailable
type abort struct{ err error }

func (a abort) Error() string { return a.err.Error() }
func (a abort) Unwrap() error { return a.err }

// GroupWrite descreve o resultado de uma decisão aplicada a todas as apostas de um convite
type GroupWrite struct {
	BetIDs         []string // todas as apostas do grupo, na ordem de criação
	Changed        []string // apostas que saíram de pending nesta chamada
	AlreadyInState int      // apostas que já estavam no status pedido
}

// RedisLedger guarda apostas em bet:{id} e mantém os índices por convite,
// campanha e status de pagamento. Toda escrita é WATCH/MULTI/EXEC: índices e
// documentos mudam juntos ou não mudam.
type RedisLedger struct {
	rdb     *redis.Client
	timeout store.Timeout
	now     func() time.Time

	// beforeCommit roda dentro da transação, antes do EXEC (testes de concorrência)
	beforeCommit func(ctx context.Context)
}

func NewRedisLedger(rdb *redis.Client, timeout time.Duration) *RedisLedger {
	return &RedisLedger{rdb: rdb, timeout: store.Timeout(timeout), now: time.Now}
}

// WithClock troca o relógio usado em updatedAt (testes)
func (l *RedisLedger) WithClock(now func() time.Time) *RedisLedger {
	l.now = now
	return l
}

// Append grava (ou sobrescreve) uma aposta, last-writer-wins por id
func (l *RedisLedger) Append(ctx context.Context, b Bet) error {
	if b.ID == "" || b.InviteID == "" || b.CampaignID == "" || !b.PaymentStatus.Valid() {
		return fmt.Errorf("%w: id, inviteId, campaignId and paymentStatus are required", ErrInvalidBet)
	}
	nb, err := json.Marshal(b)
	if err != nil {
		return err
	}

	ctx, cancel := l.timeout.Context(ctx)
	defer cancel()

	key := betKey(b.ID)
	return l.retry(ctx, "bets.append", func(tx *redis.Tx) error {
		prev, err := getBet(ctx, tx, b.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if prev != nil {
				unindex(ctx, p, *prev)
			}
			p.Set(ctx, key, nb, 0)
			index(ctx, p, b)
			return nil
		})
		return err
	}, key)
}

// AppendGroup grava todas as apostas de uma submissão numa única transação.
// Com exclusive=true falha com ErrInviteUsed se o convite já tiver apostas;
// a checagem e a escrita são atômicas (WATCH no índice do convite).
func (l *RedisLedger) AppendGroup(ctx context.Context, inviteID string, group []Bet, exclusive bool) error {
	if len(group) == 0 {
		return fmt.Errorf("%w: empty submission", ErrInvalidBet)
	}
	keys := []string{inviteIndex(inviteID)}
	payloads := make([][]byte, len(group))
	for i, b := range group {
		if b.InviteID != inviteID || b.ID == "" || b.CampaignID == "" || !b.PaymentStatus.Valid() {
			return fmt.Errorf("%w: bet %q does not belong to invite %s", ErrInvalidBet, b.ID, inviteID)
		}
		nb, err := json.Marshal(b)
		if err != nil {
			return err
		}
		payloads[i] = nb
		keys = append(keys, betKey(b.ID))
	}

	ctx, cancel := l.timeout.Context(ctx)
	defer cancel()

	return l.retry(ctx, "bets.append_group", func(tx *redis.Tx) error {
		if exclusive {
			n, err := tx.SCard(ctx, inviteIndex(inviteID)).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return abort{ErrInviteUsed}
			}
		}
		n, err := tx.Exists(ctx, keys[1:]...).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return abort{ErrDuplicateBet}
		}
		if l.beforeCommit != nil {
			l.beforeCommit(ctx)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for i, b := range group {
				p.Set(ctx, betKey(b.ID), payloads[i], 0)
				index(ctx, p, b)
			}
			return nil
		})
		return err
	}, keys...)
}

// Get lê uma aposta por id
func (l *RedisLedger) Get(ctx context.Context, id string) (Bet, error) {
	ctx, cancel := l.timeout.Context(ctx)
	defer cancel()

	b, err := getBet(ctx, l.rdb, id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorruptBet) {
		return Bet{}, err
	}
	if err != nil {
		return Bet{}, store.Unavailable("bets.get", err)
	}
	return *b, nil
}

// ByInvite devolve as apostas de um convite em ordem de criação (vazio se não houver)
func (l *RedisLedger) ByInvite(ctx context.Context, inviteID string) ([]Bet, error) {
	return l.byIndex(ctx, "bets.by_invite", inviteIndex(inviteID), nil)
}

// ByCampaign devolve as apostas da campanha; status vazio não filtra.
// O filtro de status é aplicado em memória sobre o índice da campanha.
func (l *RedisLedger) ByCampaign(ctx context.Context, campaignID string, status PaymentStatus) ([]Bet, error) {
	var keep func(Bet) bool
	if status != "" {
		keep = func(b Bet) bool { return b.PaymentStatus == status }
	}
	return l.byIndex(ctx, "bets.by_campaign", campaignIndex(campaignID), keep)
}

// ByPaymentStatus varre o índice global de status (modo legado, sem campanha)
func (l *RedisLedger) ByPaymentStatus(ctx context.Context, status PaymentStatus) ([]Bet, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidBet, status)
	}
	return l.byIndex(ctx, "bets.by_status", statusIndex(status), func(b Bet) bool {
		return b.PaymentStatus == status
	})
}

// SetPaymentStatus atualiza uma aposta isolada respeitando os estados terminais.
// Devolve changed=false quando a aposta já estava no status pedido.
func (l *RedisLedger) SetPaymentStatus(ctx context.Context, betID string, status PaymentStatus) (Bet, bool, error) {
	if !status.Valid() {
		return Bet{}, false, fmt.Errorf("%w: unknown payment status %q", ErrInvalidBet, status)
	}

	ctx, cancel := l.timeout.Context(ctx)
	defer cancel()

	var (
		out     Bet
		changed bool
	)
	key := betKey(betID)
	err := l.retry(ctx, "bets.set_payment_status", func(tx *redis.Tx) error {
		cur, err := getBet(ctx, tx, betID)
		if errors.Is(err, ErrNotFound) {
			return abort{err}
		}
		if err != nil {
			return err
		}
		if cur.PaymentStatus == status {
			out, changed = *cur, false
			return nil
		}
		if cur.PaymentStatus.Terminal() {
			return abort{fmt.Errorf("%w: bet %s is %s", ErrTerminalState, betID, cur.PaymentStatus)}
		}

		next := l.withStatus(*cur, status)
		nb, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SRem(ctx, statusIndex(cur.PaymentStatus), betID)
			p.Set(ctx, key, nb, 0)
			p.SAdd(ctx, statusIndex(status), betID)
			return nil
		})
		if err == nil {
			out, changed = next, true
		}
		return err
	}, key)
	return out, changed, err
}

// CompareAndSetPaymentStatus troca from → to só se a aposta ainda estiver em from.
// Devolve swapped=false (sem erro) quando o status atual é outro.
func (l *RedisLedger) CompareAndSetPaymentStatus(ctx context.Context, betID string, from, to PaymentStatus) (Bet, bool, error) {
	if !from.Valid() || !to.Valid() {
		return Bet{}, false, fmt.Errorf("%w: unknown payment status %q -> %q", ErrInvalidBet, from, to)
	}

	ctx, cancel := l.timeout.Context(ctx)
	defer cancel()

	var (
		out     Bet
		swapped bool
	)
	key := betKey(betID)
	err := l.retry(ctx, "bets.compare_and_set_payment_status", func(tx *redis.Tx) error {
		cur, err := getBet(ctx, tx, betID)
		if errors.Is(err, ErrNotFound) {
			return abort{err}
		}
		if err != nil {
			return err
		}
		if cur.PaymentStatus != from {
			out, swapped = *cur, false
			return nil
		}
		if from == to {
			out, swapped = *cur, true
			return nil
		}

		next := l.withStatus(*cur, to)
		nb, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SRem(ctx, statusIndex(from), betID)
			p.Set(ctx, key, nb, 0)
			p.SAdd(ctx, statusIndex(to), betID)
			return nil
		})
		if err == nil {
			out, swapped = next, true
		}
		return err
	}, key)
	return out, swapped, err
}

// ApplyGroupDecision aplica decision a todas as apostas do convite num único EXEC.
//
// WATCH cobre o índice do convite e cada documento: se uma aposta entrar ou
// mudar no meio, a transação é refeita com o grupo relido. Apostas já no status
// pedido são puladas; uma aposta no estado terminal oposto aborta o grupo inteiro
// com ErrTerminalState sem nenhuma escrita. Grupo vazio é no-op.
func (l *RedisLedger) ApplyGroupDecision(ctx context.Context, inviteID string, decision PaymentStatus) (GroupWrite, error) {
	if !decision.Terminal() {
		return GroupWrite{}, fmt.Errorf("%w: decision must be approved or rejected", ErrInvalidBet)
	}

	ctx, cancel := l.timeout.Context(ctx)
	defer cancel()

	var out GroupWrite
	idx := inviteIndex(inviteID)
	err := l.retry(ctx, "bets.apply_group_decision", func(tx *redis.Tx) error {
		out = GroupWrite{}

		ids, err := tx.SMembers(ctx, idx).Result()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = betKey(id)
		}
		if err := tx.Watch(ctx, keys...).Err(); err != nil {
			return err
		}
		group, err := loadBets(ctx, tx, ids)
		if err != nil {
			return err
		}
		sortByCreation(group)

		var pending []Bet
		for _, b := range group {
			out.BetIDs = append(out.BetIDs, b.ID)
			switch {
			case b.PaymentStatus == decision:
				out.AlreadyInState++
			case b.PaymentStatus.Terminal():
				return abort{fmt.Errorf("%w: bet %s of invite %s is %s", ErrTerminalState, b.ID, inviteID, b.PaymentStatus)}
			default:
				pending = append(pending, b)
			}
		}
		if len(pending) == 0 {
			return nil
		}

		staged := make([]Bet, len(pending))
		payloads := make([][]byte, len(pending))
		for i, b := range pending {
			staged[i] = l.withStatus(b, decision)
			if payloads[i], err = json.Marshal(staged[i]); err != nil {
				return err
			}
		}
		if l.beforeCommit != nil {
			l.beforeCommit(ctx)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for i, b := range pending {
				p.SRem(ctx, statusIndex(b.PaymentStatus), b.ID)
				p.Set(ctx, betKey(b.ID), payloads[i], 0)
				p.SAdd(ctx, statusIndex(decision), b.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, b := range staged {
			out.Changed = append(out.Changed, b.ID)
		}
		return nil
	}, idx)
	if err != nil {
		return GroupWrite{}, err
	}
	return out, nil
}

func (l *RedisLedger) withStatus(b Bet, status PaymentStatus) Bet {
	now := l.now().UTC()
	b.PaymentStatus = status
	b.UpdatedAt = &now
	return b
}

// retry roda fn dentro de WATCH e refaz em conflito otimista (TxFailedErr).
// Erros abort e documentos corrompidos saem como estão; o resto sai embrulhado
// em store.ErrUnavailable.
func (l *RedisLedger) retry(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := l.rdb.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		var a abort
		if errors.As(err, &a) {
			return a.err
		}
		if errors.Is(err, ErrCorruptBet) {
			return err
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return store.Unavailable(op, err)
	}
	return store.Unavailable(op, fmt.Errorf("gave up after %d optimistic lock conflicts: %w", maxTxRetries, redis.TxFailedErr))
}

func (l *RedisLedger) byIndex(ctx context.Context, op, key string, keep func(Bet) bool) ([]Bet, error) {
	ctx, cancel := l.timeout.Context(ctx)
	defer cancel()

	ids, err := l.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, store.Unavailable(op, err)
	}
	all, err := loadBets(ctx, l.rdb, ids)
	if errors.Is(err, ErrCorruptBet) {
		return nil, err
	}
	if err != nil {
		return nil, store.Unavailable(op, err)
	}
	out := make([]Bet, 0, len(all))
	for _, b := range all {
		if keep == nil || keep(b) {
			out = append(out, b)
		}
	}
	sortByCreation(out)
	return out, nil
}

func index(ctx context.Context, p redis.Pipeliner, b Bet) {
	p.SAdd(ctx, inviteIndex(b.InviteID), b.ID)
	p.SAdd(ctx, campaignIndex(b.CampaignID), b.ID)
	p.SAdd(ctx, statusIndex(b.PaymentStatus), b.ID)
}

func unindex(ctx context.Context, p redis.Pipeliner, b Bet) {
	p.SRem(ctx, inviteIndex(b.InviteID), b.ID)
	p.SRem(ctx, campaignIndex(b.CampaignID), b.ID)
	p.SRem(ctx, statusIndex(b.PaymentStatus), b.ID)
}

func getBet(ctx context.Context, c reader, id string) (*Bet, error) {
	raw, err := c.Get(ctx, betKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var b Bet
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBet, id, err)
	}
	return &b, nil
}

// loadBets faz MGET dos documentos; ids sem documento são ignorados
func loadBets(ctx context.Context, c reader, ids []string) ([]Bet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = betKey(id)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Bet, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var b Bet
		if err := json.Unmarshal([]byte(s), &b); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBet, ids[i], err)
		}
		out = append(out, b)
	}
	return out, nil
}
