package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/radieske/bolao-facil/internal/shared/store"
)

// HashKey guarda todas as campanhas: campo = id, valor = JSON
const HashKey = "campaigns"

const maxTxRetries = 3

// RedisRepo persiste campanhas no hash "campaigns".
// Leituras por id vão direto ao Redis; listagens passam pelo Cache.
type RedisRepo struct {
	rdb     *redis.Client
	timeout store.Timeout
	now     func() time.Time
}

func NewRedisRepo(rdb *redis.Client, timeout time.Duration) *RedisRepo {
	return &RedisRepo{rdb: rdb, timeout: store.Timeout(timeout), now: time.Now}
}

// WithClock troca o relógio (testes)
func (r *RedisRepo) WithClock(now func() time.Time) *RedisRepo {
	r.now = now
	return r
}

// Get lê uma campanha por id, sem cache
func (r *RedisRepo) Get(ctx context.Context, id string) (Campaign, error) {
	ctx, cancel := r.timeout.Context(ctx)
	defer cancel()

	b, err := r.rdb.HGet(ctx, HashKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Campaign{}, ErrNotFound
	}
	if err != nil {
		return Campaign{}, store.Unavailable("campaign.get", err)
	}
	var c Campaign
	if err := json.Unmarshal(b, &c); err != nil {
		return Campaign{}, fmt.Errorf("decode campaign %s: %w", id, err)
	}
	return c, nil
}

// List carrega a coleção inteira (mais recentes primeiro). É o loader do Cache.
func (r *RedisRepo) List(ctx context.Context) ([]Campaign, error) {
	ctx, cancel := r.timeout.Context(ctx)
	defer cancel()

	all, err := r.rdb.HGetAll(ctx, HashKey).Result()
	if err != nil {
		return nil, store.Unavailable("campaign.list", err)
	}
	out := make([]Campaign, 0, len(all))
	for id, raw := range all {
		var c Campaign
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode campaign %s: %w", id, err)
		}
		out = append(out, c)
	}
	sortNewestFirst(out)
	return out, nil
}

// Create normaliza, valida e grava uma campanha nova
func (r *RedisRepo) Create(ctx context.Context, c Campaign) (Campaign, error) {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return Campaign{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := r.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	b, err := json.Marshal(c)
	if err != nil {
		return Campaign{}, err
	}

	ctx, cancel := r.timeout.Context(ctx)
	defer cancel()

	created, err := r.rdb.HSetNX(ctx, HashKey, c.ID, b).Result()
	if err != nil {
		return Campaign{}, store.Unavailable("campaign.create", err)
	}
	if !created {
		return Campaign{}, fmt.Errorf("%w: id %s already exists", ErrInvalid, c.ID)
	}
	return c, nil
}

// Update aplica mutate sobre a versão atual dentro de WATCH/MULTI.
// id, createdAt e updatedAt não podem ser alterados por mutate.
func (r *RedisRepo) Update(ctx context.Context, id string, mutate func(*Campaign) error) (Campaign, error) {
	ctx, cancel := r.timeout.Context(ctx)
	defer cancel()

	var (
		out       Campaign
		domainErr error
	)
	txf := func(tx *redis.Tx) error {
		domainErr = nil
		b, err := tx.HGet(ctx, HashKey, id).Bytes()
		if errors.Is(err, redis.Nil) {
			domainErr = ErrNotFound
			return domainErr
		}
		if err != nil {
			return err
		}
		var cur Campaign
		if err := json.Unmarshal(b, &cur); err != nil {
			return fmt.Errorf("decode campaign %s: %w", id, err)
		}

		next := cur.Clone()
		if err := mutate(&next); err != nil {
			domainErr = err
			return err
		}
		next.ID, next.CreatedAt = cur.ID, cur.CreatedAt
		next.Normalize()
		if err := next.Validate(); err != nil {
			domainErr = err
			return err
		}
		next.UpdatedAt = r.now().UTC()

		nb, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, HashKey, id, nb)
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, HashKey)
		if err == nil {
			return out, nil
		}
		if domainErr != nil {
			return Campaign{}, domainErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Campaign{}, store.Unavailable("campaign.update", err)
	}
	return Campaign{}, store.Unavailable("campaign.update", redis.TxFailedErr)
}

// Delete remove a campanha. Apostas ligadas a ela não são apagadas.
func (r *RedisRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.timeout.Context(ctx)
	defer cancel()

	n, err := r.rdb.HDel(ctx, HashKey, id).Result()
	if err != nil {
		return store.Unavailable("campaign.delete", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
