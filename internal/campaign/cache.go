package campaign

import (
	"context"
	"sync/atomic"
	"time"
)

// Loader carrega a coleção completa de campanhas
type Loader func(ctx context.Context) ([]Campaign, error)

type snapshot struct {
	data      []Campaign
	fetchedAt time.Time
}

// Cache é um read-through com TTL sobre a coleção de campanhas, por instância.
//
// Escritas não invalidam o cache: uma campanha criada ou alterada pode levar
// até TTL para aparecer em List/Active. Leituras por id devem ir ao RedisRepo.
// Dois misses simultâneos podem recarregar em paralelo; vence o último Store.
type Cache struct {
	load Loader
	ttl  time.Duration
	now  func() time.Time
	cell atomic.Pointer[snapshot]

	OnHit  func()
	OnMiss func()
}

func NewCache(load Loader, ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{load: load, ttl: ttl, now: now}
}

// List devolve uma cópia da coleção, recarregando quando now - fetchedAt >= TTL.
// Erro do loader é devolvido como está; o snapshot antigo não é servido.
func (c *Cache) List(ctx context.Context) ([]Campaign, error) {
	now := c.now()
	if s := c.cell.Load(); s != nil && now.Sub(s.fetchedAt) < c.ttl {
		if c.OnHit != nil {
			c.OnHit()
		}
		return cloneAll(s.data), nil
	}

	if c.OnMiss != nil {
		c.OnMiss()
	}
	data, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	data = cloneAll(data)
	c.cell.Store(&snapshot{data: data, fetchedAt: now})
	return cloneAll(data), nil
}

// Active devolve a campanha ativa segundo PickActive
func (c *Cache) Active(ctx context.Context) (Campaign, error) {
	list, err := c.List(ctx)
	if err != nil {
		return Campaign{}, err
	}
	active, ok := PickActive(list)
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return active, nil
}

func cloneAll(in []Campaign) []Campaign {
	out := make([]Campaign, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
