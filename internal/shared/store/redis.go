package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indica que o armazenamento não respondeu (timeout, conexão, EXEC falho).
// Camadas acima nunca convertem esse erro em valor default.
var ErrUnavailable = errors.New("store unavailable")

// ConnectRedis abre o cliente e valida a conexão com um ping limitado por timeout
func ConnectRedis(addr string, timeout time.Duration) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// Unavailable embrulha um erro de infraestrutura com ErrUnavailable mantendo a causa
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Timeout aplica o limite por operação de armazenamento
type Timeout time.Duration

func (t Timeout) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	if t <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(t))
}
