package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/feed"
	"github.com/radieske/bolao-facil/internal/payment"
	"github.com/radieske/bolao-facil/internal/producer"
	"github.com/radieske/bolao-facil/internal/shared/config"
	"github.com/radieske/bolao-facil/internal/shared/db"
	"github.com/radieske/bolao-facil/internal/shared/kafka"
	"github.com/radieske/bolao-facil/internal/shared/logger"
	"github.com/radieske/bolao-facil/internal/shared/metrics"
	"github.com/radieske/bolao-facil/internal/shared/store"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres: intents abertos de decisões de pagamento
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.EnsureSchema(ctx, pg); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	// Redis: livro de apostas onde as decisões são reaplicadas
	rdb, err := store.ConnectRedis(cfg.RedisAddr, cfg.StoreTimeout)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producer: decisões concluídas pelo reconciliador também saem em payment_decided
	decidedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPaymentDecided)
	defer decidedWriter.Close()

	counters := metrics.NewCounters()
	counters.MustRegister(prometheus.DefaultRegisterer)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort,
		func(ctx context.Context) error { return pg.PingContext(ctx) },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	)
	defer metricsSrv.Close()
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	wf := &payment.Workflow{
		Log:            log,
		Ledger:         bets.NewRedisLedger(rdb, cfg.StoreTimeout),
		Intents:        payment.NewPostgresIntents(pg, cfg.StoreTimeout),
		Publisher:      producer.NewKafkaPublisher(nil, decidedWriter),
		Feed:           feed.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel),
		OnDecision:     func(o string) { counters.PaymentDecisions.WithLabelValues(o).Inc() },
		OnPartialWrite: counters.PartialWrites.Inc,
		OnReconciled:   func(r string) { counters.IntentsReconciled.WithLabelValues(r).Inc() },
	}

	log.Info("payment-reconciler started",
		zap.Duration("interval", cfg.ReconcileInterval),
		zap.Duration("grace", cfg.ReconcileGrace),
	)

	r := &payment.Reconciler{Log: log, Workflow: wf, Interval: cfg.ReconcileInterval, Grace: cfg.ReconcileGrace}
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("reconciler stopped", zap.Error(err))
	}
	log.Info("payment-reconciler stopped")
}
