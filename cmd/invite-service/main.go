package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httpapi "github.com/radieske/bolao-facil/internal/api/http"
	"github.com/radieske/bolao-facil/internal/api/ws"
	"github.com/radieske/bolao-facil/internal/bets"
	"github.com/radieske/bolao-facil/internal/campaign"
	"github.com/radieske/bolao-facil/internal/feed"
	"github.com/radieske/bolao-facil/internal/invite"
	"github.com/radieske/bolao-facil/internal/payment"
	"github.com/radieske/bolao-facil/internal/producer"
	"github.com/radieske/bolao-facil/internal/shared/config"
	"github.com/radieske/bolao-facil/internal/shared/db"
	"github.com/radieske/bolao-facil/internal/shared/kafka"
	"github.com/radieske/bolao-facil/internal/shared/logger"
	"github.com/radieske/bolao-facil/internal/shared/metrics"
	"github.com/radieske/bolao-facil/internal/shared/store"
	"github.com/radieske/bolao-facil/internal/submission"
	"github.com/radieske/bolao-facil/internal/token"
)

func main() {
	// carrega config
	cfg := config.Load()

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))
	logger.Warnings(log, cfg.Warnings())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres guarda os intents de decisão de pagamento
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := db.EnsureSchema(ctx, pg); err != nil {
		log.Fatal("failed to ensure schema", zap.Error(err))
	}
	log.Info("postgres connected")

	// Redis: campanhas, apostas e feed do painel
	rdb, err := store.ConnectRedis(cfg.RedisAddr, cfg.StoreTimeout)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("redis connected")

	placedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer placedWriter.Close()
	decidedWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPaymentDecided)
	defer decidedWriter.Close()
	log.Info("kafka writers ready",
		zap.String("betPlaced", cfg.TopicBetPlaced),
		zap.String("paymentDecided", cfg.TopicPaymentDecided),
	)

	counters := metrics.NewCounters()
	counters.MustRegister(prometheus.DefaultRegisterer)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort,
		func(ctx context.Context) error { return pg.PingContext(ctx) },
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	)
	log.Info("metrics/health server started", zap.String("addr", metricsSrv.Addr))

	publisher := producer.NewKafkaPublisher(placedWriter, decidedWriter)
	broadcaster := feed.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel)

	campaigns := campaign.NewRedisRepo(rdb, cfg.StoreTimeout)
	cache := campaign.NewCache(campaigns.List, cfg.CampaignsCacheTTL, time.Now)
	cache.OnHit = func() { counters.CacheLookups.WithLabelValues("hit").Inc() }
	cache.OnMiss = func() { counters.CacheLookups.WithLabelValues("miss").Inc() }

	ledger := bets.NewRedisLedger(rdb, cfg.StoreTimeout)
	codec := token.NewCodec(cfg.JWTSecret, log)

	issuer := &invite.Issuer{
		Log:       log,
		Campaigns: campaigns,
		Active:    cache,
		Codec:     codec,
		BaseURL:   cfg.PublicBaseURL,
		OnIssued:  counters.InvitesIssued.Inc,
	}

	submissions := &submission.Service{
		Log:        log,
		Tokens:     codec,
		Campaigns:  campaigns,
		Ledger:     ledger,
		Publisher:  publisher,
		Feed:       broadcaster,
		OnAccepted: func(n int) { counters.BetsAccepted.Add(float64(n)) },
		OnRejected: func(reason string) {
			if r, ok := strings.CutPrefix(reason, "token_"); ok {
				counters.TokenRejected.WithLabelValues(r).Inc()
				return
			}
			counters.SubmissionsFailed.WithLabelValues(reason).Inc()
		},
	}

	payments := &payment.Workflow{
		Log:            log,
		Ledger:         ledger,
		Intents:        payment.NewPostgresIntents(pg, cfg.StoreTimeout),
		Publisher:      publisher,
		Feed:           broadcaster,
		OnDecision:     func(o string) { counters.PaymentDecisions.WithLabelValues(o).Inc() },
		OnPartialWrite: counters.PartialWrites.Inc,
		OnReconciled:   func(r string) { counters.IntentsReconciled.WithLabelValues(r).Inc() },
	}

	// feed do painel: Redis Pub/Sub → WebSocket
	hub := ws.NewHub(log, allowOrigin(cfg.CORSAllowedOrigins))
	ws.StartRedisSubscriber(ctx, log, rdb, cfg.RedisPubSubChannel, hub)

	api := &httpapi.API{
		Log:             log,
		Campaigns:       campaigns,
		Cache:           cache,
		Ledger:          ledger,
		Tokens:          codec,
		Issuer:          issuer,
		Submissions:     submissions,
		Payments:        payments,
		Hub:             hub,
		AdminToken:      cfg.AdminToken,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		OnTokenRejected: func(r string) { counters.TokenRejected.WithLabelValues(r).Inc() },
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// allowOrigin aplica a mesma lista do CORS ao handshake do WebSocket
func allowOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
