package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	bhttp "github.com/radieske/updown-rounds/internal/bet-service/http"
	"github.com/radieske/updown-rounds/internal/commission"
	"github.com/radieske/updown-rounds/internal/round-engine/admission"
	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/internal/shared/cache"
	"github.com/radieske/updown-rounds/internal/shared/config"
	"github.com/radieske/updown-rounds/internal/shared/db"
	"github.com/radieske/updown-rounds/internal/shared/kafka"
	"github.com/radieske/updown-rounds/internal/shared/logger"
	"github.com/radieske/updown-rounds/internal/shared/metrics"
	"github.com/radieske/updown-rounds/internal/shared/publisher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bet-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// banco
	sqlDB, err := db.Connect(cfg.DBDriver, cfg.PostgresDSN, cfg.SQLiteDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer sqlDB.Close()
	st, err := store.New(sqlDB, cfg.DBDriver)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}

	// Redis (broadcast + dedupe de comissão)
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers
	brokers := kafka.Brokers(cfg.KafkaBrokers)
	roundWriter := kafka.NewWriter(brokers, cfg.TopicRoundEvents)
	defer roundWriter.Close()
	commissionWriter := kafka.NewWriter(brokers, cfg.TopicCommissionEvents)
	defer commissionWriter.Close()

	// Métricas Prometheus
	admitted := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_admitted_total", Help: "apostas aceitas por lado"}, []string{"prediction"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_rejected_total", Help: "apostas recusadas por motivo"}, []string{"reason"})
	limited := prometheus.NewCounter(prometheus.CounterOpts{Name: "bets_rate_limited_total", Help: "apostas barradas pelo limite por usuário"})
	hookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_hook_failures_total", Help: "hooks pós-commit com falha"}, []string{"hook"})
	prometheus.MustRegister(admitted, rejected, limited, hookFailures)

	clk := clock.System{}
	runner := hooks.NewRunner(log, 2*time.Second)
	runner.OnFailure = func(hook string) { hookFailures.WithLabelValues(hook).Inc() }
	sink := publisher.Fanout{
		publisher.NewKafkaPublisher(roundWriter, log),
		publisher.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel),
	}
	comm := commission.NewKafkaHook(commissionWriter, commission.NewRedisDeduper(rdb, 7*24*time.Hour), clk, log)

	svc := admission.NewService(log, st, clk, admission.Config{
		MinBet:     cfg.Game.MinBet,
		MaxBet:     cfg.Game.MaxBet,
		FeePercent: cfg.Game.FeePercent,
	}, comm, sink, runner)
	svc.OnAdmitted = func(p model.Prediction) { admitted.WithLabelValues(string(p)).Inc() }
	svc.OnRejected = func(reason string) { rejected.WithLabelValues(reason).Inc() }

	// HTTP público
	api := bhttp.NewServer(log, st, svc, bhttp.RateLimit{PerSecond: cfg.Game.BetRatePerSecond, Burst: cfg.Game.BetRateBurst})
	api.OnRateLimited = limited.Inc
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "db", Fn: st.Ping},
		metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("bet-service listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = msrv.Shutdown(sctx)
		return apiSrv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error("bet-service stopped with error", zap.Error(err))
	}
	log.Info("bet-service stopped")
}
