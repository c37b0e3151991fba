package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/commission"
	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/round-engine/oracle"
	"github.com/radieske/updown-rounds/internal/round-engine/scheduler"
	"github.com/radieske/updown-rounds/internal/round-engine/settlement"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/internal/shared/cache"
	"github.com/radieske/updown-rounds/internal/shared/config"
	"github.com/radieske/updown-rounds/internal/shared/db"
	"github.com/radieske/updown-rounds/internal/shared/kafka"
	"github.com/radieske/updown-rounds/internal/shared/logger"
	"github.com/radieske/updown-rounds/internal/shared/metrics"
	"github.com/radieske/updown-rounds/internal/shared/publisher"
)

// tempo que uma notificação de comissão fica marcada como enviada
const commissionDedupeTTL = 7 * 24 * time.Hour

func main() {
	cancelID := flag.String("cancel", "", "cancela a rodada informada (reembolso total) e sai")
	reason := flag.String("reason", "admin", "motivo registrado no cancelamento")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "round-scheduler"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// banco: o scheduler é o dono do schema
	sqlDB, err := db.Connect(cfg.DBDriver, cfg.PostgresDSN, cfg.SQLiteDSN)
	if err != nil {
		log.Fatal("db connect", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer sqlDB.Close()
	if err := db.Migrate(ctx, sqlDB, cfg.DBDriver); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	st, err := store.New(sqlDB, cfg.DBDriver)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka: eventos de rodada e comissões
	brokers := kafka.Brokers(cfg.KafkaBrokers)
	for _, topic := range []string{cfg.TopicRoundEvents, cfg.TopicCommissionEvents} {
		if err := kafka.EnsureTopic(ctx, brokers, topic, log); err != nil {
			log.Warn("kafka topic not ensured", zap.String("topic", topic), zap.Error(err))
		}
	}
	roundWriter := kafka.NewWriter(brokers, cfg.TopicRoundEvents)
	defer roundWriter.Close()
	commissionWriter := kafka.NewWriter(brokers, cfg.TopicCommissionEvents)
	defer commissionWriter.Close()

	// Métricas Prometheus
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rounds_transitions_total", Help: "transições de rodada"}, []string{"transition"})
	settleFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "rounds_settlement_failures_total", Help: "liquidações que falharam"})
	alerts := prometheus.NewCounter(prometheus.CounterOpts{Name: "rounds_settlement_alerts_total", Help: "alertas de liquidação repetidamente falhando"})
	hookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "rounds_hook_failures_total", Help: "hooks pós-commit com falha"}, []string{"hook"})
	prometheus.MustRegister(transitions, settleFailures, alerts, hookFailures)

	clk := clock.System{}
	runner := hooks.NewRunner(log, 2*time.Second)
	runner.OnFailure = func(hook string) { hookFailures.WithLabelValues(hook).Inc() }

	sink := publisher.Fanout{
		publisher.NewKafkaPublisher(roundWriter, log),
		publisher.NewRedisBroadcaster(rdb, cfg.RedisPubSubChannel),
	}
	comm := commission.NewKafkaHook(commissionWriter, commission.NewRedisDeduper(rdb, commissionDedupeTTL), clk, log)
	orc := oracle.NewRedisOracle(rdb, cfg.PriceSymbol, cfg.PriceMaxStaleness, 0, clk)

	engine := settlement.NewEngine(log, st, orc, clk, settlement.Config{
		PlatformCutPercent: cfg.Game.PlatformCutPercent,
		PriceAtBoundary:    cfg.Game.PriceAtBoundary,
	}, comm, sink, runner)

	// modo administrativo: cancela uma rodada e encerra
	if *cancelID != "" {
		id, err := uuid.Parse(*cancelID)
		if err != nil {
			log.Fatal("invalid round id", zap.String("id", *cancelID))
		}
		rep, err := engine.CancelRound(ctx, id, *reason)
		if err != nil {
			log.Error("cancel failed", zap.String("round_id", id.String()), zap.Error(err))
			os.Exit(1)
		}
		log.Info("round cancelled", zap.String("round_id", id.String()), zap.Int("refunds", len(rep.Plan.Bets)))
		return
	}

	sched, err := scheduler.New(log, st, orc, engine, clk, scheduler.Config{
		Interval:        cfg.Game.TickInterval,
		RoundDuration:   cfg.Game.RoundDuration,
		LockWindow:      cfg.Game.LockWindow,
		StartBuffer:     cfg.Game.StartBuffer,
		AlertThreshold:  cfg.Game.SettlementAlertThreshold,
		PriceAtBoundary: cfg.Game.PriceAtBoundary,
	}, sink, runner)
	if err != nil {
		log.Fatal("scheduler config", zap.Error(err))
	}
	sched.OnTransition = func(t string) { transitions.WithLabelValues(t).Inc() }
	sched.OnSettlementFailure = func() { settleFailures.Inc() }
	sched.OnAlert = func() { alerts.Inc() }

	// metrics/health
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "db", Fn: st.Ping},
		metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = msrv.Shutdown(sctx)
	}()

	if err := sched.Run(ctx); err != nil {
		log.Error("scheduler stopped with error", zap.Error(err))
	}
}
