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

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/internal/shared/config"
	"github.com/radieske/updown-rounds/internal/shared/db"
	"github.com/radieske/updown-rounds/internal/shared/logger"
	"github.com/radieske/updown-rounds/internal/shared/metrics"
	whttp "github.com/radieske/updown-rounds/internal/wallet-service/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "wallet-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.Connect(cfg.DBDriver, cfg.PostgresDSN, cfg.SQLiteDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer sqlDB.Close()
	st, err := store.New(sqlDB, cfg.DBDriver)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}

	deposits := prometheus.NewCounter(prometheus.CounterOpts{Name: "wallet_deposits_total", Help: "depósitos creditados"})
	prometheus.MustRegister(deposits)

	api := whttp.NewServer(log, st, clock.System{})
	api.OnDeposit = deposits.Inc
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, metrics.Check{Name: "db", Fn: st.Ping})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("wallet-service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = msrv.Shutdown(sctx)
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error("wallet-service stopped with error", zap.Error(err))
	}
}
