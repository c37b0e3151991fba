package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/price-feed/binance"
	"github.com/radieske/updown-rounds/internal/price-feed/klinestore"
	"github.com/radieske/updown-rounds/internal/price-feed/simulator"
	"github.com/radieske/updown-rounds/internal/shared/cache"
	"github.com/radieske/updown-rounds/internal/shared/config"
	"github.com/radieske/updown-rounds/internal/shared/logger"
	"github.com/radieske/updown-rounds/internal/shared/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "price-feed"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()
	store := klinestore.NewRedisStore(rdb, cfg.PriceRetention)

	// Métricas Prometheus
	klines := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_feed_klines_total", Help: "velas gravadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "price_feed_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(klines, errorsBy)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = msrv.Shutdown(sctx)
	}()

	switch cfg.PriceFeedSource {
	case "simulator":
		// o preço inicial imita o BTC
		walk := simulator.NewWalk(cfg.PriceSymbol, decimal.NewFromInt(65000), 0.0005, time.Now().UnixNano())
		walk.Run(ctx, store, log, klines.Inc)
	case "binance":
		client := &binance.WSClient{
			BaseURL: cfg.BinanceWSURL,
			Symbol:  cfg.PriceSymbol,
			Sink:    store,
			Log:     log,
			OnKline: klines.Inc,
			OnError: func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
		}
		log.Info("price feed streaming", zap.String("url", client.StreamURL()))
		client.Start(ctx)
	default:
		log.Fatal("unknown PRICE_FEED_SOURCE", zap.String("source", cfg.PriceFeedSource))
	}
	log.Info("price feed stopped")
}
