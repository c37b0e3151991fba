package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/shared/config"
	"github.com/radieske/updown-rounds/internal/shared/db"
	"github.com/radieske/updown-rounds/internal/shared/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New("migrate", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	sqlDB, err := db.Connect(cfg.DBDriver, cfg.PostgresDSN, cfg.SQLiteDSN)
	if err != nil {
		log.Fatal("db connect", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, sqlDB, cfg.DBDriver); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("schema applied", zap.String("driver", cfg.DBDriver))
}
