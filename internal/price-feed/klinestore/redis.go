// Package klinestore grava as velas de preço no Redis, no formato lido pelo oracle
package klinestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/updown-rounds/pkg/contracts/prices"
)

// RedisStore mantém um sorted set por símbolo (score = OpenTime em ms).
// Atualizações da mesma vela substituem a anterior; velas mais velhas que a retenção são descartadas.
type RedisStore struct {
	r         *redis.Client
	retention time.Duration
}

func NewRedisStore(r *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{r: r, retention: retention}
}

func (s *RedisStore) Save(ctx context.Context, k prices.Kline) error {
	member, err := json.Marshal(k)
	if err != nil {
		return err
	}
	key := prices.Key(k.Symbol)
	score := strconv.FormatInt(k.OpenTime, 10)

	pipe := s.r.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, score, score)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(k.OpenTime), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff(k, s.retention), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save kline %s@%d: %w", k.Symbol, k.OpenTime, err)
	}
	return nil
}

// cutoff é o menor OpenTime mantido
func cutoff(k prices.Kline, retention time.Duration) int64 {
	return k.OpenTime - retention.Milliseconds()
}
