package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/pkg/contracts/prices"
)

// RedisOracle lê as velas de 1s que o price-feed grava no Redis
type RedisOracle struct {
	rdb          *redis.Client
	symbol       string
	maxStaleness time.Duration
	timeout      time.Duration
	clock        clock.Clock
}

func NewRedisOracle(rdb *redis.Client, symbol string, maxStaleness, timeout time.Duration, clk clock.Clock) *RedisOracle {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisOracle{rdb: rdb, symbol: symbol, maxStaleness: maxStaleness, timeout: timeout, clock: clk}
}

// CurrentPrice devolve o fechamento da vela mais recente, se não estiver velha
func (o *RedisOracle) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	vals, err := o.rdb.ZRevRangeByScore(ctx, prices.Key(o.symbol), &redis.ZRangeBy{
		Min: "-inf", Max: "+inf", Count: 1,
	}).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: redis: %v", ErrPriceUnavailable, err)
	}
	klines, err := decodeKlines(vals)
	if err != nil {
		return decimal.Zero, err
	}
	return latestFresh(klines, o.clock.Now(), o.maxStaleness)
}

// PriceNear procura a vela mais próxima de t, olhando uma janela de maxStaleness para cada lado
func (o *RedisOracle) PriceNear(ctx context.Context, t time.Time) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ms := t.UnixMilli()
	window := o.maxStaleness.Milliseconds()
	key := prices.Key(o.symbol)

	before, err := o.rdb.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(ms-window, 10), Max: strconv.FormatInt(ms, 10), Count: 1,
	}).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: redis: %v", ErrPriceUnavailable, err)
	}
	after, err := o.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(ms, 10), Max: strconv.FormatInt(ms+window, 10), Count: 1,
	}).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: redis: %v", ErrPriceUnavailable, err)
	}

	klines, err := decodeKlines(append(before, after...))
	if err != nil {
		return decimal.Zero, err
	}
	return nearest(klines, t, o.maxStaleness)
}

func decodeKlines(vals []string) ([]prices.Kline, error) {
	out := make([]prices.Kline, 0, len(vals))
	for _, v := range vals {
		var k prices.Kline
		if err := json.Unmarshal([]byte(v), &k); err != nil {
			return nil, fmt.Errorf("%w: decode kline: %v", ErrPriceUnavailable, err)
		}
		out = append(out, k)
	}
	return out, nil
}

func latestFresh(klines []prices.Kline, now time.Time, maxStaleness time.Duration) (decimal.Decimal, error) {
	var latest *prices.Kline
	for i := range klines {
		if latest == nil || klines[i].CloseTime > latest.CloseTime {
			latest = &klines[i]
		}
	}
	if latest == nil {
		return decimal.Zero, fmt.Errorf("%w: no samples", ErrPriceUnavailable)
	}
	if age := now.Sub(latest.CloseAt()); maxStaleness > 0 && age > maxStaleness {
		return decimal.Zero, fmt.Errorf("%w: last sample is %s old", ErrPriceUnavailable, age)
	}
	return latest.Close, nil
}

func nearest(klines []prices.Kline, t time.Time, maxDistance time.Duration) (decimal.Decimal, error) {
	var (
		best     *prices.Kline
		bestDist time.Duration
	)
	for i := range klines {
		d := klines[i].CloseAt().Sub(t)
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best, bestDist = &klines[i], d
		}
	}
	if best == nil || (maxDistance > 0 && bestDist > maxDistance) {
		return decimal.Zero, fmt.Errorf("%w: no sample near %s", ErrPriceUnavailable, t.Format(time.RFC3339))
	}
	return best.Close, nil
}
