// Package commission notifica o serviço de comissões de indicação (externo)
// publicando eventos no Kafka. Cada (tipo, aposta) é enviado no máximo uma vez:
// a liquidação pode ser reexecutada e reenviar as mesmas notificações.
package commission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/shared/kafka"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

// Deduper reserva uma chave; false significa que ela já foi reservada antes
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDeduper usa SETNX com TTL
type RedisDeduper struct {
	r   *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(r *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{r: r, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.r.SetNX(ctx, key, 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.r.Del(ctx, key).Err()
}

// KafkaHook implementa hooks.CommissionHook
type KafkaHook struct {
	writer kafka.MessageWriter
	dedupe Deduper
	clock  clock.Clock
	log    *zap.Logger
}

func NewKafkaHook(w kafka.MessageWriter, d Deduper, clk clock.Clock, log *zap.Logger) *KafkaHook {
	return &KafkaHook{writer: w, dedupe: d, clock: clk, log: log}
}

func (h *KafkaHook) OnFirstBet(ctx context.Context, userID string, betID uuid.UUID, stake decimal.Decimal) error {
	return h.publish(ctx, events.CommissionFirstBet, userID, betID, stake)
}

func (h *KafkaHook) OnBetLost(ctx context.Context, userID string, betID uuid.UUID, stake decimal.Decimal) error {
	return h.publish(ctx, events.CommissionBetLost, userID, betID, stake)
}

func dedupeKey(kind events.CommissionKind, betID uuid.UUID) string {
	return fmt.Sprintf("commission:%s:%s", kind, betID)
}

func (h *KafkaHook) publish(ctx context.Context, kind events.CommissionKind, userID string, betID uuid.UUID, stake decimal.Decimal) error {
	key := dedupeKey(kind, betID)
	fresh, err := h.dedupe.Claim(ctx, key)
	if err != nil {
		return fmt.Errorf("commission %s dedupe: %w", kind, err)
	}
	if !fresh {
		h.log.Debug("commission already sent", zap.String("kind", string(kind)), zap.String("bet_id", betID.String()))
		return nil
	}

	value, err := json.Marshal(events.CommissionEvent{
		Kind:        kind,
		UserID:      userID,
		BetID:       betID.String(),
		StakeAmount: stake.StringFixed(2),
		Ts:          h.clock.Now(),
	})
	if err != nil {
		return err
	}
	if err := kafka.WriteJSON(ctx, h.writer, userID, value); err != nil {
		// libera a chave para que uma nova tentativa possa reenviar
		if rerr := h.dedupe.Release(ctx, key); rerr != nil {
			h.log.Warn("commission dedupe release failed", zap.String("key", key), zap.Error(rerr))
		}
		return fmt.Errorf("commission %s publish: %w", kind, err)
	}
	return nil
}
