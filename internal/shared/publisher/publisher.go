// Package publisher entrega os eventos de ciclo de vida das rodadas:
// Kafka para os consumidores de backend e Redis Pub/Sub para o round-feed.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/shared/kafka"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

// KafkaPublisher publica no tópico round_events; a chave é o id da rodada
// para manter a ordem dos eventos de uma rodada na mesma partição.
type KafkaPublisher struct {
	writer kafka.MessageWriter
	log    *zap.Logger
}

func NewKafkaPublisher(w kafka.MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) PublishRoundEvent(ctx context.Context, e events.RoundEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := kafka.WriteJSON(ctx, p.writer, e.RoundID, value); err != nil {
		p.log.Error("failed to publish round event", zap.String("type", string(e.Type)), zap.Error(err))
		return err
	}
	p.log.Debug("published round event", zap.String("type", string(e.Type)), zap.String("round_id", e.RoundID))
	return nil
}

// RedisBroadcaster repassa os eventos ao canal de broadcast lido pelo round-feed
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) PublishRoundEvent(ctx context.Context, e events.RoundEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}

// Fanout entrega o evento a todos os sinks; um sink com falha não impede os outros
type Fanout []hooks.EventSink

func (f Fanout) PublishRoundEvent(ctx context.Context, e events.RoundEvent) error {
	var errs []error
	for i, s := range f {
		if err := s.PublishRoundEvent(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
