package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de broadcast e repassa os eventos de rodada ao Hub
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				upd, err := Decode([]byte(msg.Payload))
				if err != nil {
					log.Warn("ws subscriber unmarshal error", zap.Error(err))
					continue
				}
				hub.Broadcast(upd)
			}
		}
	}()
}

// Decode converte a mensagem do canal no envelope enviado aos clientes
func Decode(payload []byte) (RoundUpdate, error) {
	var e events.RoundEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return RoundUpdate{}, err
	}
	return RoundUpdate{RoundID: e.RoundID, Payload: e}, nil
}
