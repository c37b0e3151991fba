package hooks

import (
	"context"
	"time"

	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

// RoundEvent monta o evento de ciclo de vida a partir do estado da rodada
func RoundEvent(typ events.RoundEventType, r *model.Round, now time.Time) events.RoundEvent {
	e := events.RoundEvent{
		Type:           typ,
		RoundID:        r.ID.String(),
		Seq:            r.Seq,
		Status:         string(r.Status),
		UpStakeTotal:   r.UpStakeTotal.StringFixed(2),
		DownStakeTotal: r.DownStakeTotal.StringFixed(2),
		UpBetCount:     r.UpBetCount,
		DownBetCount:   r.DownBetCount,
		StartTime:      r.StartTime,
		LockTime:       r.LockTime,
		EndTime:        r.EndTime,
		Ts:             now,
	}
	if r.Result != nil {
		e.Result = string(*r.Result)
	}
	if r.StartPrice != nil {
		e.StartPrice = r.StartPrice.String()
	}
	if r.EndPrice != nil {
		e.EndPrice = r.EndPrice.String()
	}
	if r.Status.Terminal() {
		e.PlatformCut = r.PlatformCut.StringFixed(2)
		e.PrizePool = r.PrizePool.StringFixed(2)
	}
	return e
}

// Publish cria o hook que publica e no sink
func Publish(sink EventSink, e events.RoundEvent) Hook {
	return Hook{
		Name: string(e.Type),
		Fn: func(ctx context.Context) error {
			return sink.PublishRoundEvent(ctx, e)
		},
	}
}
