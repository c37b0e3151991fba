package events

import "time"

// RoundEventType identifica a etapa do ciclo de vida
type RoundEventType string

const (
	RoundStarted   RoundEventType = "round_started"
	RoundLocked    RoundEventType = "round_locked"
	RoundEnded     RoundEventType = "round_ended"
	RoundCancelled RoundEventType = "round_cancelled"
	BetPlacedType  RoundEventType = "bet_placed"
)

// Evento publicado no tópico "round_events" e no canal Redis de broadcast.
// Consumidores devem ser idempotentes em (round_id, status): a entrega é at-least-once.
type RoundEvent struct {
	Type    RoundEventType `json:"type"`
	RoundID string         `json:"round_id"`
	Seq     int64          `json:"seq"`
	Status  string         `json:"status"`
	Result  string         `json:"result,omitempty"`

	StartPrice string `json:"start_price,omitempty"`
	EndPrice   string `json:"end_price,omitempty"`

	UpStakeTotal   string `json:"up_stake_total"`
	DownStakeTotal string `json:"down_stake_total"`
	UpBetCount     int    `json:"up_bet_count"`
	DownBetCount   int    `json:"down_bet_count"`
	PlatformCut    string `json:"platform_cut,omitempty"`
	PrizePool      string `json:"prize_pool,omitempty"`

	StartTime time.Time `json:"start_time"`
	LockTime  time.Time `json:"lock_time"`
	EndTime   time.Time `json:"end_time"`

	Bet *BetPlaced `json:"bet,omitempty"` // só em bet_placed
	Ts  time.Time  `json:"ts"`
}
