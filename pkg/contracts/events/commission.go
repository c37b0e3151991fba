package events

import "time"

type CommissionKind string

const (
	CommissionFirstBet CommissionKind = "first_bet"
	CommissionBetLost  CommissionKind = "bet_lost"
)

// Evento publicado no tópico "commission_events" para o serviço de comissões (externo)
type CommissionEvent struct {
	Kind        CommissionKind `json:"kind"`
	UserID      string         `json:"user_id"`
	BetID       string         `json:"bet_id"`
	StakeAmount string         `json:"stake_amount"`
	Ts          time.Time      `json:"ts"`
}
