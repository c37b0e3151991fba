package ws

import "github.com/radieske/updown-rounds/pkg/contracts/events"

// ClientMsg é a mensagem recebida do cliente WebSocket
// RoundID: "*" (ou vazio) assina todas as rodadas
type ClientMsg struct {
	Type    string `json:"type"` // subscribe | unsubscribe | ping
	RoundID string `json:"roundId"`
}

// AllRounds é a assinatura que recebe eventos de qualquer rodada
const AllRounds = "*"

// RoundUpdate é o envelope enviado aos clientes
type RoundUpdate struct {
	RoundID string            `json:"roundId"`
	Payload events.RoundEvent `json:"payload"`
}
