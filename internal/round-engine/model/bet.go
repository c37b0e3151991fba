package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prediction é o lado escolhido pelo apostador
type Prediction string

const (
	PredictUp   Prediction = "UP"
	PredictDown Prediction = "DOWN"
)

// Valid aceita apenas UP ou DOWN
func (p Prediction) Valid() bool { return p == PredictUp || p == PredictDown }

// Wins indica se a previsão acerta o resultado. TIE e CANCELLED nunca vencem.
func (p Prediction) Wins(o Outcome) bool {
	return (p == PredictUp && o == OutcomeUp) || (p == PredictDown && o == OutcomeDown)
}

// BetResult é o estado de liquidação de uma aposta
type BetResult string

const (
	BetPending BetResult = "PENDING"
	BetWin     BetResult = "WIN"
	BetLoss    BetResult = "LOSS"
	BetRefund  BetResult = "REFUND"
)

// Bet é a aposta persistida.
// StakeAmount = TotalAmount - FeeAmount é o que entra no pool.
type Bet struct {
	ID         uuid.UUID
	UserID     string
	RoundID    uuid.UUID
	Prediction Prediction

	TotalAmount decimal.Decimal
	FeeAmount   decimal.Decimal
	StakeAmount decimal.Decimal

	Result BetResult
	Payout decimal.Decimal
	Profit decimal.Decimal
	IsPaid bool

	CreatedAt time.Time
	SettledAt *time.Time
}
