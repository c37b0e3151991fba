package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoundStatus é o estado de uma rodada no ciclo de vida
type RoundStatus string

const (
	RoundUpcoming  RoundStatus = "UPCOMING"
	RoundActive    RoundStatus = "ACTIVE"
	RoundLocked    RoundStatus = "LOCKED"
	RoundCompleted RoundStatus = "COMPLETED"
	RoundCancelled RoundStatus = "CANCELLED"
)

// Terminal indica se a rodada não aceita mais transições
func (s RoundStatus) Terminal() bool {
	return s == RoundCompleted || s == RoundCancelled
}

// Outcome é o resultado final de uma rodada
type Outcome string

const (
	OutcomeUp        Outcome = "UP"
	OutcomeDown      Outcome = "DOWN"
	OutcomeTie       Outcome = "TIE"
	OutcomeCancelled Outcome = "CANCELLED"
)

// OutcomeFor compara o preço de abertura com o de fechamento
func OutcomeFor(startPrice, endPrice decimal.Decimal) Outcome {
	switch endPrice.Cmp(startPrice) {
	case 1:
		return OutcomeUp
	case -1:
		return OutcomeDown
	default:
		return OutcomeTie
	}
}

// transitions lista as arestas válidas da máquina de estados.
// CANCELLED é alcançável de qualquer estado não terminal.
var transitions = map[RoundStatus]RoundStatus{
	RoundUpcoming: RoundActive,
	RoundActive:   RoundLocked,
	RoundLocked:   RoundCompleted,
}

// CanTransition valida uma transição de status
func CanTransition(from, to RoundStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == RoundCancelled {
		return true
	}
	return transitions[from] == to
}

// Round é a rodada persistida
type Round struct {
	ID     uuid.UUID
	Seq    int64
	Status RoundStatus

	StartTime time.Time
	LockTime  time.Time
	EndTime   time.Time

	StartPrice *decimal.Decimal
	EndPrice   *decimal.Decimal
	Result     *Outcome

	UpStakeTotal   decimal.Decimal
	DownStakeTotal decimal.Decimal
	UpBetCount     int
	DownBetCount   int
	FeeCollected   decimal.Decimal
	PlatformCut    decimal.Decimal
	PrizePool      decimal.Decimal
	IsProcessed    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TotalStake soma os dois lados do pool
func (r *Round) TotalStake() decimal.Decimal {
	return r.UpStakeTotal.Add(r.DownStakeTotal)
}

// AcceptsBets é verdadeiro apenas enquanto a rodada está ACTIVE e antes do lockTime (exclusivo)
func (r *Round) AcceptsBets(now time.Time) bool {
	return r.Status == RoundActive && now.Before(r.LockTime)
}

// MinLockWindow é a menor distância permitida entre lockTime e endTime
const MinLockWindow = 30 * time.Second

// Schedule define os horários de uma nova rodada
type Schedule struct {
	StartTime time.Time
	LockTime  time.Time
	EndTime   time.Time
}

// NewSchedule calcula lockTime/endTime a partir do início, duração e janela de bloqueio
func NewSchedule(start time.Time, duration, lockWindow time.Duration) Schedule {
	end := start.Add(duration)
	return Schedule{
		StartTime: start,
		LockTime:  end.Add(-lockWindow),
		EndTime:   end,
	}
}
