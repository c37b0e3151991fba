// Package payout implementa a divisão pari-mutuel de uma rodada.
//
// Todo o cálculo é feito em decimal exato; o arredondamento para centavos
// acontece apenas nos valores finais que serão persistidos. A parte do
// prêmio de cada vencedor é distribuída em centavos pelo método do maior
// resto, de modo que a soma dos payouts feche exatamente com o pool.
package payout

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/updown-rounds/internal/round-engine/model"
)

var hundred = decimal.NewFromInt(100)

// BetOutcome é o resultado calculado para uma aposta
type BetOutcome struct {
	BetID  uuid.UUID
	UserID string
	Result model.BetResult
	Stake  decimal.Decimal
	Total  decimal.Decimal
	Payout decimal.Decimal
	Profit decimal.Decimal
}

// Plan é a distribuição completa de uma rodada, na mesma ordem das apostas de entrada
type Plan struct {
	Outcome           model.Outcome
	Refunded          bool
	TotalWinningStake decimal.Decimal
	TotalLosingStake  decimal.Decimal
	PlatformCut       decimal.Decimal
	PrizePool         decimal.Decimal
	Bets              []BetOutcome
}

// Losers devolve apenas as apostas perdedoras do plano
func (p Plan) Losers() []BetOutcome {
	var out []BetOutcome
	for _, b := range p.Bets {
		if b.Result == model.BetLoss {
			out = append(out, b)
		}
	}
	return out
}

// Compute calcula o plano de liquidação para o resultado dado.
// cutPercent é a comissão da plataforma sobre o pool perdedor (ex.: 30).
func Compute(outcome model.Outcome, bets []model.Bet, cutPercent decimal.Decimal) Plan {
	if outcome == model.OutcomeTie || outcome == model.OutcomeCancelled || len(bets) == 0 {
		return Refund(outcome, bets)
	}

	var winners, losers []int
	totalWin, totalLose := decimal.Zero, decimal.Zero
	for i, b := range bets {
		if b.Prediction.Wins(outcome) {
			winners = append(winners, i)
			totalWin = totalWin.Add(b.StakeAmount)
		} else {
			losers = append(losers, i)
			totalLose = totalLose.Add(b.StakeAmount)
		}
	}

	// pool de um lado só: não há o que redistribuir
	if len(winners) == 0 || len(losers) == 0 || totalWin.IsZero() {
		return Refund(outcome, bets)
	}

	cut := totalLose.Mul(cutPercent).Div(hundred).Round(2)
	prize := totalLose.Sub(cut)

	plan := Plan{
		Outcome:           outcome,
		TotalWinningStake: totalWin,
		TotalLosingStake:  totalLose,
		PlatformCut:       cut,
		PrizePool:         prize,
		Bets:              make([]BetOutcome, len(bets)),
	}

	shares := allocate(bets, winners, totalWin, prize)
	for k, i := range winners {
		b := bets[i]
		payout := b.StakeAmount.Add(shares[k])
		plan.Bets[i] = BetOutcome{
			BetID:  b.ID,
			UserID: b.UserID,
			Result: model.BetWin,
			Stake:  b.StakeAmount,
			Total:  b.TotalAmount,
			Payout: payout,
			Profit: payout.Sub(b.TotalAmount),
		}
	}
	for _, i := range losers {
		b := bets[i]
		plan.Bets[i] = BetOutcome{
			BetID:  b.ID,
			UserID: b.UserID,
			Result: model.BetLoss,
			Stake:  b.StakeAmount,
			Total:  b.TotalAmount,
			Payout: decimal.Zero,
			Profit: b.TotalAmount.Neg(),
		}
	}
	return plan
}

// Refund devolve o valor total de todas as apostas (empate, cancelamento, pool de um lado só)
func Refund(outcome model.Outcome, bets []model.Bet) Plan {
	plan := Plan{
		Outcome:           outcome,
		Refunded:          true,
		TotalWinningStake: decimal.Zero,
		TotalLosingStake:  decimal.Zero,
		PlatformCut:       decimal.Zero,
		PrizePool:         decimal.Zero,
		Bets:              make([]BetOutcome, len(bets)),
	}
	for i, b := range bets {
		plan.Bets[i] = BetOutcome{
			BetID:  b.ID,
			UserID: b.UserID,
			Result: model.BetRefund,
			Stake:  b.StakeAmount,
			Total:  b.TotalAmount,
			Payout: b.TotalAmount,
			Profit: decimal.Zero,
		}
	}
	return plan
}

// allocate divide prize em centavos proporcionalmente ao stake de cada vencedor.
// Cada vencedor recebe o piso da sua parte exata; os centavos que sobram vão
// para os maiores restos (desempate por ordem de criação e depois id).
func allocate(bets []model.Bet, winners []int, totalWin, prize decimal.Decimal) []decimal.Decimal {
	prizeCents := prize.Shift(2)
	totalCents := totalWin.Shift(2)

	type part struct {
		k     int
		cents decimal.Decimal
		rem   decimal.Decimal
	}
	parts := make([]part, len(winners))
	assigned := decimal.Zero
	for k, i := range winners {
		num := prizeCents.Mul(bets[i].StakeAmount.Shift(2))
		q, r := num.QuoRem(totalCents, 0)
		parts[k] = part{k: k, cents: q, rem: r}
		assigned = assigned.Add(q)
	}

	left := prizeCents.Sub(assigned).IntPart()
	if left > 0 {
		order := make([]part, len(parts))
		copy(order, parts)
		sort.SliceStable(order, func(a, b int) bool {
			if c := order[a].rem.Cmp(order[b].rem); c != 0 {
				return c > 0
			}
			ba, bb := bets[winners[order[a].k]], bets[winners[order[b].k]]
			if !ba.CreatedAt.Equal(bb.CreatedAt) {
				return ba.CreatedAt.Before(bb.CreatedAt)
			}
			return strings.Compare(ba.ID.String(), bb.ID.String()) < 0
		})
		for j := int64(0); j < left && int(j) < len(order); j++ {
			k := order[j].k
			parts[k].cents = parts[k].cents.Add(decimal.NewFromInt(1))
		}
	}

	out := make([]decimal.Decimal, len(parts))
	for k, p := range parts {
		out[k] = p.cents.Shift(-2)
	}
	return out
}
