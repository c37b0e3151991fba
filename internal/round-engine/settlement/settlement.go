// Package settlement liquida rodadas LOCKED: busca o preço final, calcula a
// divisão do pool e move os saldos de todas as apostas numa única transação.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/oracle"
	"github.com/radieske/updown-rounds/internal/round-engine/payout"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

// SettlementError envolve qualquer falha dentro da transação de liquidação.
// A transação foi desfeita por inteiro e a rodada continua LOCKED.
type SettlementError struct {
	RoundID uuid.UUID
	Err     error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settle round %s: %v", e.RoundID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

type Config struct {
	PlatformCutPercent decimal.Decimal
	// usa o preço mais próximo de endTime em vez do preço corrente
	PriceAtBoundary bool
}

// Report resume uma liquidação confirmada
type Report struct {
	Round *model.Round
	Plan  payout.Plan
}

type Engine struct {
	log        *zap.Logger
	store      *store.Store
	oracle     oracle.Oracle
	clock      clock.Clock
	cfg        Config
	commission hooks.CommissionHook
	sink       hooks.EventSink
	runner     *hooks.Runner
}

func NewEngine(log *zap.Logger, s *store.Store, o oracle.Oracle, clk clock.Clock, cfg Config,
	commission hooks.CommissionHook, sink hooks.EventSink, runner *hooks.Runner) *Engine {
	return &Engine{log: log, store: s, oracle: o, clock: clk, cfg: cfg, commission: commission, sink: sink, runner: runner}
}

// SettleRound liquida uma rodada LOCKED.
// Sem preço: devolve ErrPriceUnavailable e nada muda (nova tentativa no próximo tick).
// Rodada fora de LOCKED: ErrStaleTransition, outra execução já liquidou.
// Falha na transação: *SettlementError.
func (e *Engine) SettleRound(ctx context.Context, roundID uuid.UUID) (*Report, error) {
	r, err := e.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if r.Status != model.RoundLocked {
		return nil, model.ErrStaleTransition
	}

	// 1) Preço final, fora da transação
	endPrice, err := e.endPrice(ctx, r)
	if err != nil {
		return nil, err
	}

	// 2) Tudo ou nada
	var rep *Report
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		now := e.clock.Now()
		round, err := tx.GetRoundForUpdate(ctx, roundID)
		if err != nil {
			return err
		}
		if round.Status != model.RoundLocked {
			return model.ErrStaleTransition
		}
		if round.StartPrice == nil {
			return fmt.Errorf("round %s has no start price", roundID)
		}

		bets, err := tx.ListRoundBets(ctx, roundID)
		if err != nil {
			return err
		}
		outcome := model.OutcomeFor(*round.StartPrice, endPrice)
		plan := payout.Compute(outcome, values(bets), e.cfg.PlatformCutPercent)

		if err := applyPlan(ctx, tx, plan, now); err != nil {
			return err
		}
		if err := tx.CompleteRound(ctx, roundID, endPrice, outcome, plan.PlatformCut, plan.PrizePool, now); err != nil {
			return err
		}
		done, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		rep = &Report{Round: done, Plan: plan}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrStaleTransition) {
			return nil, err
		}
		return nil, &SettlementError{RoundID: roundID, Err: err}
	}

	e.log.Info("round settled",
		zap.String("round_id", roundID.String()),
		zap.Int64("seq", rep.Round.Seq),
		zap.String("result", string(rep.Plan.Outcome)),
		zap.Bool("refunded", rep.Plan.Refunded),
		zap.Int("bets", len(rep.Plan.Bets)),
		zap.String("platform_cut", rep.Plan.PlatformCut.StringFixed(2)),
		zap.String("prize_pool", rep.Plan.PrizePool.StringFixed(2)))

	// 3) Pós-commit: evento e comissão por aposta perdida
	after := []hooks.Hook{hooks.Publish(e.sink, hooks.RoundEvent(events.RoundEnded, rep.Round, e.clock.Now()))}
	for _, l := range rep.Plan.Losers() {
		after = append(after, hooks.Hook{
			Name: "commission_bet_lost",
			Fn: func(ctx context.Context) error {
				return e.commission.OnBetLost(ctx, l.UserID, l.BetID, l.Stake)
			},
		})
	}
	e.runner.RunAll(ctx, after)
	return rep, nil
}

// CancelRound cancela uma rodada não terminal e devolve o valor total de todas as apostas
func (e *Engine) CancelRound(ctx context.Context, roundID uuid.UUID, reason string) (*Report, error) {
	var rep *Report
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		now := e.clock.Now()
		round, err := tx.GetRoundForUpdate(ctx, roundID)
		if err != nil {
			return err
		}
		if round.Status.Terminal() {
			return model.ErrStaleTransition
		}

		bets, err := tx.ListRoundBets(ctx, roundID)
		if err != nil {
			return err
		}
		plan := payout.Refund(model.OutcomeCancelled, values(bets))
		if err := applyPlan(ctx, tx, plan, now); err != nil {
			return err
		}
		if err := tx.CancelRound(ctx, roundID, round.Status, now); err != nil {
			return err
		}
		done, err := tx.GetRound(ctx, roundID)
		if err != nil {
			return err
		}
		rep = &Report{Round: done, Plan: plan}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrStaleTransition) || errors.Is(err, model.ErrRoundNotFound) {
			return nil, err
		}
		return nil, &SettlementError{RoundID: roundID, Err: err}
	}

	e.log.Warn("round cancelled",
		zap.String("round_id", roundID.String()),
		zap.String("reason", reason),
		zap.Int("refunded_bets", len(rep.Plan.Bets)))

	e.runner.RunAll(ctx, []hooks.Hook{
		hooks.Publish(e.sink, hooks.RoundEvent(events.RoundCancelled, rep.Round, e.clock.Now())),
	})
	return rep, nil
}

func (e *Engine) endPrice(ctx context.Context, r *model.Round) (decimal.Decimal, error) {
	if e.cfg.PriceAtBoundary {
		return e.oracle.PriceNear(ctx, r.EndTime)
	}
	return e.oracle.CurrentPrice(ctx)
}

// applyPlan move os saldos e grava o resultado de cada aposta.
// As carteiras são travadas em ordem de user_id para não formar deadlock com outra liquidação.
func applyPlan(ctx context.Context, tx *store.Tx, plan payout.Plan, now time.Time) error {
	ordered := make([]payout.BetOutcome, len(plan.Bets))
	copy(ordered, plan.Bets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].UserID < ordered[j].UserID })

	for _, b := range ordered {
		ref := b.BetID.String()
		var err error
		switch b.Result {
		case model.BetWin:
			_, err = tx.SettleWin(ctx, b.UserID, b.Stake, b.Payout, ref, now)
		case model.BetLoss:
			_, err = tx.SettleLoss(ctx, b.UserID, b.Stake, b.Total, ref, now)
		case model.BetRefund:
			_, err = tx.Refund(ctx, b.UserID, b.Stake, b.Total, ref, now)
		default:
			err = fmt.Errorf("unexpected bet result %q", b.Result)
		}
		if err != nil {
			return fmt.Errorf("bet %s: %w", ref, err)
		}
		if err := tx.SettleBet(ctx, b.BetID, b.Result, b.Payout, b.Profit, now); err != nil {
			return err
		}
	}
	return nil
}

func values(bets []*model.Bet) []model.Bet {
	out := make([]model.Bet, len(bets))
	for i, b := range bets {
		out[i] = *b
	}
	return out
}
