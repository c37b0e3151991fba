// Package admission aceita apostas numa rodada aberta, bloqueando o stake na
// carteira e somando-o ao pool, tudo na mesma transação.
package admission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

var hundred = decimal.NewFromInt(100)

// Config são os limites de aposta e a taxa da plataforma (em %)
type Config struct {
	MinBet     decimal.Decimal
	MaxBet     decimal.Decimal
	FeePercent decimal.Decimal
}

// Request é uma aposta oferecida pelo usuário
type Request struct {
	RoundID    uuid.UUID
	UserID     string
	Prediction model.Prediction
	Amount     decimal.Decimal
}

// Result é o estado confirmado depois do commit
type Result struct {
	Bet      *model.Bet
	Round    *model.Round
	Wallet   *model.Wallet
	FirstBet bool
}

type Service struct {
	log        *zap.Logger
	store      *store.Store
	clock      clock.Clock
	cfg        Config
	commission hooks.CommissionHook
	sink       hooks.EventSink
	runner     *hooks.Runner

	// métricas
	OnAdmitted func(p model.Prediction)
	OnRejected func(reason string)
}

func NewService(log *zap.Logger, s *store.Store, clk clock.Clock, cfg Config,
	commission hooks.CommissionHook, sink hooks.EventSink, runner *hooks.Runner) *Service {
	return &Service{log: log, store: s, clock: clk, cfg: cfg, commission: commission, sink: sink, runner: runner}
}

// Fee calcula a taxa e o stake de uma aposta de valor amount
func (s *Service) Fee(amount decimal.Decimal) (fee, stake decimal.Decimal) {
	fee = amount.Mul(s.cfg.FeePercent).Div(hundred).Round(2)
	return fee, amount.Sub(fee)
}

func (s *Service) validAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) {
		return false
	}
	return amount.GreaterThanOrEqual(s.cfg.MinBet) && amount.LessThanOrEqual(s.cfg.MaxBet)
}

// PlaceBet valida e grava a aposta. Os erros de usuário são sentinelas de model
// (ErrInvalidAmount, ErrRoundNotOpen, ErrDuplicateBet, ErrInsufficientFunds).
func (s *Service) PlaceBet(ctx context.Context, req Request) (*Result, error) {
	res, err := s.admit(ctx, req)
	if err != nil {
		reason := rejectReason(err)
		if s.OnRejected != nil {
			s.OnRejected(reason)
		}
		if reason == "internal" {
			s.log.Error("bet admission failed", zap.String("user_id", req.UserID),
				zap.String("round_id", req.RoundID.String()), zap.Error(err))
		} else {
			s.log.Debug("bet rejected", zap.String("user_id", req.UserID),
				zap.String("round_id", req.RoundID.String()), zap.String("reason", reason))
		}
		return nil, err
	}
	if s.OnAdmitted != nil {
		s.OnAdmitted(res.Bet.Prediction)
	}

	s.log.Info("bet placed",
		zap.String("bet_id", res.Bet.ID.String()),
		zap.String("user_id", res.Bet.UserID),
		zap.String("round_id", res.Round.ID.String()),
		zap.String("prediction", string(res.Bet.Prediction)),
		zap.String("amount", res.Bet.TotalAmount.StringFixed(2)))

	// efeitos pós-commit: falhas aqui não desfazem a aposta
	s.runner.RunAll(ctx, s.afterCommit(res))
	return res, nil
}

func (s *Service) admit(ctx context.Context, req Request) (*Result, error) {
	// 1) Valor dentro dos limites, com no máximo 2 casas
	if !s.validAmount(req.Amount) {
		return nil, model.ErrInvalidAmount
	}
	if !req.Prediction.Valid() {
		return nil, model.ErrInvalidPrediction
	}

	fee, stake := s.Fee(req.Amount)
	res := &Result{}

	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		now := s.clock.Now()

		// 2) Rodada aberta. O lock da linha serializa com a transição para LOCKED.
		round, err := tx.GetRoundForUpdate(ctx, req.RoundID)
		if errors.Is(err, model.ErrRoundNotFound) {
			return model.ErrRoundNotOpen
		}
		if err != nil {
			return err
		}
		if !round.AcceptsBets(now) {
			return model.ErrRoundNotOpen
		}

		// 3) Uma aposta por usuário e rodada
		dup, err := tx.HasBet(ctx, req.UserID, round.ID)
		if err != nil {
			return err
		}
		if dup {
			return model.ErrDuplicateBet
		}

		// 4) Saldo disponível
		w, err := tx.GetWalletForUpdate(ctx, req.UserID)
		if errors.Is(err, model.ErrWalletNotFound) {
			return model.ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		if w.Available().LessThan(req.Amount) {
			return model.ErrInsufficientFunds
		}

		bet := &model.Bet{
			ID:          uuid.New(),
			UserID:      req.UserID,
			RoundID:     round.ID,
			Prediction:  req.Prediction,
			TotalAmount: req.Amount,
			FeeAmount:   fee,
			StakeAmount: stake,
			Result:      model.BetPending,
			Payout:      decimal.Zero,
			Profit:      decimal.Zero,
			CreatedAt:   now,
		}
		if err := tx.InsertBet(ctx, bet); err != nil {
			return err
		}
		if w, err = tx.LockFunds(ctx, req.UserID, req.Amount, stake, bet.ID.String(), now); err != nil {
			return err
		}
		if err := tx.AddToPool(ctx, round, req.Prediction, stake, fee, now); err != nil {
			return err
		}
		n, err := tx.CountUserBets(ctx, req.UserID)
		if err != nil {
			return err
		}

		res.Bet, res.Round, res.Wallet, res.FirstBet = bet, round, w, n == 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) afterCommit(res *Result) []hooks.Hook {
	e := hooks.RoundEvent(events.BetPlacedType, res.Round, res.Bet.CreatedAt)
	e.Bet = &events.BetPlaced{
		BetID:       res.Bet.ID.String(),
		UserID:      res.Bet.UserID,
		Prediction:  string(res.Bet.Prediction),
		TotalAmount: res.Bet.TotalAmount.StringFixed(2),
		FeeAmount:   res.Bet.FeeAmount.StringFixed(2),
		StakeAmount: res.Bet.StakeAmount.StringFixed(2),
	}
	out := []hooks.Hook{hooks.Publish(s.sink, e)}

	if res.FirstBet {
		bet := res.Bet
		out = append(out, hooks.Hook{
			Name: "commission_first_bet",
			Fn: func(ctx context.Context) error {
				return s.commission.OnFirstBet(ctx, bet.UserID, bet.ID, bet.StakeAmount)
			},
		})
	}
	return out
}

// rejectReason é o label de métrica para o erro
func rejectReason(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, model.ErrInvalidPrediction):
		return "invalid_prediction"
	case errors.Is(err, model.ErrRoundNotOpen):
		return "round_not_open"
	case errors.Is(err, model.ErrDuplicateBet):
		return "duplicate_bet"
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "internal"
	}
}
