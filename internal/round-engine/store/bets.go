package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/updown-rounds/internal/round-engine/model"
)

const betColumns = `id, user_id, round_id, prediction, total_amount, fee_amount, stake_amount,
	result, payout, profit, is_paid, created_at, settled_at`

func scanBet(row rowScanner) (*model.Bet, error) {
	var (
		b                  model.Bet
		prediction, result string
		created, settled   nullTime
	)
	err := row.Scan(&b.ID, &b.UserID, &b.RoundID, &prediction, &b.TotalAmount, &b.FeeAmount, &b.StakeAmount,
		&result, &b.Payout, &b.Profit, &b.IsPaid, &created, &settled)
	if err != nil {
		return nil, err
	}
	b.Prediction = model.Prediction(prediction)
	b.Result = model.BetResult(result)
	b.CreatedAt = created.Time
	b.SettledAt = settled.ptr()
	return &b, nil
}

func (c conn) listBets(ctx context.Context, q string, args ...any) ([]*model.Bet, error) {
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBet busca uma aposta pelo id
func (c conn) GetBet(ctx context.Context, id uuid.UUID) (*model.Bet, error) {
	b, err := scanBet(c.queryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bet %s: %w", id, err)
	}
	return b, nil
}

// ListRoundBets devolve as apostas da rodada em ordem de criação
func (c conn) ListRoundBets(ctx context.Context, roundID uuid.UUID) ([]*model.Bet, error) {
	bets, err := c.listBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE round_id = ? ORDER BY created_at, id`, roundID.String())
	if err != nil {
		return nil, fmt.Errorf("list bets of round %s: %w", roundID, err)
	}
	return bets, nil
}

// ListUserBets devolve as últimas apostas de um usuário
func (c conn) ListUserBets(ctx context.Context, userID string, limit int) ([]*model.Bet, error) {
	bets, err := c.listBets(ctx,
		`SELECT `+betColumns+` FROM bets WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bets of user %s: %w", userID, err)
	}
	return bets, nil
}

// HasBet indica se o usuário já apostou na rodada
func (c conn) HasBet(ctx context.Context, userID string, roundID uuid.UUID) (bool, error) {
	var n int
	err := c.queryRow(ctx, `SELECT COUNT(*) FROM bets WHERE user_id = ? AND round_id = ?`,
		userID, roundID.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has bet: %w", err)
	}
	return n > 0, nil
}

// CountUserBets conta todas as apostas do usuário (detecção de primeira aposta)
func (c conn) CountUserBets(ctx context.Context, userID string) (int, error) {
	var n int
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM bets WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count user bets: %w", err)
	}
	return n, nil
}

// InsertBet grava uma aposta PENDING.
// A constraint UNIQUE (user_id, round_id) é a segunda barreira contra aposta duplicada.
func (t *Tx) InsertBet(ctx context.Context, b *model.Bet) error {
	_, err := t.exec(ctx, `
		INSERT INTO bets (id, user_id, round_id, prediction, total_amount, fee_amount, stake_amount,
			result, payout, profit, is_paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.UserID, b.RoundID.String(), string(b.Prediction),
		money(b.TotalAmount), money(b.FeeAmount), money(b.StakeAmount),
		string(model.BetPending), money(decimal.Zero), money(decimal.Zero), false, t.d.ts(b.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateBet
		}
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

// SettleBet grava o resultado final. Só sai de PENDING, nunca é recalculado.
func (t *Tx) SettleBet(ctx context.Context, id uuid.UUID, result model.BetResult, payout, profit decimal.Decimal, now time.Time) error {
	res, err := t.exec(ctx, `
		UPDATE bets SET result = ?, payout = ?, profit = ?, is_paid = ?, settled_at = ?
		WHERE id = ? AND result = ?`,
		string(result), money(payout), money(profit), true, t.d.ts(now),
		id.String(), string(model.BetPending))
	if err != nil {
		return fmt.Errorf("settle bet %s: %w", id, err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("settle bet %s: %w", id, model.ErrStaleTransition)
	}
	return nil
}
