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

const roundColumns = `id, seq, status, start_time, lock_time, end_time, start_price, end_price, result,
	up_stake_total, down_stake_total, up_bet_count, down_bet_count,
	fee_collected, platform_cut, prize_pool, is_processed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRound(row rowScanner) (*model.Round, error) {
	var (
		r                    model.Round
		status               string
		result               sql.NullString
		startPrice, endPrice decimal.NullDecimal
		start, lock, end     nullTime
		created, updated     nullTime
	)
	err := row.Scan(&r.ID, &r.Seq, &status, &start, &lock, &end, &startPrice, &endPrice, &result,
		&r.UpStakeTotal, &r.DownStakeTotal, &r.UpBetCount, &r.DownBetCount,
		&r.FeeCollected, &r.PlatformCut, &r.PrizePool, &r.IsProcessed, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.Status = model.RoundStatus(status)
	r.StartTime, r.LockTime, r.EndTime = start.Time, lock.Time, end.Time
	r.CreatedAt, r.UpdatedAt = created.Time, updated.Time
	if startPrice.Valid {
		p := startPrice.Decimal
		r.StartPrice = &p
	}
	if endPrice.Valid {
		p := endPrice.Decimal
		r.EndPrice = &p
	}
	if result.Valid {
		o := model.Outcome(result.String)
		r.Result = &o
	}
	return &r, nil
}

func (c conn) getRound(ctx context.Context, id uuid.UUID, lock bool) (*model.Round, error) {
	q := `SELECT ` + roundColumns + ` FROM rounds WHERE id = ?`
	if lock {
		q += c.d.forUpdate
	}
	r, err := scanRound(c.queryRow(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get round %s: %w", id, err)
	}
	return r, nil
}

func (c conn) listRounds(ctx context.Context, q string, args ...any) ([]*model.Round, error) {
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRound busca uma rodada pelo id
func (c conn) GetRound(ctx context.Context, id uuid.UUID) (*model.Round, error) {
	return c.getRound(ctx, id, false)
}

// CurrentRound devolve a rodada ACTIVE mais recente (a que aceita apostas)
func (c conn) CurrentRound(ctx context.Context) (*model.Round, error) {
	rounds, err := c.listRounds(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE status = ? ORDER BY seq DESC LIMIT 1`,
		string(model.RoundActive))
	if err != nil {
		return nil, fmt.Errorf("current round: %w", err)
	}
	if len(rounds) == 0 {
		return nil, model.ErrRoundNotFound
	}
	return rounds[0], nil
}

// RecentRounds lista as últimas rodadas por sequência decrescente
func (c conn) RecentRounds(ctx context.Context, limit int) ([]*model.Round, error) {
	rounds, err := c.listRounds(ctx,
		`SELECT `+roundColumns+` FROM rounds ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent rounds: %w", err)
	}
	return rounds, nil
}

// dueColumn é o horário que dispara a saída de cada estado
var dueColumn = map[model.RoundStatus]string{
	model.RoundUpcoming: "start_time",
	model.RoundActive:   "lock_time",
	model.RoundLocked:   "end_time",
}

// ListRoundsDue devolve as rodadas ainda no estado status cujo horário de saída já passou.
// Uma comparação por estado, coberta pelos índices (status, <coluna>).
func (c conn) ListRoundsDue(ctx context.Context, status model.RoundStatus, now time.Time) ([]*model.Round, error) {
	col, ok := dueColumn[status]
	if !ok {
		return nil, fmt.Errorf("list due rounds: status %s has no due column", status)
	}
	rounds, err := c.listRounds(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE status = ? AND `+col+` <= ? ORDER BY seq`,
		string(status), c.d.ts(now))
	if err != nil {
		return nil, fmt.Errorf("list due %s rounds: %w", status, err)
	}
	return rounds, nil
}

// CountRounds conta rodadas num estado
func (c conn) CountRounds(ctx context.Context, status model.RoundStatus) (int, error) {
	var n int
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM rounds WHERE status = ?`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s rounds: %w", status, err)
	}
	return n, nil
}

// GetRoundForUpdate lê a rodada travando a linha até o fim da transação
func (t *Tx) GetRoundForUpdate(ctx context.Context, id uuid.UUID) (*model.Round, error) {
	return t.getRound(ctx, id, true)
}

// CreateRound insere uma rodada UPCOMING com a próxima sequência
func (t *Tx) CreateRound(ctx context.Context, s model.Schedule, now time.Time) (*model.Round, error) {
	if s.EndTime.Sub(s.LockTime) < model.MinLockWindow {
		return nil, fmt.Errorf("create round: lock time %s must be at least %s before end time %s",
			s.LockTime, model.MinLockWindow, s.EndTime)
	}
	var maxSeq int64
	if err := t.queryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM rounds`).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("create round: next seq: %w", err)
	}

	r := &model.Round{
		ID:             uuid.New(),
		Seq:            maxSeq + 1,
		Status:         model.RoundUpcoming,
		StartTime:      s.StartTime.UTC(),
		LockTime:       s.LockTime.UTC(),
		EndTime:        s.EndTime.UTC(),
		UpStakeTotal:   decimal.Zero,
		DownStakeTotal: decimal.Zero,
		FeeCollected:   decimal.Zero,
		PlatformCut:    decimal.Zero,
		PrizePool:      decimal.Zero,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
	_, err := t.exec(ctx, `
		INSERT INTO rounds (id, seq, status, start_time, lock_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Seq, string(r.Status), t.d.ts(r.StartTime), t.d.ts(r.LockTime), t.d.ts(r.EndTime),
		t.d.ts(now), t.d.ts(now))
	if err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}
	return r, nil
}

// transition aplica um UPDATE condicionado ao estado de origem.
// Nenhuma linha afetada significa que outra transação já moveu a rodada.
func (t *Tx) transition(ctx context.Context, id uuid.UUID, from model.RoundStatus, set string, args ...any) error {
	q := `UPDATE rounds SET ` + set + ` WHERE id = ? AND status = ?`
	args = append(args, id.String(), string(from))
	res, err := t.exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("round %s transition from %s: %w", id, from, err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrStaleTransition
	}
	return nil
}

// StartRound: UPCOMING -> ACTIVE, grava o preço de abertura
func (t *Tx) StartRound(ctx context.Context, id uuid.UUID, startPrice decimal.Decimal, now time.Time) error {
	return t.transition(ctx, id, model.RoundUpcoming,
		`status = ?, start_price = ?, updated_at = ?`,
		string(model.RoundActive), price(startPrice), t.d.ts(now))
}

// LockRound: ACTIVE -> LOCKED. A partir do commit nenhuma aposta é aceita.
func (t *Tx) LockRound(ctx context.Context, id uuid.UUID, now time.Time) error {
	return t.transition(ctx, id, model.RoundActive,
		`status = ?, updated_at = ?`,
		string(model.RoundLocked), t.d.ts(now))
}

// CompleteRound: LOCKED -> COMPLETED com preço final, resultado e divisão do pool
func (t *Tx) CompleteRound(ctx context.Context, id uuid.UUID, endPrice decimal.Decimal, result model.Outcome,
	platformCut, prizePool decimal.Decimal, now time.Time) error {
	return t.transition(ctx, id, model.RoundLocked,
		`status = ?, end_price = ?, result = ?, platform_cut = ?, prize_pool = ?, is_processed = ?, updated_at = ?`,
		string(model.RoundCompleted), price(endPrice), string(result), money(platformCut), money(prizePool), true, t.d.ts(now))
}

// CancelRound leva a rodada do estado from para CANCELLED
func (t *Tx) CancelRound(ctx context.Context, id uuid.UUID, from model.RoundStatus, now time.Time) error {
	if !model.CanTransition(from, model.RoundCancelled) {
		return fmt.Errorf("cancel round %s from %s: %w", id, from, model.ErrStaleTransition)
	}
	return t.transition(ctx, id, from,
		`status = ?, result = ?, platform_cut = ?, prize_pool = ?, is_processed = ?, updated_at = ?`,
		string(model.RoundCancelled), string(model.OutcomeCancelled), money(decimal.Zero), money(decimal.Zero), true, t.d.ts(now))
}

// AddToPool soma o stake no lado previsto, incrementa o contador e a taxa arrecadada.
// Só é chamado pela admissão, com a linha da rodada já travada.
func (t *Tx) AddToPool(ctx context.Context, r *model.Round, p model.Prediction, stake, fee decimal.Decimal, now time.Time) error {
	up, down := r.UpStakeTotal, r.DownStakeTotal
	upN, downN := r.UpBetCount, r.DownBetCount
	switch p {
	case model.PredictUp:
		up = up.Add(stake)
		upN++
	case model.PredictDown:
		down = down.Add(stake)
		downN++
	default:
		return fmt.Errorf("add to pool: invalid prediction %q", p)
	}
	fees := r.FeeCollected.Add(fee)

	err := t.transition(ctx, r.ID, model.RoundActive,
		`up_stake_total = ?, down_stake_total = ?, up_bet_count = ?, down_bet_count = ?, fee_collected = ?, updated_at = ?`,
		money(up), money(down), upN, downN, money(fees), t.d.ts(now))
	if err != nil {
		return err
	}
	r.UpStakeTotal, r.DownStakeTotal = up, down
	r.UpBetCount, r.DownBetCount = upN, downN
	r.FeeCollected = fees
	r.UpdatedAt = now
	return nil
}
