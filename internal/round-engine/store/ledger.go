package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/updown-rounds/internal/round-engine/model"
)

func (c conn) getWallet(ctx context.Context, userID string, lock bool) (*model.Wallet, error) {
	q := `SELECT user_id, balance, locked_balance, total_wagered, total_won, total_lost, updated_at
		FROM wallets WHERE user_id = ?`
	if lock {
		q += c.d.forUpdate
	}
	var (
		w       model.Wallet
		updated nullTime
	)
	err := c.queryRow(ctx, q, userID).Scan(&w.UserID, &w.Balance, &w.LockedBalance,
		&w.TotalWagered, &w.TotalWon, &w.TotalLost, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", userID, err)
	}
	w.UpdatedAt = updated.Time
	return &w, nil
}

// GetWallet lê a carteira sem lock
func (c conn) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	return c.getWallet(ctx, userID, false)
}

// GetWalletForUpdate lê a carteira travando a linha
func (t *Tx) GetWalletForUpdate(ctx context.Context, userID string) (*model.Wallet, error) {
	return t.getWallet(ctx, userID, true)
}

// mutate trava a carteira, aplica fn, valida os invariantes e grava o resultado
// junto com uma linha em wallet_ledger
func (t *Tx) mutate(ctx context.Context, userID string, op model.LedgerOp, amount decimal.Decimal, ref string,
	now time.Time, fn func(w *model.Wallet) error) (*model.Wallet, error) {
	w, err := t.GetWalletForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(w); err != nil {
		return nil, err
	}
	if w.LockedBalance.IsNegative() || w.LockedBalance.GreaterThan(w.Balance) {
		return nil, fmt.Errorf("%s for %s: balance=%s locked=%s: %w",
			op, userID, w.Balance, w.LockedBalance, model.ErrLedgerInvariant)
	}

	_, err = t.exec(ctx, `
		UPDATE wallets SET balance = ?, locked_balance = ?, total_wagered = ?, total_won = ?, total_lost = ?,
			version = version + 1, updated_at = ?
		WHERE user_id = ?`,
		money(w.Balance), money(w.LockedBalance), money(w.TotalWagered), money(w.TotalWon), money(w.TotalLost),
		t.d.ts(now), userID)
	if err != nil {
		return nil, fmt.Errorf("%s for %s: update wallet: %w", op, userID, err)
	}

	_, err = t.exec(ctx, `
		INSERT INTO wallet_ledger (user_id, operation_type, amount, balance_after, locked_after, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, string(op), money(amount), money(w.Balance), money(w.LockedBalance), ref, t.d.ts(now))
	if err != nil {
		return nil, fmt.Errorf("%s for %s: insert ledger: %w", op, userID, err)
	}
	w.UpdatedAt = now
	return w, nil
}

// Credit cria a carteira se necessário e soma amount ao saldo
func (t *Tx) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string, now time.Time) (*model.Wallet, error) {
	if !amount.IsPositive() {
		return nil, model.ErrInvalidAmount
	}
	_, err := t.exec(ctx, `
		INSERT INTO wallets (user_id, balance, locked_balance, total_wagered, total_won, total_lost, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, money(decimal.Zero), money(decimal.Zero), money(decimal.Zero), money(decimal.Zero), money(decimal.Zero),
		t.d.ts(now))
	if err != nil {
		return nil, fmt.Errorf("credit %s: create wallet: %w", userID, err)
	}
	return t.mutate(ctx, userID, model.LedgerCredit, amount, ref, now, func(w *model.Wallet) error {
		w.Balance = w.Balance.Add(amount)
		return nil
	})
}

// LockFunds debita amount do disponível: a taxa sai do saldo e o stake fica bloqueado
// até a liquidação. Falha com ErrInsufficientFunds se o disponível não cobre amount.
func (t *Tx) LockFunds(ctx context.Context, userID string, amount, stake decimal.Decimal, ref string, now time.Time) (*model.Wallet, error) {
	return t.mutate(ctx, userID, model.LedgerLock, amount, ref, now, func(w *model.Wallet) error {
		if w.Available().LessThan(amount) {
			return model.ErrInsufficientFunds
		}
		fee := amount.Sub(stake)
		w.Balance = w.Balance.Sub(fee)
		w.LockedBalance = w.LockedBalance.Add(stake)
		w.TotalWagered = w.TotalWagered.Add(amount)
		return nil
	})
}

// SettleWin libera o stake bloqueado e credita o payout (stake + prêmio)
func (t *Tx) SettleWin(ctx context.Context, userID string, stake, payout decimal.Decimal, ref string, now time.Time) (*model.Wallet, error) {
	return t.mutate(ctx, userID, model.LedgerWin, payout, ref, now, func(w *model.Wallet) error {
		w.Balance = w.Balance.Sub(stake).Add(payout)
		w.LockedBalance = w.LockedBalance.Sub(stake)
		w.TotalWon = w.TotalWon.Add(payout)
		return nil
	})
}

// SettleLoss consome o stake bloqueado; nada volta ao saldo disponível
func (t *Tx) SettleLoss(ctx context.Context, userID string, stake, total decimal.Decimal, ref string, now time.Time) (*model.Wallet, error) {
	return t.mutate(ctx, userID, model.LedgerLoss, stake, ref, now, func(w *model.Wallet) error {
		w.Balance = w.Balance.Sub(stake)
		w.LockedBalance = w.LockedBalance.Sub(stake)
		w.TotalLost = w.TotalLost.Add(total)
		return nil
	})
}

// Refund devolve o valor total pago (stake + taxa)
func (t *Tx) Refund(ctx context.Context, userID string, stake, total decimal.Decimal, ref string, now time.Time) (*model.Wallet, error) {
	return t.mutate(ctx, userID, model.LedgerRefund, total, ref, now, func(w *model.Wallet) error {
		w.Balance = w.Balance.Sub(stake).Add(total)
		w.LockedBalance = w.LockedBalance.Sub(stake)
		return nil
	})
}

// LedgerEntry é uma linha do extrato
type LedgerEntry struct {
	ID           int64
	UserID       string
	Operation    model.LedgerOp
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	LockedAfter  decimal.Decimal
	Reference    string
	CreatedAt    time.Time
}

// ListLedger devolve o extrato mais recente do usuário
func (c conn) ListLedger(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	rows, err := c.query(ctx, `
		SELECT id, user_id, operation_type, amount, balance_after, locked_after, reference, created_at
		FROM wallet_ledger WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger %s: %w", userID, err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e       LedgerEntry
			op      string
			created nullTime
		)
		if err := rows.Scan(&e.ID, &e.UserID, &op, &e.Amount, &e.BalanceAfter, &e.LockedAfter, &e.Reference, &created); err != nil {
			return nil, err
		}
		e.Operation = model.LedgerOp(op)
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	return out, rows.Err()
}
