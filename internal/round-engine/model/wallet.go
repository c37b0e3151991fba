package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet guarda o saldo do usuário.
// Balance inclui o valor bloqueado em apostas pendentes; o disponível é Balance - LockedBalance.
type Wallet struct {
	UserID        string
	Balance       decimal.Decimal
	LockedBalance decimal.Decimal
	TotalWagered  decimal.Decimal
	TotalWon      decimal.Decimal
	TotalLost     decimal.Decimal
	UpdatedAt     time.Time
}

// Available é o único valor que pode ser usado em novas apostas ou saques
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.LockedBalance)
}

// LedgerOp identifica o tipo de movimento registrado em wallet_ledger
type LedgerOp string

const (
	LedgerCredit LedgerOp = "CREDIT"
	LedgerLock   LedgerOp = "LOCK"
	LedgerWin    LedgerOp = "WIN"
	LedgerLoss   LedgerOp = "LOSS"
	LedgerRefund LedgerOp = "REFUND"
)
