package dto

import (
	"time"

	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
)

type WalletResponse struct {
	UserID       string `json:"userId"`
	Balance      string `json:"balance"`
	Locked       string `json:"locked"`
	Available    string `json:"available"`
	TotalWagered string `json:"total_wagered"`
	TotalWon     string `json:"total_won"`
	TotalLost    string `json:"total_lost"`
}

type LedgerEntryResponse struct {
	ID           int64     `json:"id"`
	Operation    string    `json:"operation"` // CREDIT | LOCK | WIN | LOSS | REFUND
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	LockedAfter  string    `json:"locked_after"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func FromWallet(w *model.Wallet) WalletResponse {
	return WalletResponse{
		UserID:       w.UserID,
		Balance:      w.Balance.StringFixed(2),
		Locked:       w.LockedBalance.StringFixed(2),
		Available:    w.Available().StringFixed(2),
		TotalWagered: w.TotalWagered.StringFixed(2),
		TotalWon:     w.TotalWon.StringFixed(2),
		TotalLost:    w.TotalLost.StringFixed(2),
	}
}

func FromLedger(e store.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:           e.ID,
		Operation:    string(e.Operation),
		Amount:       e.Amount.StringFixed(2),
		BalanceAfter: e.BalanceAfter.StringFixed(2),
		LockedAfter:  e.LockedAfter.StringFixed(2),
		Reference:    e.Reference,
		CreatedAt:    e.CreatedAt,
	}
}
