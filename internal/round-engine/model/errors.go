package model

import "errors"

var (
	// erros de admissão de aposta (corrigíveis pelo usuário)
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrRoundNotOpen      = errors.New("round not open for bets")
	ErrDuplicateBet      = errors.New("bet already placed for this round")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrRoundNotFound  = errors.New("round not found")
	ErrBetNotFound    = errors.New("bet not found")
	ErrWalletNotFound = errors.New("wallet not found")

	// a rodada já saiu do estado de origem (outra transação chegou antes)
	ErrStaleTransition = errors.New("round not in expected status")
	ErrLedgerInvariant = errors.New("ledger invariant violated")
)

// ErrInvalidPrediction rejeita apostas com lado diferente de UP/DOWN
var ErrInvalidPrediction = errors.New("invalid prediction")
