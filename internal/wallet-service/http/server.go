package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/internal/wallet-service/dto"
)

const ledgerPageSize = 50

// Server expõe endpoints HTTP de consulta e depósito na carteira.
// Lock, liquidação e reembolso só acontecem dentro do motor de rodadas.
type Server struct {
	log      *zap.Logger
	store    *store.Store
	clock    clock.Clock
	validate *validator.Validate

	OnDeposit func() // métricas
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, s *store.Store, clk clock.Clock) *Server {
	return &Server{log: log, store: s, clock: clk, validate: validator.New()}
}

// Router retorna o roteador com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/wallet/deposit", s.deposit)
	r.Get("/wallet/{userId}", s.getWallet)
	r.Get("/wallet/{userId}/ledger", s.ledger)
	return r
}

// getWallet retorna saldo, bloqueado e disponível do usuário
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.store.GetWallet(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromWallet(wallet))
}

// deposit credita saldo, criando a carteira no primeiro depósito
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.Equal(amount.Truncate(2)) {
		s.writeError(w, model.ErrInvalidAmount)
		return
	}

	var wallet *model.Wallet
	err = s.store.WithTx(r.Context(), func(tx *store.Tx) error {
		var err error
		wallet, err = tx.Credit(r.Context(), req.UserID, amount, "deposit:"+req.ExternalRef, s.clock.Now())
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.OnDeposit != nil {
		s.OnDeposit()
	}
	s.log.Info("deposit credited", zap.String("user_id", req.UserID), zap.String("amount", amount.StringFixed(2)))
	writeJSON(w, http.StatusOK, dto.FromWallet(wallet))
}

// ledger devolve o extrato mais recente (?limit=n, máximo 50)
func (s *Server) ledger(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > ledgerPageSize {
		limit = ledgerPageSize
	}
	entries, err := s.store.ListLedger(r.Context(), chi.URLParam(r, "userId"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.FromLedger(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrWalletNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		// cliente desistiu; nada a responder
	default:
		s.log.Error("wallet request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
