package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/bet-service/dto"
	"github.com/radieske/updown-rounds/internal/round-engine/admission"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RateLimit configura o limite de apostas por usuário
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// Server expõe a API de apostas e de consulta de rodadas
type Server struct {
	log      *zap.Logger
	store    *store.Store
	bets     *admission.Service
	validate *validator.Validate
	limiter  *userLimiter

	OnRateLimited func() // métricas
}

func NewServer(log *zap.Logger, s *store.Store, bets *admission.Service, rl RateLimit) *Server {
	return &Server{
		log:      log,
		store:    s,
		bets:     bets,
		validate: validator.New(),
		limiter:  newUserLimiter(rl.PerSecond, rl.Burst),
	}
}

// Router retorna o roteador HTTP com as rotas de apostas e rodadas
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/bets", s.placeBet)
	r.Get("/bets/{id}", s.getBet)
	r.Get("/rounds/current", s.currentRound)
	r.Get("/rounds/{id}", s.getRound)
	r.Get("/rounds", s.listRounds)
	r.Get("/users/{id}/bets", s.listUserBets)
	return r
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: validationMessage(err)})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, model.ErrInvalidAmount)
		return
	}
	roundID := uuid.MustParse(req.RoundID) // já validado

	if !s.limiter.Allow(req.UserID) {
		if s.OnRateLimited != nil {
			s.OnRateLimited()
		}
		writeJSON(w, http.StatusTooManyRequests, dto.ErrorResponse{Error: "too many bets"})
		return
	}

	res, err := s.bets.PlaceBet(r.Context(), admission.Request{
		RoundID:    roundID,
		UserID:     req.UserID,
		Prediction: model.Prediction(req.Prediction),
		Amount:     amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		Bet:       dto.FromBet(res.Bet),
		Round:     dto.FromRound(res.Round),
		Available: res.Wallet.Available().StringFixed(2),
		FirstBet:  res.FirstBet,
	})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	b, err := s.store.GetBet(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBet(b))
}

func (s *Server) currentRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.store.CurrentRound(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromRound(round))
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	round, err := s.store.GetRound(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromRound(round))
}

func (s *Server) listRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := s.store.RecentRounds(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]dto.RoundResponse, 0, len(rounds))
	for _, round := range rounds {
		out = append(out, dto.FromRound(round))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listUserBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.store.ListUserBets(r.Context(), chi.URLParam(r, "id"), limitParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]dto.BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, dto.FromBet(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor traduz os erros do motor para HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidAmount), errors.Is(err, model.ErrInvalidPrediction):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrRoundNotOpen), errors.Is(err, model.ErrDuplicateBet):
		return http.StatusConflict
	case errors.Is(err, model.ErrRoundNotFound), errors.Is(err, model.ErrBetNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid field: " + verrs[0].Field()
	}
	return "invalid payload"
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
