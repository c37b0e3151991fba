// Package enginetest reúne os dublês usados nos testes do motor de rodadas:
// banco SQLite em memória, oráculo e hooks gravadores.
package enginetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/oracle"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/internal/shared/db"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

// T0 é o instante base dos testes
var T0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// D converte uma string em decimal
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// NewStore abre um SQLite em memória com o schema aplicado
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	sqlDB, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(context.Background(), sqlDB, db.DriverSQLite))
	s, err := store.New(sqlDB, db.DriverSQLite)
	require.NoError(t, err)
	return s
}

// Fund credita amount na carteira do usuário
func Fund(t testing.TB, s *store.Store, userID, amount string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		_, err := tx.Credit(context.Background(), userID, D(amount), "test-deposit", T0)
		return err
	})
	require.NoError(t, err)
}

// Wallet lê a carteira do usuário
func Wallet(t testing.TB, s *store.Store, userID string) *model.Wallet {
	t.Helper()
	w, err := s.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

// CreateRound cria uma rodada UPCOMING começando em start
func CreateRound(t testing.TB, s *store.Store, start time.Time, duration, lockWindow time.Duration) *model.Round {
	t.Helper()
	var r *model.Round
	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		var err error
		r, err = tx.CreateRound(context.Background(), model.NewSchedule(start, duration, lockWindow), start)
		return err
	})
	require.NoError(t, err)
	return r
}

// ActiveRound cria e abre uma rodada de 5 minutos com lock de 30s, iniciada em T0
func ActiveRound(t testing.TB, s *store.Store, startPrice string) *model.Round {
	t.Helper()
	r := CreateRound(t, s, T0, 5*time.Minute, 30*time.Second)
	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.StartRound(context.Background(), r.ID, D(startPrice), T0)
	})
	require.NoError(t, err)
	got, err := s.GetRound(context.Background(), r.ID)
	require.NoError(t, err)
	return got
}

// LockRound leva uma rodada ACTIVE para LOCKED
func LockRound(t testing.TB, s *store.Store, id uuid.UUID) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.LockRound(context.Background(), id, T0.Add(4*time.Minute+30*time.Second))
	})
	require.NoError(t, err)
}

// FakeOracle devolve um preço configurável; Err força indisponibilidade
type FakeOracle struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func NewFakeOracle(price string) *FakeOracle { return &FakeOracle{price: D(price)} }

func (o *FakeOracle) Set(price string) {
	o.mu.Lock()
	o.price, o.err = D(price), nil
	o.mu.Unlock()
}

func (o *FakeOracle) Fail() {
	o.mu.Lock()
	o.err = oracle.ErrPriceUnavailable
	o.mu.Unlock()
}

func (o *FakeOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *FakeOracle) CurrentPrice(context.Context) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return decimal.Zero, o.err
	}
	return o.price, nil
}

func (o *FakeOracle) PriceNear(ctx context.Context, _ time.Time) (decimal.Decimal, error) {
	return o.CurrentPrice(ctx)
}

// CommissionCall é uma notificação recebida pelo CommissionRecorder
type CommissionCall struct {
	Kind   string
	UserID string
	BetID  uuid.UUID
	Stake  decimal.Decimal
}

// CommissionRecorder grava as notificações; Err faz todas falharem
type CommissionRecorder struct {
	mu    sync.Mutex
	calls []CommissionCall
	Err   error
}

func (c *CommissionRecorder) record(kind, userID string, betID uuid.UUID, stake decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, CommissionCall{Kind: kind, UserID: userID, BetID: betID, Stake: stake})
	return c.Err
}

func (c *CommissionRecorder) OnFirstBet(_ context.Context, userID string, betID uuid.UUID, stake decimal.Decimal) error {
	return c.record("first_bet", userID, betID, stake)
}

func (c *CommissionRecorder) OnBetLost(_ context.Context, userID string, betID uuid.UUID, stake decimal.Decimal) error {
	return c.record("bet_lost", userID, betID, stake)
}

// Calls devolve as notificações do tipo kind
func (c *CommissionRecorder) Calls(kind string) []CommissionCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CommissionCall
	for _, call := range c.calls {
		if call.Kind == kind {
			out = append(out, call)
		}
	}
	return out
}

// SinkRecorder grava os eventos publicados
type SinkRecorder struct {
	mu     sync.Mutex
	events []events.RoundEvent
	Err    error
}

func (s *SinkRecorder) PublishRoundEvent(_ context.Context, e events.RoundEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.Err
}

// Types devolve a sequência de tipos publicados
func (s *SinkRecorder) Types() []events.RoundEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.RoundEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// Events devolve uma cópia dos eventos publicados
func (s *SinkRecorder) Events() []events.RoundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.RoundEvent(nil), s.events...)
}
