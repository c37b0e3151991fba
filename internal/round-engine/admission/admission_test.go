package admission

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/enginetest"
	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

var D = enginetest.D

type fixture struct {
	store      *store.Store
	clock      *clock.Fake
	commission *enginetest.CommissionRecorder
	sink       *enginetest.SinkRecorder
	svc        *Service
	round      *model.Round
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      enginetest.NewStore(t),
		clock:      clock.NewFake(enginetest.T0.Add(time.Minute)),
		commission: &enginetest.CommissionRecorder{},
		sink:       &enginetest.SinkRecorder{},
	}
	f.round = enginetest.ActiveRound(t, f.store, "65000")
	f.svc = NewService(zap.NewNop(), f.store, f.clock, Config{
		MinBet:     D("1"),
		MaxBet:     D("10000"),
		FeePercent: D("20"),
	}, f.commission, f.sink, hooks.NewRunner(zap.NewNop(), time.Second))
	return f
}

func (f *fixture) place(user string, p model.Prediction, amount string) (*Result, error) {
	return f.svc.PlaceBet(context.Background(), Request{
		RoundID: f.round.ID, UserID: user, Prediction: p, Amount: D(amount),
	})
}

func TestPlaceBet_SplitsFeeAndLocksStake(t *testing.T) {
	f := newFixture(t)
	enginetest.Fund(t, f.store, "alice", "1500")

	res, err := f.place("alice", model.PredictUp, "1000")
	require.NoError(t, err)

	assert.Equal(t, "200.00", res.Bet.FeeAmount.StringFixed(2))
	assert.Equal(t, "800.00", res.Bet.StakeAmount.StringFixed(2))
	assert.Equal(t, model.BetPending, res.Bet.Result)
	assert.True(t, res.FirstBet)

	w := enginetest.Wallet(t, f.store, "alice")
	assert.Equal(t, "500.00", w.Available().StringFixed(2))
	assert.Equal(t, "800.00", w.LockedBalance.StringFixed(2))
	assert.Equal(t, "1000.00", w.TotalWagered.StringFixed(2))

	r, err := f.store.GetRound(context.Background(), f.round.ID)
	require.NoError(t, err)
	assert.Equal(t, "800.00", r.UpStakeTotal.StringFixed(2))
	assert.Equal(t, 1, r.UpBetCount)
	assert.Equal(t, 0, r.DownBetCount)
	assert.Equal(t, "200.00", r.FeeCollected.StringFixed(2))

	require.Len(t, f.commission.Calls("first_bet"), 1)
	assert.Equal(t, res.Bet.ID, f.commission.Calls("first_bet")[0].BetID)
	assert.Equal(t, []events.RoundEventType{events.BetPlacedType}, f.sink.Types())
	assert.Equal(t, "800.00", f.sink.Events()[0].UpStakeTotal)
}

func TestPlaceBet_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		user    string
		pred    model.Prediction
		amount  string
		wantErr error
	}{
		{name: "below min", user: "u", pred: model.PredictUp, amount: "0.99", wantErr: model.ErrInvalidAmount},
		{name: "above max", user: "u", pred: model.PredictUp, amount: "10000.01", wantErr: model.ErrInvalidAmount},
		{name: "sub-cent amount", user: "u", pred: model.PredictUp, amount: "10.001", wantErr: model.ErrInvalidAmount},
		{name: "bad prediction", user: "u", pred: "SIDEWAYS", amount: "10", wantErr: model.ErrInvalidPrediction},
		{name: "no wallet", user: "ghost", pred: model.PredictUp, amount: "10", wantErr: model.ErrInsufficientFunds},
		{name: "not enough funds", user: "u", pred: model.PredictDown, amount: "100.01", wantErr: model.ErrInsufficientFunds},
		{
			name:    "at lock time",
			setup:   func(f *fixture) { f.clock.Set(f.round.LockTime) },
			user:    "u",
			pred:    model.PredictUp,
			amount:  "10",
			wantErr: model.ErrRoundNotOpen,
		},
		{
			name: "round locked",
			setup: func(f *fixture) {
				err := f.store.WithTx(context.Background(), func(tx *store.Tx) error {
					return tx.LockRound(context.Background(), f.round.ID, f.clock.Now())
				})
				if err != nil {
					panic(err)
				}
			},
			user:    "u",
			pred:    model.PredictUp,
			amount:  "10",
			wantErr: model.ErrRoundNotOpen,
		},
		{
			name:    "unknown round",
			setup:   func(f *fixture) { f.round = &model.Round{ID: uuid.New()} },
			user:    "u",
			pred:    model.PredictUp,
			amount:  "10",
			wantErr: model.ErrRoundNotOpen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			enginetest.Fund(t, f.store, "u", "100")
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.place(tt.user, tt.pred, tt.amount)
			require.ErrorIs(t, err, tt.wantErr)

			w := enginetest.Wallet(t, f.store, "u")
			assert.Equal(t, "100.00", w.Available().StringFixed(2), "rejected bet must not move funds")
			assert.Empty(t, f.sink.Types())
			assert.Empty(t, f.commission.Calls("first_bet"))
		})
	}
}

func TestPlaceBet_OneBetPerRound(t *testing.T) {
	f := newFixture(t)
	enginetest.Fund(t, f.store, "bob", "100")

	_, err := f.place("bob", model.PredictUp, "10")
	require.NoError(t, err)
	_, err = f.place("bob", model.PredictDown, "10")
	require.ErrorIs(t, err, model.ErrDuplicateBet)

	w := enginetest.Wallet(t, f.store, "bob")
	assert.Equal(t, "90.00", w.Available().StringFixed(2))
}

func TestPlaceBet_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	enginetest.Fund(t, f.store, "carol", "1000")

	const n = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.place("carol", model.PredictUp, "50")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrDuplicateBet):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)
	w := enginetest.Wallet(t, f.store, "carol")
	assert.Equal(t, "950.00", w.Available().StringFixed(2))
}

func TestPlaceBet_ConcurrentUsersKeepLedgerConsistent(t *testing.T) {
	f := newFixture(t)
	users := make([]string, 25)
	for i := range users {
		users[i] = fmt.Sprintf("user-%02d", i)
		enginetest.Fund(t, f.store, users[i], "100")
	}

	rng := rand.New(rand.NewSource(7))
	amounts := make([]int, len(users))
	for i := range amounts {
		amounts[i] = 1 + rng.Intn(150) // alguns excedem o saldo
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(u string, amount int) {
			defer wg.Done()
			pred := model.PredictUp
			if amount%2 == 0 {
				pred = model.PredictDown
			}
			_, _ = f.place(u, pred, fmt.Sprintf("%d", amount))
		}(u, amounts[i])
	}
	wg.Wait()

	r, err := f.store.GetRound(context.Background(), f.round.ID)
	require.NoError(t, err)

	locked := D("0")
	for _, u := range users {
		w := enginetest.Wallet(t, f.store, u)
		assert.True(t, w.LockedBalance.LessThanOrEqual(w.Balance), "%s: locked %s > balance %s", u, w.LockedBalance, w.Balance)
		assert.False(t, w.Available().IsNegative())
		locked = locked.Add(w.LockedBalance)
	}
	assert.True(t, locked.Equal(r.TotalStake()), "pool %s != locked %s", r.TotalStake(), locked)
}

func TestPlaceBet_FirstBetOnlyOnce(t *testing.T) {
	f := newFixture(t)
	enginetest.Fund(t, f.store, "dan", "100")

	_, err := f.place("dan", model.PredictUp, "10")
	require.NoError(t, err)

	// segunda rodada, mesma pessoa
	next := enginetest.CreateRound(t, f.store, enginetest.T0.Add(5*time.Minute), 5*time.Minute, 30*time.Second)
	require.NoError(t, f.store.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.StartRound(context.Background(), next.ID, D("65001"), enginetest.T0.Add(5*time.Minute))
	}))
	f.clock.Set(enginetest.T0.Add(6 * time.Minute))
	f.round = next

	res, err := f.place("dan", model.PredictDown, "10")
	require.NoError(t, err)
	assert.False(t, res.FirstBet)
	assert.Len(t, f.commission.Calls("first_bet"), 1)
}

func TestPlaceBet_HookFailureKeepsBet(t *testing.T) {
	f := newFixture(t)
	f.commission.Err = errors.New("commission service down")
	f.sink.Err = errors.New("kafka down")
	enginetest.Fund(t, f.store, "erin", "100")

	res, err := f.place("erin", model.PredictUp, "10")
	require.NoError(t, err)

	got, err := f.store.GetBet(context.Background(), res.Bet.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BetPending, got.Result)
}

func TestFee(t *testing.T) {
	svc := &Service{cfg: Config{FeePercent: D("20")}}
	tests := []struct{ amount, fee, stake string }{
		{"1000", "200.00", "800.00"},
		{"1", "0.20", "0.80"},
		{"0.03", "0.01", "0.02"},
		{"12.34", "2.47", "9.87"},
	}
	for _, tt := range tests {
		fee, stake := svc.Fee(D(tt.amount))
		assert.Equal(t, tt.fee, fee.StringFixed(2), tt.amount)
		assert.Equal(t, tt.stake, stake.StringFixed(2), tt.amount)
	}
}
