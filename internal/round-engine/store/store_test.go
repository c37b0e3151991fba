package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/updown-rounds/internal/round-engine/enginetest"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
)

var (
	ctx = context.Background()
	D   = enginetest.D
	T0  = enginetest.T0
)

func TestCreateRound_SequenceAndSchedule(t *testing.T) {
	s := enginetest.NewStore(t)

	r1 := enginetest.CreateRound(t, s, T0, 5*time.Minute, 30*time.Second)
	r2 := enginetest.CreateRound(t, s, T0.Add(5*time.Minute), 5*time.Minute, 30*time.Second)

	assert.Equal(t, int64(1), r1.Seq)
	assert.Equal(t, int64(2), r2.Seq)

	got, err := s.GetRound(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundUpcoming, got.Status)
	assert.True(t, got.StartTime.Equal(T0))
	assert.True(t, got.LockTime.Equal(T0.Add(4*time.Minute+30*time.Second)))
	assert.True(t, got.EndTime.Equal(T0.Add(5*time.Minute)))
	assert.Nil(t, got.StartPrice)
	assert.Nil(t, got.Result)
}

func TestCreateRound_RejectsShortLockWindow(t *testing.T) {
	s := enginetest.NewStore(t)

	tests := []struct {
		name       string
		lockWindow time.Duration
		wantErr    bool
	}{
		{"minimum window", 30 * time.Second, false},
		{"window too short", 29 * time.Second, true},
		{"lock after end", -time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.WithTx(ctx, func(tx *store.Tx) error {
				_, err := tx.CreateRound(ctx, model.NewSchedule(T0, 5*time.Minute, tt.lockWindow), T0)
				return err
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRoundTransitions(t *testing.T) {
	s := enginetest.NewStore(t)
	r := enginetest.CreateRound(t, s, T0, 5*time.Minute, 30*time.Second)

	err := s.WithTx(ctx, func(tx *store.Tx) error { return tx.StartRound(ctx, r.ID, D("65000.12345678"), T0) })
	require.NoError(t, err)

	// aplicar de novo a mesma transição não faz nada
	err = s.WithTx(ctx, func(tx *store.Tx) error { return tx.StartRound(ctx, r.ID, D("1"), T0) })
	assert.ErrorIs(t, err, model.ErrStaleTransition)

	// LOCKED -> COMPLETED antes de LOCKED é rejeitado
	err = s.WithTx(ctx, func(tx *store.Tx) error {
		return tx.CompleteRound(ctx, r.ID, D("1"), model.OutcomeUp, D("0"), D("0"), T0)
	})
	assert.ErrorIs(t, err, model.ErrStaleTransition)

	enginetest.LockRound(t, s, r.ID)
	err = s.WithTx(ctx, func(tx *store.Tx) error {
		return tx.CompleteRound(ctx, r.ID, D("65010"), model.OutcomeUp, D("3.00"), D("7.00"), T0.Add(5*time.Minute))
	})
	require.NoError(t, err)

	got, err := s.GetRound(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundCompleted, got.Status)
	require.NotNil(t, got.StartPrice)
	assert.Equal(t, "65000.12345678", got.StartPrice.String())
	require.NotNil(t, got.Result)
	assert.Equal(t, model.OutcomeUp, *got.Result)
	assert.True(t, got.IsProcessed)
	assert.Equal(t, "7.00", got.PrizePool.StringFixed(2))

	// terminal: nem cancelamento é aceito
	err = s.WithTx(ctx, func(tx *store.Tx) error { return tx.CancelRound(ctx, r.ID, got.Status, T0) })
	assert.ErrorIs(t, err, model.ErrStaleTransition)
}

func TestListRoundsDue(t *testing.T) {
	s := enginetest.NewStore(t)
	early := enginetest.CreateRound(t, s, T0, 5*time.Minute, 30*time.Second)
	enginetest.CreateRound(t, s, T0.Add(5*time.Minute), 5*time.Minute, 30*time.Second)

	due, err := s.ListRoundsDue(ctx, model.RoundUpcoming, T0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.ID, due[0].ID)

	due, err = s.ListRoundsDue(ctx, model.RoundUpcoming, T0.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = s.ListRoundsDue(ctx, model.RoundCompleted, T0)
	assert.Error(t, err)
}

func TestCurrentRound(t *testing.T) {
	s := enginetest.NewStore(t)

	_, err := s.CurrentRound(ctx)
	assert.ErrorIs(t, err, model.ErrRoundNotFound)

	r := enginetest.ActiveRound(t, s, "100")
	cur, err := s.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.ID, cur.ID)
}

func TestInsertBet_UniquePerUserAndRound(t *testing.T) {
	s := enginetest.NewStore(t)
	enginetest.Fund(t, s, "alice", "100")
	r := enginetest.ActiveRound(t, s, "100")

	newBet := func() *model.Bet {
		return &model.Bet{
			ID: uuid.New(), UserID: "alice", RoundID: r.ID, Prediction: model.PredictUp,
			TotalAmount: D("10"), FeeAmount: D("2"), StakeAmount: D("8"), CreatedAt: T0,
		}
	}
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error { return tx.InsertBet(ctx, newBet()) }))

	err := s.WithTx(ctx, func(tx *store.Tx) error { return tx.InsertBet(ctx, newBet()) })
	assert.ErrorIs(t, err, model.ErrDuplicateBet)

	has, err := s.HasBet(ctx, "alice", r.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSettleBet_OnlyOnce(t *testing.T) {
	s := enginetest.NewStore(t)
	enginetest.Fund(t, s, "bob", "100")
	r := enginetest.ActiveRound(t, s, "100")
	b := &model.Bet{
		ID: uuid.New(), UserID: "bob", RoundID: r.ID, Prediction: model.PredictDown,
		TotalAmount: D("10"), FeeAmount: D("2"), StakeAmount: D("8"), CreatedAt: T0,
	}
	require.NoError(t, s.WithTx(ctx, func(tx *store.Tx) error { return tx.InsertBet(ctx, b) }))

	settle := func() error {
		return s.WithTx(ctx, func(tx *store.Tx) error {
			return tx.SettleBet(ctx, b.ID, model.BetLoss, D("0"), D("-10"), T0)
		})
	}
	require.NoError(t, settle())
	assert.ErrorIs(t, settle(), model.ErrStaleTransition)

	got, err := s.GetBet(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BetLoss, got.Result)
	assert.True(t, got.IsPaid)
	require.NotNil(t, got.SettledAt)
	assert.Equal(t, "-10.00", got.Profit.StringFixed(2))
}

func TestLedger_LockAndSettle(t *testing.T) {
	tests := []struct {
		name                   string
		settle                 func(tx *store.Tx) error
		wantBalance, wantAvail string
	}{
		{
			name: "win credits the payout",
			settle: func(tx *store.Tx) error {
				_, err := tx.SettleWin(ctx, "carol", D("800"), D("1080"), "bet", T0)
				return err
			},
			wantBalance: "1080.00", wantAvail: "1080.00",
		},
		{
			name: "loss consumes the stake",
			settle: func(tx *store.Tx) error {
				_, err := tx.SettleLoss(ctx, "carol", D("800"), D("1000"), "bet", T0)
				return err
			},
			wantBalance: "0.00", wantAvail: "0.00",
		},
		{
			name: "refund returns stake and fee",
			settle: func(tx *store.Tx) error {
				_, err := tx.Refund(ctx, "carol", D("800"), D("1000"), "bet", T0)
				return err
			},
			wantBalance: "1000.00", wantAvail: "1000.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := enginetest.NewStore(t)
			enginetest.Fund(t, s, "carol", "1000")

			err := s.WithTx(ctx, func(tx *store.Tx) error {
				_, err := tx.LockFunds(ctx, "carol", D("1000"), D("800"), "bet", T0)
				return err
			})
			require.NoError(t, err)

			w := enginetest.Wallet(t, s, "carol")
			assert.Equal(t, "800.00", w.Balance.StringFixed(2))
			assert.Equal(t, "800.00", w.LockedBalance.StringFixed(2))
			assert.True(t, w.Available().IsZero())

			require.NoError(t, s.WithTx(ctx, tt.settle))

			w = enginetest.Wallet(t, s, "carol")
			assert.Equal(t, tt.wantBalance, w.Balance.StringFixed(2))
			assert.Equal(t, tt.wantAvail, w.Available().StringFixed(2))
			assert.True(t, w.LockedBalance.IsZero())
		})
	}
}

func TestLockFunds_Insufficient(t *testing.T) {
	s := enginetest.NewStore(t)
	enginetest.Fund(t, s, "dave", "50")

	err := s.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.LockFunds(ctx, "dave", D("50.01"), D("40.01"), "bet", T0)
		return err
	})
	assert.ErrorIs(t, err, model.ErrInsufficientFunds)

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.LockFunds(ctx, "nobody", D("1"), D("0.80"), "bet", T0)
		return err
	})
	assert.ErrorIs(t, err, model.ErrWalletNotFound)
}

func TestLedger_InvariantRollsBackTx(t *testing.T) {
	s := enginetest.NewStore(t)
	enginetest.Fund(t, s, "erin", "10")

	// liberar stake que nunca foi bloqueado deixaria locked negativo
	err := s.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Credit(ctx, "erin", D("5"), "bonus", T0); err != nil {
			return err
		}
		_, err := tx.SettleLoss(ctx, "erin", D("1"), D("1"), "bet", T0)
		return err
	})
	require.True(t, errors.Is(err, model.ErrLedgerInvariant))

	w := enginetest.Wallet(t, s, "erin")
	assert.Equal(t, "10.00", w.Balance.StringFixed(2), "credit in the same tx must roll back")

	entries, err := s.ListLedger(ctx, "erin", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerCredit, entries[0].Operation)
}
