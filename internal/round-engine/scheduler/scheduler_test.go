package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/admission"
	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/enginetest"
	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/settlement"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

var (
	ctx = context.Background()
	D   = enginetest.D
	T0  = enginetest.T0
)

type fixture struct {
	store  *store.Store
	clock  *clock.Fake
	oracle *enginetest.FakeOracle
	sink   *enginetest.SinkRecorder
	sched  *Scheduler
	engine *settlement.Engine
	bets   *admission.Service

	transitions map[string]int
	alerts      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       enginetest.NewStore(t),
		clock:       clock.NewFake(T0),
		oracle:      enginetest.NewFakeOracle("65000"),
		sink:        &enginetest.SinkRecorder{},
		transitions: map[string]int{},
	}
	runner := hooks.NewRunner(zap.NewNop(), time.Second)
	f.engine = settlement.NewEngine(zap.NewNop(), f.store, f.oracle, f.clock,
		settlement.Config{PlatformCutPercent: D("30")}, hooks.NopCommission{}, f.sink, runner)

	var err error
	f.sched, err = New(zap.NewNop(), f.store, f.oracle, f.engine, f.clock, Config{
		RoundDuration:  5 * time.Minute,
		LockWindow:     30 * time.Second,
		AlertThreshold: 2,
	}, f.sink, runner)
	require.NoError(t, err)
	f.sched.OnTransition = func(name string) { f.transitions[name]++ }
	f.sched.OnAlert = func() { f.alerts++ }

	f.bets = admission.NewService(zap.NewNop(), f.store, f.clock, admission.Config{
		MinBet: D("1"), MaxBet: D("1000"), FeePercent: D("20"),
	}, hooks.NopCommission{}, hooks.NopSink{}, runner)
	return f
}

func (f *fixture) bet(t *testing.T, roundID uuid.UUID, user string, p model.Prediction, amount string) {
	t.Helper()
	enginetest.Fund(t, f.store, user, amount)
	_, err := f.bets.PlaceBet(ctx, admission.Request{RoundID: roundID, UserID: user, Prediction: p, Amount: D(amount)})
	require.NoError(t, err)
}

// zeroLocked desfaz o saldo travado do usuário, o que faz a liquidação violar o ledger
func (f *fixture) zeroLocked(t *testing.T, user string) {
	t.Helper()
	_, err := f.store.DB().Exec(`UPDATE wallets SET locked_balance = '0.00' WHERE user_id = ?`, user)
	require.NoError(t, err)
}

func (f *fixture) status(t *testing.T, id uuid.UUID) model.RoundStatus {
	t.Helper()
	r, err := f.store.GetRound(ctx, id)
	require.NoError(t, err)
	return r.Status
}

func (f *fixture) count(t *testing.T, status model.RoundStatus) int {
	t.Helper()
	n, err := f.store.CountRounds(ctx, status)
	require.NoError(t, err)
	return n
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults applied", Config{RoundDuration: 5 * time.Minute, LockWindow: 30 * time.Second}, false},
		{"lock window too short", Config{RoundDuration: 5 * time.Minute, LockWindow: 29 * time.Second}, true},
		{"lock window not shorter than duration", Config{RoundDuration: time.Minute, LockWindow: time.Minute}, true},
		{"no duration", Config{LockWindow: 30 * time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 30*time.Second, cfg.Interval)
			assert.Equal(t, 4*time.Minute+30*time.Second, cfg.StartBuffer)
			assert.Equal(t, 3, cfg.AlertThreshold)
		})
	}
}

func TestTick_FullLifecycle(t *testing.T) {
	f := newFixture(t)

	// T0: bootstrap + início da primeira rodada + próxima agendada
	rep := f.sched.Tick(ctx)
	assert.Equal(t, TickReport{Created: 2, Started: 1}, rep)
	assert.Equal(t, 1, f.count(t, model.RoundActive))
	assert.Equal(t, 1, f.count(t, model.RoundUpcoming))

	first, err := f.store.CurrentRound(ctx)
	require.NoError(t, err)
	require.NotNil(t, first.StartPrice)
	assert.Equal(t, "65000", first.StartPrice.String())

	enginetest.Fund(t, f.store, "alice", "100")
	enginetest.Fund(t, f.store, "bob", "100")
	f.clock.Advance(time.Minute)
	for user, p := range map[string]model.Prediction{"alice": model.PredictUp, "bob": model.PredictDown} {
		_, err := f.bets.PlaceBet(ctx, admission.Request{RoundID: first.ID, UserID: user, Prediction: p, Amount: D("100")})
		require.NoError(t, err)
	}

	// T0+4m30: a primeira trava, a segunda abre
	f.clock.Set(first.LockTime)
	rep = f.sched.Tick(ctx)
	assert.Equal(t, TickReport{Created: 1, Started: 1, Locked: 1}, rep)
	r, err := f.store.GetRound(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundLocked, r.Status)

	// T0+5m: preço subiu, a primeira é liquidada
	f.oracle.Set("65100")
	f.clock.Set(first.EndTime)
	rep = f.sched.Tick(ctx)
	assert.Equal(t, TickReport{Settled: 1}, rep)

	r, err = f.store.GetRound(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundCompleted, r.Status)
	assert.Equal(t, model.OutcomeUp, *r.Result)
	assert.Equal(t, "136.00", enginetest.Wallet(t, f.store, "alice").Available().StringFixed(2))
	assert.Equal(t, "0.00", enginetest.Wallet(t, f.store, "bob").Available().StringFixed(2))

	assert.Equal(t, 1, f.count(t, model.RoundUpcoming))
	assert.Equal(t, map[string]int{"start": 2, "lock": 1, "settle": 1}, f.transitions)
	assert.Equal(t, []events.RoundEventType{
		events.RoundStarted, events.RoundStarted, events.RoundLocked, events.RoundEnded,
	}, f.sink.Types())
}

func TestTick_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.sched.Tick(ctx)

	rep := f.sched.Tick(ctx)
	assert.Equal(t, TickReport{}, rep)
	assert.Equal(t, 1, f.count(t, model.RoundActive))
	assert.Equal(t, 1, f.count(t, model.RoundUpcoming))
}

func TestTick_ExactlyOneUpcomingOverManyRounds(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 40; i++ {
		f.sched.Tick(ctx)
		assert.Equal(t, 1, f.count(t, model.RoundUpcoming), "tick %d", i)
		assert.LessOrEqual(t, f.count(t, model.RoundActive), 1, "tick %d", i)
		f.clock.Advance(30 * time.Second)
	}
	assert.Greater(t, f.count(t, model.RoundCompleted), 3)
}

func TestTick_StartDeferredWithoutPrice(t *testing.T) {
	f := newFixture(t)
	f.oracle.Fail()

	rep := f.sched.Tick(ctx)
	assert.Equal(t, TickReport{Created: 1, Deferred: 1}, rep)
	assert.Equal(t, 1, f.count(t, model.RoundUpcoming))
	assert.Equal(t, 0, f.count(t, model.RoundActive))

	f.oracle.Set("65000")
	f.clock.Advance(30 * time.Second)
	rep = f.sched.Tick(ctx)
	assert.Equal(t, 1, rep.Started)
}

func TestTick_SettlementDeferredWithoutPrice(t *testing.T) {
	f := newFixture(t)
	f.sched.Tick(ctx)
	first, err := f.store.CurrentRound(ctx)
	require.NoError(t, err)

	f.clock.Set(first.LockTime)
	f.sched.Tick(ctx)

	f.oracle.Fail()
	f.clock.Set(first.EndTime)
	rep := f.sched.Tick(ctx)
	assert.Equal(t, 1, rep.Deferred)

	r, err := f.store.GetRound(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundLocked, r.Status)

	f.oracle.Set("64999")
	f.clock.Advance(30 * time.Second)
	rep = f.sched.Tick(ctx)
	assert.Equal(t, 1, rep.Settled)
}

func TestTick_RepeatedSettlementFailureAlerts(t *testing.T) {
	f := newFixture(t)
	f.sched.Tick(ctx)
	first, err := f.store.CurrentRound(ctx)
	require.NoError(t, err)

	enginetest.Fund(t, f.store, "alice", "10")
	enginetest.Fund(t, f.store, "zed", "10")
	for user, p := range map[string]model.Prediction{"alice": model.PredictUp, "zed": model.PredictDown} {
		_, err := f.bets.PlaceBet(ctx, admission.Request{RoundID: first.ID, UserID: user, Prediction: p, Amount: D("10")})
		require.NoError(t, err)
	}
	f.zeroLocked(t, "zed")

	f.clock.Set(first.LockTime)
	f.sched.Tick(ctx)
	f.oracle.Set("64000")
	f.clock.Set(first.EndTime)

	rep := f.sched.Tick(ctx)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, f.sched.Failures(first.ID))
	assert.Zero(t, f.alerts)

	f.clock.Advance(30 * time.Second)
	f.sched.Tick(ctx)
	assert.Equal(t, 2, f.sched.Failures(first.ID))
	assert.Equal(t, 1, f.alerts)

	r, err := f.store.GetRound(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundLocked, r.Status)
}

func TestTick_FailedSettlementDoesNotBlockOtherRounds(t *testing.T) {
	f := newFixture(t)
	a := enginetest.ActiveRound(t, f.store, "65000")
	b := enginetest.ActiveRound(t, f.store, "65000")

	f.clock.Set(T0.Add(time.Minute))
	f.bet(t, a.ID, "alice", model.PredictUp, "10")
	f.bet(t, a.ID, "zed", model.PredictDown, "10")
	f.bet(t, b.ID, "bob", model.PredictUp, "10")
	f.bet(t, b.ID, "carl", model.PredictDown, "10")
	enginetest.LockRound(t, f.store, a.ID)
	enginetest.LockRound(t, f.store, b.ID)
	f.zeroLocked(t, "zed")

	f.oracle.Set("66000")
	f.clock.Set(b.EndTime)
	rep := f.sched.Tick(ctx)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Settled)

	assert.Equal(t, model.RoundLocked, f.status(t, a.ID))
	assert.Equal(t, model.RoundCompleted, f.status(t, b.ID))
	assert.Equal(t, 1, f.sched.Failures(a.ID))
	assert.Zero(t, f.sched.Failures(b.ID))
	assert.Equal(t, "13.60", enginetest.Wallet(t, f.store, "bob").Available().StringFixed(2))

	// a rodada quebrada continua sendo tentada; a liquidada não é tocada de novo
	f.clock.Advance(30 * time.Second)
	rep = f.sched.Tick(ctx)
	assert.Equal(t, 1, rep.Failed)
	assert.Zero(t, rep.Settled)
	assert.Equal(t, 2, f.sched.Failures(a.ID))
	assert.Equal(t, "13.60", enginetest.Wallet(t, f.store, "bob").Available().StringFixed(2))
}

func TestTick_ForgetsFailuresOfCancelledRound(t *testing.T) {
	f := newFixture(t)
	r := enginetest.ActiveRound(t, f.store, "65000")

	f.clock.Set(T0.Add(time.Minute))
	f.bet(t, r.ID, "alice", model.PredictUp, "10")
	f.bet(t, r.ID, "zed", model.PredictDown, "10")
	enginetest.LockRound(t, f.store, r.ID)
	f.zeroLocked(t, "zed")

	f.oracle.Set("64000")
	f.clock.Set(r.EndTime)
	f.sched.Tick(ctx)
	require.Equal(t, 1, f.sched.Failures(r.ID))

	// operador corrige a carteira e cancela a rodada fora do scheduler
	_, err := f.store.DB().Exec(`UPDATE wallets SET locked_balance = balance WHERE user_id = ?`, "zed")
	require.NoError(t, err)
	_, err = f.engine.CancelRound(ctx, r.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.RoundCancelled, f.status(t, r.ID))

	f.clock.Advance(30 * time.Second)
	rep := f.sched.Tick(ctx)
	assert.Zero(t, rep.Failed)
	assert.Zero(t, f.sched.Failures(r.ID))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.sched.cfg.Interval = 10 * time.Millisecond

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(runCtx) }()

	require.Eventually(t, func() bool {
		n, err := f.store.CountRounds(ctx, model.RoundActive)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
