// Package scheduler move as rodadas pelo ciclo de vida a cada tick:
// inicia as UPCOMING vencidas, trava as ACTIVE e liquida as LOCKED.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/round-engine/clock"
	"github.com/radieske/updown-rounds/internal/round-engine/hooks"
	"github.com/radieske/updown-rounds/internal/round-engine/model"
	"github.com/radieske/updown-rounds/internal/round-engine/oracle"
	"github.com/radieske/updown-rounds/internal/round-engine/settlement"
	"github.com/radieske/updown-rounds/internal/round-engine/store"
	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

type Config struct {
	Interval      time.Duration
	RoundDuration time.Duration
	LockWindow    time.Duration
	// distância entre o início de uma rodada e o da próxima; zero = RoundDuration - LockWindow
	StartBuffer time.Duration
	// falhas seguidas de liquidação até o alerta
	AlertThreshold int
	// preço de abertura = amostra mais próxima de startTime
	PriceAtBoundary bool
}

// Validate confere os limites da janela de bloqueio e aplica defaults
func (c *Config) Validate() error {
	if c.RoundDuration <= 0 {
		return fmt.Errorf("round duration must be positive, got %s", c.RoundDuration)
	}
	if c.LockWindow < model.MinLockWindow {
		return fmt.Errorf("lock window must be at least %s, got %s", model.MinLockWindow, c.LockWindow)
	}
	if c.LockWindow >= c.RoundDuration {
		return fmt.Errorf("lock window %s must be shorter than round duration %s", c.LockWindow, c.RoundDuration)
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.StartBuffer <= 0 {
		c.StartBuffer = c.RoundDuration - c.LockWindow
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = 3
	}
	return nil
}

// TickReport conta o que um tick fez
type TickReport struct {
	Created  int
	Started  int
	Locked   int
	Settled  int
	Deferred int
	Failed   int
}

type Scheduler struct {
	log    *zap.Logger
	store  *store.Store
	oracle oracle.Oracle
	engine *settlement.Engine
	clock  clock.Clock
	cfg    Config
	sink   hooks.EventSink
	runner *hooks.Runner

	mu       sync.Mutex // um tick por vez
	failures map[uuid.UUID]int

	// métricas
	OnTransition        func(transition string)
	OnSettlementFailure func()
	OnAlert             func()
}

func New(log *zap.Logger, s *store.Store, o oracle.Oracle, engine *settlement.Engine, clk clock.Clock, cfg Config,
	sink hooks.EventSink, runner *hooks.Runner) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		log:      log,
		store:    s,
		oracle:   o,
		engine:   engine,
		clock:    clk,
		cfg:      cfg,
		sink:     sink,
		runner:   runner,
		failures: make(map[uuid.UUID]int),
	}, nil
}

// Run executa um tick imediato e depois um por intervalo, até ctx ser cancelado
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("round_duration", s.cfg.RoundDuration),
		zap.Duration("lock_window", s.cfg.LockWindow),
		zap.Duration("start_buffer", s.cfg.StartBuffer))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		rep := s.Tick(ctx)
		if rep != (TickReport{}) {
			s.log.Debug("tick", zap.Any("report", rep))
		}
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick executa (a) início, (b) bloqueio e (c) liquidação, nessa ordem.
// Cada rodada é sua própria fronteira de erro: uma falha não impede as demais.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep TickReport
	now := s.clock.Now()

	if err := s.bootstrap(ctx, now, &rep); err != nil {
		s.log.Error("bootstrap failed", zap.Error(err))
	}

	// (a) UPCOMING -> ACTIVE
	s.each(ctx, model.RoundUpcoming, now, &rep, s.start)
	// (b) ACTIVE -> LOCKED
	s.each(ctx, model.RoundActive, now, &rep, s.lock)
	// (c) LOCKED -> COMPLETED
	s.each(ctx, model.RoundLocked, now, &rep, s.settle)

	return rep
}

func (s *Scheduler) each(ctx context.Context, status model.RoundStatus, now time.Time, rep *TickReport,
	fn func(ctx context.Context, r *model.Round, now time.Time, rep *TickReport) error) {
	due, err := s.store.ListRoundsDue(ctx, status, now)
	if err != nil {
		s.log.Error("list due rounds failed", zap.String("status", string(status)), zap.Error(err))
		return
	}
	if status == model.RoundLocked {
		s.pruneFailures(due)
	}
	for _, r := range due {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx, r, now, rep); err != nil {
			switch {
			case errors.Is(err, model.ErrStaleTransition):
				// outra execução chegou antes
				delete(s.failures, r.ID)
			case errors.Is(err, oracle.ErrPriceUnavailable):
				rep.Deferred++
				s.log.Warn("price unavailable, transition deferred",
					zap.String("round_id", r.ID.String()), zap.String("status", string(status)), zap.Error(err))
			default:
				rep.Failed++
				s.log.Error("round transition failed",
					zap.String("round_id", r.ID.String()), zap.String("status", string(status)), zap.Error(err))
			}
		}
	}
}

// bootstrap cria a primeira rodada quando não há nenhuma UPCOMING nem ACTIVE
func (s *Scheduler) bootstrap(ctx context.Context, now time.Time, rep *TickReport) error {
	var created *model.Round
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		upcoming, err := tx.CountRounds(ctx, model.RoundUpcoming)
		if err != nil {
			return err
		}
		active, err := tx.CountRounds(ctx, model.RoundActive)
		if err != nil {
			return err
		}
		if upcoming > 0 || active > 0 {
			return nil
		}
		created, err = tx.CreateRound(ctx, model.NewSchedule(now, s.cfg.RoundDuration, s.cfg.LockWindow), now)
		return err
	})
	if err != nil {
		return err
	}
	if created != nil {
		rep.Created++
		s.log.Info("bootstrap round created", zap.String("round_id", created.ID.String()), zap.Time("start_time", created.StartTime))
	}
	return nil
}

func (s *Scheduler) start(ctx context.Context, r *model.Round, now time.Time, rep *TickReport) error {
	var (
		price decimal.Decimal
		err   error
	)
	if s.cfg.PriceAtBoundary {
		price, err = s.oracle.PriceNear(ctx, r.StartTime)
	} else {
		price, err = s.oracle.CurrentPrice(ctx)
	}
	if err != nil {
		return err
	}

	var (
		started *model.Round
		next    *model.Round
	)
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.StartRound(ctx, r.ID, price, now); err != nil {
			return err
		}
		var err error
		if started, err = tx.GetRound(ctx, r.ID); err != nil {
			return err
		}
		next, err = s.ensureUpcoming(ctx, tx, now)
		return err
	})
	if err != nil {
		return err
	}

	rep.Started++
	s.transitioned("start")
	s.log.Info("round started",
		zap.String("round_id", started.ID.String()),
		zap.Int64("seq", started.Seq),
		zap.String("start_price", price.String()),
		zap.Time("lock_time", started.LockTime))

	if next != nil {
		rep.Created++
		s.log.Info("next round scheduled", zap.String("round_id", next.ID.String()), zap.Time("start_time", next.StartTime))
	}
	s.runner.RunAll(ctx, []hooks.Hook{hooks.Publish(s.sink, hooks.RoundEvent(events.RoundStarted, started, now))})
	return nil
}

// ensureUpcoming garante exatamente uma rodada UPCOMING; devolve a criada, se houver
func (s *Scheduler) ensureUpcoming(ctx context.Context, tx *store.Tx, now time.Time) (*model.Round, error) {
	n, err := tx.CountRounds(ctx, model.RoundUpcoming)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	return tx.CreateRound(ctx, model.NewSchedule(now.Add(s.cfg.StartBuffer), s.cfg.RoundDuration, s.cfg.LockWindow), now)
}

func (s *Scheduler) lock(ctx context.Context, r *model.Round, now time.Time, rep *TickReport) error {
	var locked *model.Round
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		// trava a linha antes da transição, na mesma ordem da admissão
		if _, err := tx.GetRoundForUpdate(ctx, r.ID); err != nil {
			return err
		}
		if err := tx.LockRound(ctx, r.ID, now); err != nil {
			return err
		}
		var err error
		locked, err = tx.GetRound(ctx, r.ID)
		return err
	})
	if err != nil {
		return err
	}

	rep.Locked++
	s.transitioned("lock")
	s.log.Info("round locked",
		zap.String("round_id", locked.ID.String()),
		zap.Int64("seq", locked.Seq),
		zap.String("up_stake_total", locked.UpStakeTotal.StringFixed(2)),
		zap.String("down_stake_total", locked.DownStakeTotal.StringFixed(2)))
	s.runner.RunAll(ctx, []hooks.Hook{hooks.Publish(s.sink, hooks.RoundEvent(events.RoundLocked, locked, now))})
	return nil
}

func (s *Scheduler) settle(ctx context.Context, r *model.Round, _ time.Time, rep *TickReport) error {
	_, err := s.engine.SettleRound(ctx, r.ID)

	var serr *settlement.SettlementError
	if errors.As(err, &serr) {
		s.settlementFailed(r.ID, serr)
		return err
	}
	if err != nil {
		return err
	}

	delete(s.failures, r.ID)
	rep.Settled++
	s.transitioned("settle")
	return nil
}

func (s *Scheduler) settlementFailed(id uuid.UUID, err error) {
	s.failures[id]++
	n := s.failures[id]
	if s.OnSettlementFailure != nil {
		s.OnSettlementFailure()
	}
	if n >= s.cfg.AlertThreshold {
		s.log.Error("settlement failing repeatedly",
			zap.String("round_id", id.String()),
			zap.Int("attempts", n),
			zap.Error(err))
		if s.OnAlert != nil {
			s.OnAlert()
		}
	}
}

// pruneFailures esquece contadores de rodadas que saíram de LOCKED por outro caminho
func (s *Scheduler) pruneFailures(due []*model.Round) {
	if len(s.failures) == 0 {
		return
	}
	locked := make(map[uuid.UUID]struct{}, len(due))
	for _, r := range due {
		locked[r.ID] = struct{}{}
	}
	for id := range s.failures {
		if _, ok := locked[id]; !ok {
			delete(s.failures, id)
		}
	}
}

// Failures devolve quantas liquidações seguidas falharam para a rodada
func (s *Scheduler) Failures(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[id]
}

func (s *Scheduler) transitioned(name string) {
	if s.OnTransition != nil {
		s.OnTransition(name)
	}
}
