// Package hooks define os colaboradores externos acionados depois do commit
// (comissão de indicação e eventos de ciclo de vida) e o executor que isola
// cada um deles: uma falha aqui é logada e descartada, nunca desfaz a
// movimentação de saldo que já foi confirmada.
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

// CommissionHook é o serviço de comissões de indicação.
// As duas chamadas devem ser idempotentes em betID: uma liquidação repetida pode reenviá-las.
type CommissionHook interface {
	OnFirstBet(ctx context.Context, userID string, betID uuid.UUID, stake decimal.Decimal) error
	OnBetLost(ctx context.Context, userID string, betID uuid.UUID, stake decimal.Decimal) error
}

// EventSink recebe os eventos de ciclo de vida (entrega at-least-once)
type EventSink interface {
	PublishRoundEvent(ctx context.Context, e events.RoundEvent) error
}

// Hook é um efeito colateral pós-commit
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Runner executa hooks pós-commit, cada um com sua própria fronteira de erro
type Runner struct {
	log     *zap.Logger
	timeout time.Duration

	OnFailure func(hook string) // métricas
}

func NewRunner(log *zap.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Runner{log: log, timeout: timeout}
}

// RunAll executa a lista em ordem. Nunca retorna erro.
func (r *Runner) RunAll(ctx context.Context, hooks []Hook) {
	for _, h := range hooks {
		r.run(ctx, h)
	}
}

func (r *Runner) run(ctx context.Context, h Hook) {
	// o hook não herda o cancelamento da requisição que já foi confirmada
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		return h.Fn(hctx)
	}()
	if err != nil {
		r.log.Warn("post-commit hook failed", zap.String("hook", h.Name), zap.Error(err))
		if r.OnFailure != nil {
			r.OnFailure(h.Name)
		}
	}
}

// NopCommission descarta as notificações de comissão
type NopCommission struct{}

func (NopCommission) OnFirstBet(context.Context, string, uuid.UUID, decimal.Decimal) error { return nil }
func (NopCommission) OnBetLost(context.Context, string, uuid.UUID, decimal.Decimal) error { return nil }

// NopSink descarta eventos
type NopSink struct{}

func (NopSink) PublishRoundEvent(context.Context, events.RoundEvent) error { return nil }
