// Package simulator gera velas de 1s com um passeio aleatório, para rodar o
// ambiente local sem depender da Binance.
package simulator

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/internal/price-feed/binance"
	"github.com/radieske/updown-rounds/pkg/contracts/prices"
)

// Walk produz uma vela por passo a partir do último fechamento
type Walk struct {
	Symbol string
	// variação máxima por passo, em fração do preço (ex.: 0.0005)
	MaxStep float64

	rng  *rand.Rand
	last decimal.Decimal
}

func NewWalk(symbol string, start decimal.Decimal, maxStep float64, seed int64) *Walk {
	return &Walk{Symbol: symbol, MaxStep: maxStep, rng: rand.New(rand.NewSource(seed)), last: start}
}

// rnd gera número aleatório entre min e max
func (w *Walk) rnd(min, max float64) float64 {
	return (w.rng.Float64() * (max - min)) + min
}

// Next gera a vela que abre em openTime
func (w *Walk) Next(openTime time.Time) prices.Kline {
	open := w.last
	step := decimal.NewFromFloat(w.rnd(-w.MaxStep, w.MaxStep))
	closePrice := open.Add(open.Mul(step)).Round(2)
	if !closePrice.IsPositive() {
		closePrice = open
	}

	high, low := decimal.Max(open, closePrice), decimal.Min(open, closePrice)
	wick := decimal.NewFromFloat(w.rnd(0, w.MaxStep/2))
	high = high.Add(high.Mul(wick)).Round(2)
	low = low.Sub(low.Mul(wick)).Round(2)

	w.last = closePrice
	return prices.Kline{
		Symbol:    w.Symbol,
		OpenTime:  openTime.UnixMilli(),
		CloseTime: openTime.Add(time.Second).UnixMilli() - 1,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    decimal.NewFromFloat(w.rnd(0.1, 5)).Round(8),
		Closed:    true,
	}
}

// Run grava uma vela por segundo no sink até ctx ser cancelado
func (w *Walk) Run(ctx context.Context, sink binance.KlineSink, log *zap.Logger, onKline func()) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	log.Info("price simulator running", zap.String("symbol", w.Symbol), zap.String("start", w.last.String()))
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			k := w.Next(now.UTC().Truncate(time.Second))
			if err := sink.Save(ctx, k); err != nil {
				log.Warn("simulated kline not stored", zap.Error(err))
				continue
			}
			if onKline != nil {
				onKline()
			}
		}
	}
}
