// Package oracle fornece o preço de referência das rodadas.
package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable: sem amostra recente o suficiente. Transitório: a transição fica para o próximo tick.
var ErrPriceUnavailable = errors.New("price unavailable")

// Oracle nunca bloqueia indefinidamente; toda chamada tem timeout.
type Oracle interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
	// PriceNear devolve a amostra histórica mais próxima de t (melhor esforço)
	PriceNear(ctx context.Context, t time.Time) (decimal.Decimal, error)
}
