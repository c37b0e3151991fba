package prices

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kline é uma vela de 1s gravada pelo price-feed e lida pelo oracle
type Kline struct {
	Symbol    string          `json:"symbol"`
	OpenTime  int64           `json:"open_time"` // unix ms
	CloseTime int64           `json:"close_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Closed    bool            `json:"closed"`
}

// CloseAt devolve o horário de fechamento da vela
func (k Kline) CloseAt() time.Time { return time.UnixMilli(k.CloseTime).UTC() }

// Key é o sorted set (score = OpenTime) com as velas recentes de um símbolo
func Key(symbol string) string { return "klines:" + symbol }
