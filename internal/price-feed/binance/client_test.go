package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "e": "kline", "E": 1767268801005, "s": "BTCUSDT",
  "k": {
    "t": 1767268800000, "T": 1767268800999, "s": "BTCUSDT", "i": "1s",
    "f": 100, "L": 200,
    "o": "94000.10000000", "c": "94001.55000000", "h": "94002.00000000", "l": "93999.90000000",
    "v": "1.25000000", "n": 100, "x": true,
    "q": "117501.93750000", "V": "0.50000000", "Q": "47000.77500000", "B": "0"
  }
}`

func TestParseKline(t *testing.T) {
	k, err := ParseKline([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", k.Symbol)
	assert.Equal(t, int64(1767268800000), k.OpenTime)
	assert.Equal(t, int64(1767268800999), k.CloseTime)
	assert.Equal(t, "94001.55", k.Close.String())
	assert.Equal(t, "93999.9", k.Low.String())
	assert.Equal(t, "1.25", k.Volume.String(), "taker volume must not overwrite volume")
	assert.True(t, k.Closed)
}

func TestParseKline_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"other event":    `{"e":"trade","s":"BTCUSDT"}`,
		"bad price":      `{"e":"kline","k":{"t":1,"T":2,"o":"x","h":"1","l":"1","c":"1","v":"1"}}`,
		"zero close":     `{"e":"kline","k":{"t":1,"T":2,"o":"1","h":"1","l":"1","c":"0","v":"1"}}`,
		"missing window": `{"e":"kline","k":{"o":"1","h":"1","l":"1","c":"1","v":"1"}}`,
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKline([]byte(msg))
			assert.Error(t, err)
		})
	}
}

func TestStreamURL(t *testing.T) {
	c := &WSClient{BaseURL: "wss://stream.binance.com:9443/ws/", Symbol: "BTCUSDT"}
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@kline_1s", c.StreamURL())
}
