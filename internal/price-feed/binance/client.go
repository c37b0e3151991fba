// Package binance consome o stream de velas de 1s da Binance e entrega cada
// atualização ao KlineSink configurado.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/pkg/contracts/prices"
)

// KlineSink recebe as velas decodificadas
type KlineSink interface {
	Save(ctx context.Context, k prices.Kline) error
}

// WSClient mantém a conexão com o stream <symbol>@kline_1s, reconectando com backoff
type WSClient struct {
	BaseURL string // ex.: wss://stream.binance.com:9443/ws
	Symbol  string // ex.: BTCUSDT
	Sink    KlineSink
	Log     *zap.Logger
	Backoff time.Duration

	OnKline func()       // métricas
	OnError func(string) // métricas: estágio
}

// StreamURL monta a URL do stream do símbolo
func (c *WSClient) StreamURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.ToLower(c.Symbol) + "@kline_1s"
}

// Start roda até ctx ser cancelado
func (c *WSClient) Start(ctx context.Context) {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 3 * time.Second
	}
	for {
		if err := c.connectAndListen(ctx); err != nil {
			c.Log.Warn("binance stream closed", zap.Error(err))
			c.fail("connection")
		}
		select {
		case <-ctx.Done():
			c.Log.Info("context canceled, stopping binance client")
			return
		case <-time.After(backoff): // aguarda antes de reconectar
		}
	}
}

func (c *WSClient) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.StreamURL(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.Log.Info("connected to binance stream", zap.String("url", c.StreamURL()))

	// a Binance derruba quem não responde os pings
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	// ReadMessage não observa ctx: fecha a conexão no cancelamento
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		k, err := ParseKline(message)
		if err != nil {
			c.Log.Warn("invalid kline message", zap.Error(err))
			c.fail("parse")
			continue
		}
		if err := c.Sink.Save(ctx, k); err != nil {
			c.Log.Error("failed to store kline", zap.Error(err))
			c.fail("store")
			continue
		}
		if c.OnKline != nil {
			c.OnKline()
		}
	}
}

func (c *WSClient) fail(stage string) {
	if c.OnError != nil {
		c.OnError(stage)
	}
}

// klineEvent é o payload do stream. Os campos que diferem só na caixa
// (t/T, l/L, v/V, e/E) precisam estar todos declarados: o decoder de JSON
// casa chaves sem diferenciar maiúsculas quando não há correspondência exata.
type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	K         struct {
		OpenTime    int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Open        string `json:"o"`
		High        string `json:"h"`
		Low         string `json:"l"`
		LastTradeID int64  `json:"L"`
		Close       string `json:"c"`
		Volume      string `json:"v"`
		TakerVolume string `json:"V"`
		Closed      bool   `json:"x"`
	} `json:"k"`
}

// ParseKline decodifica uma mensagem kline da Binance
func ParseKline(message []byte) (prices.Kline, error) {
	var ev klineEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return prices.Kline{}, fmt.Errorf("decode kline: %w", err)
	}
	if ev.EventType != "kline" {
		return prices.Kline{}, fmt.Errorf("unexpected event type %q", ev.EventType)
	}
	if ev.K.OpenTime == 0 || ev.K.CloseTime < ev.K.OpenTime {
		return prices.Kline{}, errors.New("kline without valid open/close time")
	}

	k := prices.Kline{
		Symbol:    ev.Symbol,
		OpenTime:  ev.K.OpenTime,
		CloseTime: ev.K.CloseTime,
		Closed:    ev.K.Closed,
	}
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&k.Open, ev.K.Open},
		{&k.High, ev.K.High},
		{&k.Low, ev.K.Low},
		{&k.Close, ev.K.Close},
		{&k.Volume, ev.K.Volume},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.src)
		if err != nil {
			return prices.Kline{}, fmt.Errorf("kline price %q: %w", f.src, err)
		}
		*f.dst = v
	}
	if !k.Close.IsPositive() {
		return prices.Kline{}, fmt.Errorf("non-positive close price %s", k.Close)
	}
	return k, nil
}
