package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/updown-rounds/pkg/contracts/events"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

type countingSink struct {
	n   int
	err error
}

func (s *countingSink) PublishRoundEvent(context.Context, events.RoundEvent) error {
	s.n++
	return s.err
}

func TestKafkaPublisher_KeysByRound(t *testing.T) {
	w := &captureWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	e := events.RoundEvent{Type: events.RoundLocked, RoundID: "r-1", Seq: 7, Status: "LOCKED", Ts: time.Now().UTC()}
	require.NoError(t, p.PublishRoundEvent(context.Background(), e))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "r-1", string(w.msgs[0].Key))
	var got events.RoundEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, events.RoundLocked, got.Type)
	assert.Equal(t, int64(7), got.Seq)
}

func TestKafkaPublisher_Error(t *testing.T) {
	p := NewKafkaPublisher(&captureWriter{err: errors.New("no brokers")}, zap.NewNop())
	assert.Error(t, p.PublishRoundEvent(context.Background(), events.RoundEvent{RoundID: "r"}))
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	failing := &countingSink{err: errors.New("down")}
	ok := &countingSink{}

	err := Fanout{failing, ok}.PublishRoundEvent(context.Background(), events.RoundEvent{})
	assert.Error(t, err)
	assert.Equal(t, 1, failing.n)
	assert.Equal(t, 1, ok.n)
}
