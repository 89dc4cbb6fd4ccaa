package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-sim-go/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishTrade(t *testing.T) {
	writer := &fakeWriter{}
	p := &Producer{writer: writer, topic: "trade-events"}

	ts := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	err := p.PublishTrade(context.Background(), models.Transaction{
		Owner:     7,
		Symbol:    "AAPL",
		Price:     decimal.RequireFromString("99.99"),
		Amount:    -3,
		Timestamp: ts,
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "AAPL", string(msg.Key))

	var event TradeEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, EventTradeSell, event.EventType)
	assert.Equal(t, uint(7), event.Owner)
	assert.Equal(t, int64(-3), event.Shares)
	assert.True(t, decimal.RequireFromString("99.99").Equal(event.Price))
	assert.True(t, ts.Equal(event.Timestamp))

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestProducer_PublishTradeError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, topic: "trade-events"}
	err := p.PublishTrade(context.Background(), models.Transaction{Symbol: "AAPL", Amount: 1})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewTradeEvent_Buy(t *testing.T) {
	event := NewTradeEvent(models.Transaction{Symbol: "MSFT", Amount: 4})
	assert.Equal(t, EventTradeBuy, event.EventType)
}
