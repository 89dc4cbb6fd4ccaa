package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"stock-sim-go/internal/models"
)

// Event types
const (
	EventTradeBuy  = "TRADE_BUY"
	EventTradeSell = "TRADE_SELL"
)

// TradeEvent is the message published after a trade commits.
type TradeEvent struct {
	EventType string          `json:"event_type"`
	Owner     uint            `json:"owner"`
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTradeEvent builds the event for a ledger row.
func NewTradeEvent(t models.Transaction) TradeEvent {
	eventType := EventTradeBuy
	if !t.IsBuy() {
		eventType = EventTradeSell
	}
	return TradeEvent{
		EventType: eventType,
		Owner:     t.Owner,
		Symbol:    t.Symbol,
		Shares:    t.Amount,
		Price:     t.Price,
		Timestamp: t.Timestamp,
	}
}

// Publisher announces executed trades.
type Publisher interface {
	PublishTrade(ctx context.Context, t models.Transaction) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing trade events to Kafka.
type Producer struct {
	writer messageWriter
	topic  string
}

var _ Publisher = (*Producer)(nil)

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishTrade publishes a trade event keyed by symbol.
func (p *Producer) PublishTrade(ctx context.Context, t models.Transaction) error {
	data, err := json.Marshal(NewTradeEvent(t))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(t.Symbol),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) PublishTrade(context.Context, models.Transaction) error { return nil }
func (Nop) Close() error                                           { return nil }
