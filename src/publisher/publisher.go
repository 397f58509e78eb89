// Package publisher emits executed trades to Kafka as JSON events.
package publisher

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"orderbook-engine/src/engine"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TradeEvent struct {
	TradeID    string          `json:"trade_id"`
	BidOrderID engine.OrderID  `json:"bid_order_id"`
	BidPrice   engine.Price    `json:"bid_price"`
	AskOrderID engine.OrderID  `json:"ask_order_id"`
	AskPrice   engine.Price    `json:"ask_price"`
	Quantity   engine.Quantity `json:"quantity"`
	Timestamp  int64           `json:"timestamp"` // unix milliseconds
}

func NewTradeEvent(trade engine.Trade, now time.Time) TradeEvent {
	return TradeEvent{
		TradeID:    uuid.New().String(),
		BidOrderID: trade.Bid.OrderID,
		BidPrice:   trade.Bid.Price,
		AskOrderID: trade.Ask.OrderID,
		AskPrice:   trade.Ask.Price,
		Quantity:   trade.Bid.Quantity,
		Timestamp:  now.UnixMilli(),
	}
}

type Publisher struct {
	writer MessageWriter
}

func New(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// NewKafka writes to topic with acknowledgement from all in-sync replicas.
// Trades for the same bid order land on the same partition.
func NewKafka(brokers []string, topic string) *Publisher {
	return New(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

// Publish sends one message per trade. It is a no-op for an empty batch.
func (p *Publisher) Publish(ctx context.Context, trades engine.Trades) error {
	if len(trades) == 0 {
		return nil
	}

	now := time.Now()
	msgs := make([]kafka.Message, 0, len(trades))
	for _, trade := range trades {
		value, err := json.Marshal(NewTradeEvent(trade, now))
		if err != nil {
			return errors.Wrap(err, "encode trade event")
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatUint(uint64(trade.Bid.OrderID), 10)),
			Value: value,
			Time:  now,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrapf(err, "publish %d trades", len(msgs))
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
