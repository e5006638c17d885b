package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stocktracker/internal/models"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by symbol, so all
// events for one symbol land on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, now: time.Now}
}

// PublishStockRefreshed publishes the committed state of a refreshed stock.
func (p *KafkaPublisher) PublishStockRefreshed(ctx context.Context, stock *models.Stock) error {
	return p.publish(ctx, StockEvent{
		EventType: StockRefreshed,
		Symbol:    stock.Symbol,
		Stock:     stock,
		Timestamp: p.now().UTC(),
	})
}

// PublishStockRemoved publishes the removal of a stock.
func (p *KafkaPublisher) PublishStockRemoved(ctx context.Context, symbol string) error {
	return p.publish(ctx, StockEvent{
		EventType: StockRemoved,
		Symbol:    symbol,
		Timestamp: p.now().UTC(),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, event StockEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Symbol),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
