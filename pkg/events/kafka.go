package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Compile-time check: KafkaPublisher должен реализовывать Publisher
var _ Publisher = (*KafkaPublisher)(nil)

// KafkaConfig - конфигурация Kafka publisher
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher публикует события миграции в Kafka topic
type KafkaPublisher struct {
	config KafkaConfig
	writer *kafka.Writer
}

// NewKafkaPublisher создает Kafka publisher
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic name is required for Kafka")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required for Kafka")
	}
	return &KafkaPublisher{config: cfg}, nil
}

// Connect создает Writer для отправки событий
func (p *KafkaPublisher) Connect(ctx context.Context) error {
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        p.config.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne, // события некритичны, ждать все реплики незачем
		Async:        false,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
	return nil
}

// Publish отправляет событие в topic.
// Ключ - имя запуска: события одного запуска попадают в одну партицию
// и сохраняют порядок.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if p.writer == nil {
		return fmt.Errorf("not connected to Kafka")
	}

	data, err := marshalEvent(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.Run),
		Value: data,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to Kafka: %w", err)
	}
	return nil
}

// Close закрывает Writer
func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			return fmt.Errorf("failed to close writer: %w", err)
		}
	}
	return nil
}
