package events

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Compile-time check: RabbitMQPublisher должен реализовывать Publisher
var _ Publisher = (*RabbitMQPublisher)(nil)

// RabbitMQConfig - конфигурация RabbitMQ publisher
type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Queue    string
}

// RabbitMQPublisher публикует события миграции в очередь RabbitMQ
type RabbitMQPublisher struct {
	config  RabbitMQConfig
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQPublisher создает RabbitMQ publisher
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue name is required for RabbitMQ")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5672
	}
	return &RabbitMQPublisher{config: cfg}, nil
}

// Connect устанавливает соединение и объявляет очередь.
// Объявление идемпотентно; параметры должны совпадать с существующей
// очередью.
func (p *RabbitMQPublisher) Connect(ctx context.Context) error {
	connStr := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		p.config.User, p.config.Password, p.config.Host, p.config.Port)

	conn, err := amqp.Dial(connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		p.config.Queue, // name
		true,           // durable
		false,          // auto-delete
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

// Publish отправляет событие в очередь
func (p *RabbitMQPublisher) Publish(ctx context.Context, ev Event) error {
	if p.channel == nil {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	data, err := marshalEvent(ev)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		"",             // exchange (default)
		p.config.Queue, // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.Timestamp,
		})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение
func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			return fmt.Errorf("failed to close channel: %w", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return nil
}
