// Package broker publishes settlement events to RabbitMQ for the
// notification dispatcher and other downstream consumers.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is implemented by event publishers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel. The exchange is
// declared once, as a durable topic exchange.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	mu       sync.Mutex
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *EventProducer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", routingKey, err)
	}

	// amqp091 channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         payload,
		Timestamp:    time.Now(),
	})
}

func (p *EventProducer) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// LogPublisher is used when RabbitMQ is not configured or unreachable. It
// only logs the event.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.With(zap.String("publisher", "fallback"))}
}

func (p *LogPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	p.log.Info("Event not sent to broker", zap.String("routing_key", routingKey), zap.Any("body", body))
	return nil
}

func (p *LogPublisher) Close() {}

// Connect returns a RabbitMQ producer, or a LogPublisher when url is empty or
// the broker cannot be reached.
func Connect(amqpURL, exchange string, log *zap.Logger) Publisher {
	if amqpURL == "" {
		log.Warn("BROKER_URL not set, events will only be logged")
		return NewLogPublisher(log)
	}

	producer, err := NewEventProducer(amqpURL, exchange)
	if err != nil {
		log.Error("Failed to connect to RabbitMQ, events will only be logged", zap.Error(err))
		return NewLogPublisher(log)
	}

	log.Info("RabbitMQ publisher ready", zap.String("exchange", exchange))
	return producer
}
