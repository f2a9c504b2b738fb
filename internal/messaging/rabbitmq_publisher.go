package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// DefaultExchange - fanout exchange событий консоли.
const DefaultExchange = "console_events"

// RabbitMQPublisher публикует ConsoleEvent в fanout exchange.
// Соединение создается и переподключается внешним кодом.
type RabbitMQPublisher struct {
	ch       *amqp091.Channel
	exchange string
	mu       sync.Mutex
}

// NewRabbitMQPublisher открывает канал и объявляет durable fanout exchange.
func NewRabbitMQPublisher(conn *amqp091.Connection, exchange string) (*RabbitMQPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open a channel")
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		log.Error().Err(err).Str("exchange", exchange).Msg("Failed to declare exchange")
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("Console events exchange declared successfully")
	return &RabbitMQPublisher{ch: ch, exchange: exchange}, nil
}

// Publish публикует событие. amqp091.Channel не безопасен для конкурентной публикации, отсюда mutex.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event ConsoleEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Interface("event", event).Msg("Failed to marshal console event")
		return fmt.Errorf("failed to marshal console event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		"",         // routing key (не используется для fanout)
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   event.OccurredAt,
			MessageId:   uuid.NewString(),
			Type:        string(event.Type),
		},
	)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to publish console event")
		return fmt.Errorf("failed to publish console event: %w", err)
	}

	log.Debug().Str("type", string(event.Type)).Str("run_id", event.RunID).Msg("Console event published")
	return nil
}

// Close закрывает канал RabbitMQ.
func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

var _ EventPublisher = (*RabbitMQPublisher)(nil)
