package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"tableside/internal/logger"
	"tableside/internal/models"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn   *Connection
	logger *logger.Logger
}

// NewPublisher creates a new message publisher
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// PublishOrderEvent publishes a committed order event to the order events
// topic exchange. Events are transient UI updates, so they are not
// persisted by the broker.
func (p *Publisher) PublishOrderEvent(ctx context.Context, event models.OrderEvent) error {
	publishing, err := newPublishing(ctx, event, event.OrderID)
	if err != nil {
		return err
	}
	return p.publish(ctx, OrderEventsExchange, event.RoutingKey(), publishing)
}

// newPublishing encodes message as a transient JSON delivery. The request
// id travels in a header so consumers can log under the same id.
func newPublishing(ctx context.Context, message interface{}, correlationID string) (amqp091.Publishing, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	headers := amqp091.Table{"x-source": "order-service"}
	if requestID := logger.RequestID(ctx); requestID != "" {
		headers[requestIDHeader] = requestID
	}

	return amqp091.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp091.Transient,
		Timestamp:     time.Now().UTC(),
		MessageId:     uuid.NewString(),
		CorrelationId: correlationID,
		Headers:       headers,
	}, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, publishing amqp091.Publishing) error {
	requestID := logger.RequestID(ctx)

	// No channel fails fast; the reconnect runs in the background.
	channel := p.conn.Channel()
	if channel == nil {
		p.conn.ReconnectAsync()
		return fmt.Errorf("failed to publish message: %w", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := channel.PublishWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		publishing,
	)
	if err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to exchange %s", exchange),
			requestID, err, map[string]interface{}{
				"exchange":    exchange,
				"routing_key": routingKey,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to exchange %s", exchange),
		requestID, map[string]interface{}{
			"exchange":     exchange,
			"routing_key":  routingKey,
			"message_size": len(publishing.Body),
		})

	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	return p.conn.Close()
}
