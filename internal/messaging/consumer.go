package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"tableside/internal/logger"
)

// MessageHandler processes one delivery body. Returning an error nacks it.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer reads one queue with manual acknowledgement.
type Consumer struct {
	conn        *Connection
	logger      *logger.Logger
	queueName   string
	consumerTag string
	prefetch    int
}

// NewConsumer creates a new message consumer
func NewConsumer(conn *Connection, log *logger.Logger, queueName, consumerTag string, prefetch int) *Consumer {
	return &Consumer{
		conn:        conn,
		logger:      log,
		queueName:   queueName,
		consumerTag: consumerTag,
		prefetch:    prefetch,
	}
}

// StartConsuming delivers messages to handler until ctx is cancelled.
// When the broker closes the delivery channel the consumer reconnects
// and subscribes again.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	for {
		msgs, err := c.subscribe(ctx)
		if err != nil {
			return err
		}

		if done, err := c.drain(ctx, msgs, handler); done {
			return err
		}

		c.logger.Error("consumer_channel_closed", "Message channel closed, attempting to reconnect", "", nil, map[string]interface{}{
			"queue": c.queueName,
		})
		if err := c.conn.Reconnect(ctx); err != nil {
			return fmt.Errorf("failed to reconnect after channel closed: %w", err)
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp091.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		if err := c.conn.Reconnect(ctx); err != nil {
			return nil, fmt.Errorf("failed to reconnect: %w", err)
		}
		if ch = c.conn.Channel(); ch == nil {
			return nil, ErrUnavailable
		}
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,   // queue
		c.consumerTag, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("consumer_started", fmt.Sprintf("Started consuming from queue %s", c.queueName), "", map[string]interface{}{
		"queue":    c.queueName,
		"consumer": c.consumerTag,
		"prefetch": c.prefetch,
	})
	return msgs, nil
}

// drain processes msgs until ctx ends (done) or the channel closes.
func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler MessageHandler) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer_stopped", "Consumer stopped by context", "", nil)
			return true, ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return false, nil
			}
			c.processMessage(ctx, d, handler)
		}
	}
}

// processMessage runs handler on one delivery, acking on success. A
// failed delivery is requeued once and dropped on its second failure.
func (c *Consumer) processMessage(ctx context.Context, delivery amqp091.Delivery, handler MessageHandler) {
	startTime := time.Now()
	requestID := deliveryRequestID(delivery)
	fields := map[string]interface{}{
		"queue":        c.queueName,
		"routing_key":  delivery.RoutingKey,
		"delivery_tag": delivery.DeliveryTag,
	}

	c.logger.Debug("message_received", "Processing message", requestID, map[string]interface{}{
		"queue":        c.queueName,
		"routing_key":  delivery.RoutingKey,
		"message_size": len(delivery.Body),
	})

	processingCtx, cancel := context.WithTimeout(logger.WithRequestID(ctx, requestID), 30*time.Second)
	defer cancel()

	err := handler(processingCtx, delivery.Body)
	fields["duration_ms"] = time.Since(startTime).Milliseconds()

	if err != nil {
		fields["redelivered"] = delivery.Redelivered
		c.logger.Error("message_processing_failed", "Failed to process message", requestID, err, fields)

		if nackErr := delivery.Nack(false, !delivery.Redelivered); nackErr != nil {
			c.logger.Error("message_nack_failed", "Failed to nack message", requestID, nackErr, nil)
		}
		return
	}

	c.logger.Debug("message_processed", "Successfully processed message", requestID, fields)
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("message_ack_failed", "Failed to ack message", requestID, ackErr, nil)
	}
}

// deliveryRequestID returns the publisher's request id, or a fresh one for
// deliveries that carry none.
func deliveryRequestID(delivery amqp091.Delivery) string {
	if id, ok := delivery.Headers[requestIDHeader].(string); ok && id != "" {
		return id
	}
	return logger.GenerateRequestID()
}

// Close stops consuming messages
func (c *Consumer) Close() error {
	if c.conn == nil {
		return nil
	}
	if ch := c.conn.Channel(); ch != nil {
		if err := ch.Cancel(c.consumerTag, false); err != nil {
			c.logger.Error("consumer_cancel_failed", "Failed to cancel consumer", "", err, nil)
		}
	}
	return c.conn.Close()
}
