package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"tableside/internal/config"
	"tableside/internal/logger"
)

// ErrUnavailable reports that the broker connection is down. A reconnect
// may already be under way in the background.
var ErrUnavailable = errors.New("rabbitmq connection unavailable")

// Connection is a RabbitMQ connection and channel that can be re-dialled
// after the broker drops them. Dialling happens without holding mu, so
// callers reading the channel never wait on the network.
type Connection struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	closed  bool
	logger  *logger.Logger
	url     string

	reconnecting atomic.Bool
	// lifetime ends on Close and stops background reconnects.
	lifetime context.Context
	stop     context.CancelFunc
}

func newConnection(url string, log *logger.Logger) *Connection {
	lifetime, stop := context.WithCancel(context.Background())
	return &Connection{logger: log, url: url, lifetime: lifetime, stop: stop}
}

// New connects to the broker named by cfg and declares the order event
// topology. Cancelling ctx abandons the initial retries.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	conn := newConnection(cfg.RabbitMQURL(), log)
	if err := conn.connect(ctx); err != nil {
		conn.stop()
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return conn, nil
}

const (
	connectAttempts = 5
	dialTimeout     = 5 * time.Second
)

// connect dials the broker, retrying with a growing pause until ctx ends.
func (c *Connection) connect(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		var (
			conn    *amqp091.Connection
			channel *amqp091.Channel
		)
		if conn, channel, err = c.dial(); err == nil {
			return c.install(conn, channel)
		}
		if attempt == connectAttempts {
			break
		}

		wait := time.Duration(attempt) * 2 * time.Second
		c.logger.Error("rabbitmq_connection_failed",
			fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", wait),
			"startup", err, map[string]interface{}{"attempt": attempt})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", connectAttempts, err)
}

func (c *Connection) dial() (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.DialConfig(c.url, amqp091.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp091.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := setupTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, channel, nil
}

// install swaps in a fresh connection, unless Close won the race.
func (c *Connection) install(conn *amqp091.Connection, channel *amqp091.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		channel.Close()
		conn.Close()
		return ErrUnavailable
	}
	c.close()
	c.conn, c.channel = conn, channel
	return nil
}

const (
	// OrderEventsExchange is the topic exchange committed order events
	// are published to, routed by "order.<event type>".
	OrderEventsExchange = "order_events"

	// BroadcastQueue feeds the external real-time broadcaster.
	BroadcastQueue = "order_broadcast_queue"

	requestIDHeader = "x-request-id"
)

// setupTopology declares the order events exchange and broadcast queue.
func setupTopology(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		OrderEventsExchange, // name
		"topic",             // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", OrderEventsExchange, err)
	}

	_, err = ch.QueueDeclare(
		BroadcastQueue, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		amqp091.Table{
			"x-message-ttl": 300000, // stale UI updates are useless after 5 minutes
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", BroadcastQueue, err)
	}

	err = ch.QueueBind(
		BroadcastQueue,      // queue name
		"order.#",           // routing key
		OrderEventsExchange, // exchange
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", BroadcastQueue, err)
	}

	return nil
}

// Channel returns the current channel, or nil while disconnected.
func (c *Connection) Channel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.channel
}

// Close closes the connection and stops any background reconnect.
func (c *Connection) Close() error {
	c.stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.close()
}

// close releases the current connection. Callers hold c.mu.
func (c *Connection) close() error {
	var err error
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	return err
}

// IsClosed reports whether there is no usable connection.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.conn.IsClosed()
}

// Reconnect re-dials the broker, giving up when ctx ends.
func (c *Connection) Reconnect(ctx context.Context) error {
	return c.connect(ctx)
}

// ReconnectAsync starts a background reconnect unless one is running and
// returns immediately. The attempt ends with the connection's lifetime.
func (c *Connection) ReconnectAsync() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.reconnecting.Store(false)
		if err := c.connect(c.lifetime); err != nil {
			c.logger.Error("rabbitmq_reconnect_failed", "Background reconnect to RabbitMQ failed", "", err, nil)
			return
		}
		c.logger.Info("rabbitmq_reconnected", "Reconnected to RabbitMQ", "", nil)
	}()
}
