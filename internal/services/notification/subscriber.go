package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"tableside/internal/logger"
	"tableside/internal/messaging"
	"tableside/internal/models"
)

// Subscriber consumes committed order events and writes a readable line
// for each to out, the way a floor display or log tail would show them.
type Subscriber struct {
	consumer *messaging.Consumer
	logger   *logger.Logger
	out      io.Writer
}

// NewSubscriber creates a new notification subscriber
func NewSubscriber(consumer *messaging.Consumer, log *logger.Logger, out io.Writer) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   log,
		out:      out,
	}
}

// Start consumes until ctx is cancelled or the consumer gives up.
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	err := s.consumer.StartConsuming(ctx, s.handleEvent)
	if ctx.Err() != nil {
		return s.gracefulShutdown(requestID)
	}
	if err != nil {
		s.logger.Error("consumer_failed", "Notification consumer failed", requestID, err, nil)
		return err
	}
	return nil
}

// handleEvent processes one order event delivery.
func (s *Subscriber) handleEvent(ctx context.Context, body []byte) error {
	requestID := logger.RequestID(ctx)

	var event models.OrderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse order event", requestID, err, nil)
		return fmt.Errorf("failed to parse order event: %w", err)
	}

	s.logger.Debug("notification_received", "Received order event", requestID, map[string]interface{}{
		"event_type": event.Type,
		"order_id":   event.OrderID,
		"status":     event.Status.String(),
	})

	fmt.Fprintln(s.out, formatNotification(event))

	s.logger.Info("notification_displayed", "Order event displayed", requestID, map[string]interface{}{
		"event_type":        event.Type,
		"order_id":          event.OrderID,
		"table_id":          event.TableID,
		"invalidation_keys": event.InvalidationKeys,
		"timestamp":         event.OccurredAt.Format("2006-01-02 15:04:05"),
	})
	return nil
}

// formatNotification renders an event as one human-readable line.
func formatNotification(event models.OrderEvent) string {
	timestamp := event.OccurredAt.Format("2006-01-02 15:04:05")
	table := fmt.Sprintf("table %s/%s", event.RestaurantID, event.TableID)

	switch event.Type {
	case models.EventOrderOpened:
		return fmt.Sprintf("[%s] New order %s opened at %s.", timestamp, event.OrderID, table)
	case models.EventParticipantJoined:
		return fmt.Sprintf("[%s] Participant %s joined the order at %s.", timestamp, event.ParticipantID, table)
	case models.EventItemAdded:
		return fmt.Sprintf("[%s] Item %s added at %s.", timestamp, event.LineID, table)
	case models.EventItemRemoved:
		return fmt.Sprintf("[%s] Item %s removed at %s.", timestamp, event.LineID, table)
	case models.EventItemAdvanced:
		if event.LineStatus != nil {
			return fmt.Sprintf("[%s] Item %s at %s is now %s.", timestamp, event.LineID, table, event.LineStatus)
		}
		return fmt.Sprintf("[%s] Item %s at %s advanced.", timestamp, event.LineID, table)
	case models.EventOrderTransitioned:
		if event.PreviousStatus != nil {
			return fmt.Sprintf("[%s] Order at %s moved from '%s' to '%s'.", timestamp, table, event.PreviousStatus, event.Status)
		}
		return fmt.Sprintf("[%s] Order at %s is now '%s'.", timestamp, table, event.Status)
	case models.EventLocaleChanged:
		return fmt.Sprintf("[%s] Participant %s changed language at %s.", timestamp, event.ParticipantID, table)
	default:
		return fmt.Sprintf("[%s] Order %s: %s.", timestamp, event.OrderID, event.Type)
	}
}

func (s *Subscriber) gracefulShutdown(requestID string) error {
	s.logger.Info("graceful_shutdown", "Starting graceful shutdown", requestID, nil)

	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.logger.Error("shutdown_failed", "Failed to close consumer", requestID, err, nil)
		}
	}

	s.logger.Info("graceful_shutdown", "Graceful shutdown completed", requestID, nil)
	return nil
}
