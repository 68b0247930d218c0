package models

import (
	"fmt"
	"time"
)

// EventType names a committed change that connected clients care about.
type EventType string

const (
	EventOrderOpened       EventType = "order_opened"
	EventParticipantJoined EventType = "participant_joined"
	EventItemAdded         EventType = "item_added"
	EventItemRemoved       EventType = "item_removed"
	EventItemAdvanced      EventType = "item_advanced"
	EventOrderTransitioned EventType = "order_transitioned"
	EventLocaleChanged     EventType = "locale_changed"
)

// OrderEvent is published after a mutation commits. InvalidationKeys are
// the stable entity ids that caches keyed on this order should drop.
type OrderEvent struct {
	Type             EventType    `json:"type"`
	OrderID          string       `json:"order_id"`
	RestaurantID     string       `json:"restaurant_id"`
	TableID          string       `json:"table_id"`
	MenuID           string       `json:"menu_id"`
	ParticipantID    string       `json:"participant_id,omitempty"`
	LineID           string       `json:"line_id,omitempty"`
	Action           Action       `json:"action,omitempty"`
	Status           OrderStatus  `json:"status"`
	PreviousStatus   *OrderStatus `json:"previous_status,omitempty"`
	LineStatus       *LineStatus  `json:"line_status,omitempty"`
	OccurredAt       time.Time    `json:"occurred_at"`
	InvalidationKeys []string     `json:"invalidation_keys"`
}

// NewOrderEvent builds an event for the given order with its base
// invalidation keys.
func NewOrderEvent(eventType EventType, order Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:         eventType,
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		TableID:      order.TableID,
		MenuID:       order.MenuID,
		Status:       order.Status,
		OccurredAt:   at,
		InvalidationKeys: []string{
			"order:" + order.ID,
			fmt.Sprintf("table:%s:%s:%s", order.RestaurantID, order.TableID, order.MenuID),
		},
	}
}

// WithLine attaches a line to the event and its invalidation key.
func (e OrderEvent) WithLine(line OrderLine) OrderEvent {
	status := line.Status
	e.LineID = line.ID
	e.LineStatus = &status
	e.InvalidationKeys = append(e.InvalidationKeys, "order_line:"+line.ID)
	return e
}

// RoutingKey returns the topic routing key for the event.
func (e OrderEvent) RoutingKey() string {
	return fmt.Sprintf("order.%s", e.Type)
}
