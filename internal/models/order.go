package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is persisted as a small integer; values are ordered by
// lifecycle progress.
type OrderStatus int16

const (
	OrderOpened        OrderStatus = 0
	OrderOrdered       OrderStatus = 10
	OrderDelivered     OrderStatus = 20
	OrderBillRequested OrderStatus = 30
	OrderPaid          OrderStatus = 40
	OrderClosed        OrderStatus = 50
)

var orderStatusNames = map[OrderStatus]string{
	OrderOpened:        "opened",
	OrderOrdered:       "ordered",
	OrderDelivered:     "delivered",
	OrderBillRequested: "bill_requested",
	OrderPaid:          "paid",
	OrderClosed:        "closed",
}

// ParseOrderStatus validates a stored status value.
func ParseOrderStatus(raw int16) (OrderStatus, error) {
	s := OrderStatus(raw)
	if _, ok := orderStatusNames[s]; !ok {
		return 0, fmt.Errorf("order status %d: %w", raw, ErrCorruptStatus)
	}
	return s, nil
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("order_status(%d)", int16(s))
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	if _, ok := orderStatusNames[s]; !ok {
		return nil, fmt.Errorf("order status %d: %w", int16(s), ErrCorruptStatus)
	}
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(text []byte) error {
	for status, name := range orderStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return ValidationError{Field: "status", Message: fmt.Sprintf("unknown order status %q", text)}
}

// IsActive reports whether the order still counts against the single
// active order per table and menu.
func (s OrderStatus) IsActive() bool {
	return s < OrderPaid
}

// Admits reports whether a new participant with role may join. Staff can
// still join a paid order so that any till can close it.
func (s OrderStatus) Admits(role Role) bool {
	return s.IsActive() || (s == OrderPaid && role == RoleStaff)
}

// AcceptsItems reports whether diners may still add or remove lines.
func (s OrderStatus) AcceptsItems() bool {
	return s == OrderOpened || s == OrderOrdered || s == OrderDelivered
}

// OrderTrigger names an order-level state machine event.
type OrderTrigger string

const (
	TriggerPlaceOrder  OrderTrigger = "place_order"
	TriggerDeliver     OrderTrigger = "deliver"
	TriggerRequestBill OrderTrigger = "request_bill"
	TriggerPay         OrderTrigger = "pay"
	TriggerClose       OrderTrigger = "close"
)

var orderTransitions = map[OrderStatus]map[OrderTrigger]OrderStatus{
	OrderOpened: {
		TriggerPlaceOrder:  OrderOrdered,
		TriggerRequestBill: OrderBillRequested,
	},
	OrderOrdered: {
		TriggerDeliver:     OrderDelivered,
		TriggerRequestBill: OrderBillRequested,
	},
	OrderDelivered: {
		TriggerRequestBill: OrderBillRequested,
	},
	OrderBillRequested: {
		TriggerPay: OrderPaid,
	},
	OrderPaid: {
		TriggerClose: OrderClosed,
	},
}

// NextOrderStatus returns the target of trigger from the given state, or
// a *TransitionError when the pair is not in the transition table.
func NextOrderStatus(from OrderStatus, trigger OrderTrigger) (OrderStatus, error) {
	if to, ok := orderTransitions[from][trigger]; ok {
		return to, nil
	}
	return from, &TransitionError{Entity: "order", From: from.String(), Event: string(trigger)}
}

// Action returns the action log entry recorded for a trigger.
func (t OrderTrigger) Action() Action {
	return Action(t)
}

// Order is the root aggregate of one table's dining session.
type Order struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurant_id"`
	TableID      string          `json:"table_id"`
	MenuID       string          `json:"menu_id"`
	Status       OrderStatus     `json:"status"`
	Nett         decimal.Decimal `json:"nett"`
	Tax          decimal.Decimal `json:"tax"`
	Service      decimal.Decimal `json:"service"`
	Tip          decimal.Decimal `json:"tip"`
	Gross        decimal.Decimal `json:"gross"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	OrderedAt       *time.Time `json:"ordered_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	BillRequestedAt *time.Time `json:"bill_requested_at,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Transition applies trigger at the given instant, stamping the
// timestamp of the edge taken. The order is left untouched on error.
func (o *Order) Transition(trigger OrderTrigger, at time.Time) error {
	to, err := NextOrderStatus(o.Status, trigger)
	if err != nil {
		return err
	}

	stamp := at
	switch to {
	case OrderOrdered:
		o.OrderedAt = &stamp
	case OrderDelivered:
		o.DeliveredAt = &stamp
	case OrderBillRequested:
		o.BillRequestedAt = &stamp
	case OrderPaid:
		o.PaidAt = &stamp
	case OrderClosed:
		o.ClosedAt = &stamp
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// TableKey identifies the table session an order belongs to.
type TableKey struct {
	RestaurantID string `json:"restaurant_id"`
	TableID      string `json:"table_id"`
	MenuID       string `json:"menu_id"`
}

func (k TableKey) Validate() error {
	if k.RestaurantID == "" {
		return ValidationError{Field: "restaurant_id", Message: "restaurant id is required"}
	}
	if k.TableID == "" {
		return ValidationError{Field: "table_id", Message: "table id is required"}
	}
	if k.MenuID == "" {
		return ValidationError{Field: "menu_id", Message: "menu id is required"}
	}
	return nil
}

// OrderSummary is the read model returned to callers: the aggregate plus
// its lines and derived counts.
type OrderSummary struct {
	Order          Order           `json:"order"`
	Lines          []OrderLine     `json:"lines"`
	RunningTotal   decimal.Decimal `json:"running_total"`
	ActiveItems    int             `json:"active_items"`
	OrderedCount   int             `json:"ordered_count"`
	PreparedCount  int             `json:"prepared_count"`
	DeliveredCount int             `json:"delivered_count"`
	DinerCount     int             `json:"diner_count"`
}

// Summarize derives the read model from an order, its lines and its
// participants.
func Summarize(order Order, lines Lines, participants []Participant) OrderSummary {
	if lines == nil {
		lines = Lines{}
	}
	return OrderSummary{
		Order:          order,
		Lines:          lines,
		RunningTotal:   lines.RunningTotal(),
		ActiveItems:    lines.CountAtLeast(LineAdded),
		OrderedCount:   lines.CountAtLeast(LineOrdered),
		PreparedCount:  lines.CountAtLeast(LineReady),
		DeliveredCount: lines.CountAtLeast(LineDelivered),
		DinerCount:     DinerCount(participants),
	}
}
