package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LineStatus is an ordinal enum: a higher value means further along in
// fulfilment, except LineRemoved which is terminal and excluded from
// every progress count.
type LineStatus int16

const (
	LineAdded     LineStatus = 0
	LineRemoved   LineStatus = 10
	LineOrdered   LineStatus = 20
	LinePreparing LineStatus = 22
	LineReady     LineStatus = 24
	LineDelivered LineStatus = 40
)

var lineStatusNames = map[LineStatus]string{
	LineAdded:     "added",
	LineRemoved:   "removed",
	LineOrdered:   "ordered",
	LinePreparing: "preparing",
	LineReady:     "ready",
	LineDelivered: "delivered",
}

func ParseLineStatus(raw int16) (LineStatus, error) {
	s := LineStatus(raw)
	if _, ok := lineStatusNames[s]; !ok {
		return 0, fmt.Errorf("line status %d: %w", raw, ErrCorruptStatus)
	}
	return s, nil
}

func (s LineStatus) String() string {
	if name, ok := lineStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("line_status(%d)", int16(s))
}

func (s LineStatus) MarshalText() ([]byte, error) {
	if _, ok := lineStatusNames[s]; !ok {
		return nil, fmt.Errorf("line status %d: %w", int16(s), ErrCorruptStatus)
	}
	return []byte(s.String()), nil
}

func (s *LineStatus) UnmarshalText(text []byte) error {
	for status, name := range lineStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return ValidationError{Field: "status", Message: fmt.Sprintf("unknown line status %q", text)}
}

// Removable reports whether a line in this state may still be removed:
// only lines the kitchen has not picked up.
func (s LineStatus) Removable() bool {
	return s == LineAdded || s == LineOrdered
}

// CheckLineAdvance validates a fulfilment move. Progress is forward only
// and never enters or leaves LineRemoved.
func CheckLineAdvance(from, to LineStatus) error {
	if _, ok := lineStatusNames[to]; !ok || to == LineRemoved || from == LineRemoved || to <= from {
		return &TransitionError{Entity: "order line", From: from.String(), Event: "advance to " + to.String()}
	}
	return nil
}

// OrderLine is one ordered or candidate menu item within an order.
// PriceSnapshot is captured when the line is added and never rewritten.
type OrderLine struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	MenuItemID    string          `json:"menu_item_id"`
	ParticipantID string          `json:"participant_id"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	Status        LineStatus      `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Lines []OrderLine

// CountAtLeast counts lines at or beyond threshold, ignoring removed ones.
func (ls Lines) CountAtLeast(threshold LineStatus) int {
	n := 0
	for _, l := range ls {
		if l.Status != LineRemoved && l.Status >= threshold {
			n++
		}
	}
	return n
}

// RunningTotal sums price snapshots of every non-removed line.
func (ls Lines) RunningTotal() decimal.Decimal {
	return decimal.Sum(decimal.Zero, ls.ActivePrices()...)
}

// ActivePrices returns the price snapshots of non-removed lines.
func (ls Lines) ActivePrices() []decimal.Decimal {
	prices := make([]decimal.Decimal, 0, len(ls))
	for _, l := range ls {
		if l.Status != LineRemoved {
			prices = append(prices, l.PriceSnapshot)
		}
	}
	return prices
}
