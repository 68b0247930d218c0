package models

import "time"

type Action string

const (
	ActionAddItem     Action = "add_item"
	ActionRemoveItem  Action = "remove_item"
	ActionAdvanceItem Action = "advance_item"
	ActionPlaceOrder  Action = "place_order"
	ActionDeliver     Action = "deliver"
	ActionRequestBill Action = "request_bill"
	ActionPay         Action = "pay"
	ActionClose       Action = "close"
	ActionSetLocale   Action = "set_locale"
)

// ActionLogEntry is one append-only history row. It is written in the
// same transaction as the change it narrates and never updated.
type ActionLogEntry struct {
	ID            int64     `json:"id"`
	OrderID       string    `json:"order_id"`
	ParticipantID string    `json:"participant_id"`
	LineID        *string   `json:"line_id,omitempty"`
	Action        Action    `json:"action"`
	Notes         *string   `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
