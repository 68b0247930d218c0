package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Participant is a session-scoped identity attached to one order.
// Role and EmployeeRef are fixed at creation.
type Participant struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"order_id"`
	SessionID       string    `json:"session_id"`
	Role            Role      `json:"role"`
	EmployeeRef     *string   `json:"employee_ref,omitempty"`
	PreferredLocale *string   `json:"preferred_locale,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ValidateJoin enforces employee_ref present if and only if role is staff.
func ValidateJoin(sessionID string, role Role, employeeRef *string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ValidationError{Field: "session_id", Message: "session id is required"}
	}

	hasRef := employeeRef != nil && strings.TrimSpace(*employeeRef) != ""
	switch role {
	case RoleStaff:
		if !hasRef {
			return ValidationError{Field: "employee_ref", Message: "employee ref is required for staff"}
		}
	case RoleCustomer:
		if employeeRef != nil {
			return ValidationError{Field: "employee_ref", Message: "employee ref must not be present for customers"}
		}
	default:
		return ValidationError{Field: "role", Message: "role must be one of: customer, staff"}
	}
	return nil
}

// DinerCount counts distinct customer sessions. It counts people, not
// actions.
func DinerCount(participants []Participant) int {
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p.Role == RoleCustomer {
			seen[p.SessionID] = struct{}{}
		}
	}
	return len(seen)
}
