package models

import "time"

// Presence records that a session is currently viewing or editing a
// resource. It grants nothing; many sessions may be present at once.
type Presence struct {
	SessionID string    `json:"session_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
}

// IsStale reports whether the session missed its heartbeat window.
func (p Presence) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.LastSeen) > ttl
}
