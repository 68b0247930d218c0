package models

import (
	"strings"
	"time"
)

type LockResult string

const (
	LockAcquired    LockResult = "acquired"
	LockAlreadyHeld LockResult = "already_held"
	LockHeldByOther LockResult = "held_by_other"
)

// ResourceLock is an advisory exclusive claim on (ResourceType,
// ResourceID). The row existing means the resource is held.
type ResourceLock struct {
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	OwnerID      string    `json:"owner_id"`
	SessionID    string    `json:"session_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

func (l ResourceLock) HeldBy(ownerID, sessionID string) bool {
	return l.OwnerID == ownerID && l.SessionID == sessionID
}

// Expired reports whether the holder has gone quiet for longer than ttl.
func (l ResourceLock) Expired(now time.Time, ttl time.Duration) bool {
	return !l.RefreshedAt.Add(ttl).After(now)
}

// ResourceRef names any shared resource guarded by a lock or tracked for
// presence.
type ResourceRef struct {
	Type string `json:"resource_type"`
	ID   string `json:"resource_id"`
}

func (r ResourceRef) Validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return ValidationError{Field: "resource_type", Message: "resource type is required"}
	}
	if strings.TrimSpace(r.ID) == "" {
		return ValidationError{Field: "resource_id", Message: "resource id is required"}
	}
	if strings.ContainsAny(r.Type, ":") {
		return ValidationError{Field: "resource_type", Message: "resource type must not contain ':'"}
	}
	return nil
}
