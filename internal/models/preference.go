package models

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// PreOrderPreference holds a locale chosen while browsing a menu, before
// any order exists. It is copied into the participant created for the
// same session.
type PreOrderPreference struct {
	BrowsingContextID string    `json:"browsing_context_id"`
	SessionID         string    `json:"session_id"`
	Locale            string    `json:"locale"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NormalizeLocale validates a BCP 47 tag and returns its canonical form.
func NormalizeLocale(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ValidationError{Field: "locale", Message: "locale is required"}
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", ValidationError{Field: "locale", Message: "locale must be a BCP 47 language tag"}
	}
	return tag.String(), nil
}
