package models

import (
	"regexp"
	"strings"
	"time"
)

// ContactList groups contacts for broadcast campaigns (spec §4.10).
type ContactList struct {
	ID          string
	Name        string
	Description string
	Source      string
	CreatedAt   time.Time
}

// Contact is one recipient within a ContactList (spec §4.10).
type Contact struct {
	ID       string
	ListID   string
	Name     string
	Phone    string // digits-only, Singapore-default normalized
	Email    string
	Tier     string
	IsActive bool
}

var nonDigitPlus = regexp.MustCompile(`[^\d+]`)

// NormalizePhone strips everything but digits and a leading '+', drops
// the '+', and prefixes the Singapore country code '65' when the number
// doesn't already start with it (spec §3 agent-number normalization,
// reused for contact import per §4.10). Idempotent: normalizing an
// already-normalized number returns it unchanged.
func NormalizePhone(raw string) string {
	stripped := nonDigitPlus.ReplaceAllString(strings.TrimSpace(raw), "")
	stripped = strings.TrimPrefix(stripped, "+")
	if strings.HasPrefix(stripped, "65") {
		return stripped
	}
	return "65" + stripped
}

// WhatsAppID derives the @c.us private-chat id for a normalized phone.
func WhatsAppID(normalizedPhone string) string {
	return normalizedPhone + "@c.us"
}
