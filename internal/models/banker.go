package models

import (
	"strings"
	"time"
)

// Banker is a routing target for valuation requests (spec §3).
type Banker struct {
	ID               string
	Name             string
	DisplayName      string
	AgentNumber      string
	BankName         string
	WhatsAppGroupID  string
	RoutingKeywords  []string
	Priority         int
	IsActive         bool
	CreatedAt        time.Time
}

// MatchesBody reports whether any of the banker's routing keywords occurs
// (case-insensitively) as a substring of body.
func (b Banker) MatchesBody(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range b.RoutingKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// SelectBanker implements the routing invariant of spec §3: among active
// bankers whose routing keywords match body, pick the highest priority,
// breaking ties by earliest CreatedAt. Returns false if none match.
func SelectBanker(bankers []Banker, body string) (Banker, bool) {
	var best Banker
	found := false
	for _, b := range bankers {
		if !b.IsActive || !b.MatchesBody(body) {
			continue
		}
		if !found {
			best, found = b, true
			continue
		}
		if b.Priority > best.Priority ||
			(b.Priority == best.Priority && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	return best, found
}
