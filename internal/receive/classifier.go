// Package receive implements the Receive Queue & Classifier (spec §4.4,
// C4): admission (group-only, dedup), a pure classifier, release-at
// scheduling, and the worker loop that dispatches to the workflow engine.
// Grounded on the teacher's internal/queue/consumer.go ordered-delivery
// worker loop, generalized from a single FIFO to a release-at ordered set.
package receive

import (
	"strings"

	"github.com/keyquest/wa-gateway/internal/models"
)

// Classify implements the precedence rule of spec §3 ("Classification"):
// ValuationReply (quoted-id present) → ValuationRequest → RatePackageUpdate
// → BankRatesUpdate → InterestRate → Ignored. It is a pure function of body
// and quoted-id presence only; matching a ValuationReply to the request it
// answers is deferred to the valuation_reply handler (spec §4.5.b), which
// has store access the classifier does not.
func Classify(body, quotedID string) models.ClassificationKind {
	if quotedID != "" {
		return models.KindValuationReply
	}
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "valuation request:"):
		return models.KindValuationRequest
	case strings.Contains(lower, "rate package update:"):
		return models.KindRatePackageUpdate
	case strings.Contains(lower, "update bank rates"):
		return models.KindBankRatesUpdate
	case strings.Contains(lower, "keyquest mortgage team"):
		return models.KindInterestRate
	default:
		return models.KindIgnored
	}
}
