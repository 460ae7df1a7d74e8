package workflow

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/models"
)

// idempotencyWindow bounds how long a wa_message_id is remembered for the
// rate-update handlers' idempotent-replay guarantee (spec §4.5.c).
const idempotencyWindow = 10 * time.Minute

// idempotencyGuard is a process-wide, mutex-guarded set used by the three
// rate-update handlers to satisfy "succeed idempotently for repeated
// identical messages within 10 minutes (use wa_message_id key)" without
// needing store access for a concern the spec explicitly scopes out of
// the core's contract (spec §4.5.c, §9 "exact payload schema is outside
// the core's contract").
type idempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

var rateUpdateGuard = &idempotencyGuard{seen: make(map[string]time.Time)}

// seenRecently reports whether key was recorded within the idempotency
// window of now, recording it if not.
func (g *idempotencyGuard) seenRecently(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.seen[key]; ok && now.Sub(last) < idempotencyWindow {
		return true
	}
	g.seen[key] = now
	for k, t := range g.seen {
		if now.Sub(t) >= idempotencyWindow {
			delete(g.seen, k)
		}
	}
	return false
}

// RateUpdateHandler builds the handler for rate_package_update,
// bank_rates_update, and interest_rate (spec §4.5.c): each must succeed
// idempotently for a repeated wa_message_id within ten minutes and never
// block C4 for more than 5s. The handler publishes a "log" event on the
// event bus the first time it sees a wa_message_id and sends no message;
// the webhook payload schema itself is out of the core's contract.
func RateUpdateHandler(name string) Handler {
	return func(hc HandlerContext, c models.Classification) error {
		key := name + ":" + c.Message.WAMessageID
		now := hc.Now()
		if rateUpdateGuard.seenRecently(key, now) {
			hc.Logger.Debug("duplicate rate-update message within idempotency window",
				zap.String("handler", name), zap.String("wa_message_id", c.Message.WAMessageID))
			return nil
		}
		hc.Bus.Publish("log", map[string]any{
			"level":   "info",
			"message": name + " received",
		})
		return nil
	}
}
