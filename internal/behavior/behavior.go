// Package behavior implements the Human Behavior Manager (spec §4.2, C2):
// hourly/daily throughput gating, active-hours windows, human-like delay
// calculation, and inbound message deduplication. All timing derives from
// an injected clock.Clock (spec §9, "keep it in C2 and inject a Clock").
//
// The dedup set is backed by Redis, grounded in the teacher's
// queue/producer.go pipeline/ZAdd usage — repurposed here from a
// priority-band queue into a bounded, FIFO-evicted set (DESIGN.md Open
// Question 5). The hourly/daily rate counters are in-memory, guarded by
// the Manager's mutex.
package behavior

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/metrics"
)

// RejectReason explains why try_admit rejected (spec §4.2).
type RejectReason string

const (
	ReasonHourlyLimit RejectReason = "hourly_limit"
	ReasonDailyLimit  RejectReason = "daily_limit"
	ReasonCooldown    RejectReason = "cooldown"
)

// AdmitResult is the outcome of a TryAdmit call.
type AdmitResult struct {
	Admitted bool
	Reason   RejectReason
}

// Config holds the tunable parameters of spec §4.2 (defaults given there).
type Config struct {
	HourlyCap int
	DailyCap  int
	Cooldown  time.Duration

	ReadDelayMin, ReadDelayMax         time.Duration
	ResponseDelayMin, ResponseDelayMax time.Duration
	TypingDelayMin, TypingDelayMax     time.Duration

	NetworkHiccupProbability float64
	NetworkHiccupMin         time.Duration
	NetworkHiccupMax         time.Duration

	DedupCap     int64
	DedupRedisKey string
}

// DefaultConfig matches the fixed parameters of spec §4.2.
func DefaultConfig() Config {
	return Config{
		HourlyCap:                80,
		DailyCap:                 500,
		Cooldown:                 250 * time.Millisecond,
		ReadDelayMin:             2 * time.Second,
		ReadDelayMax:             15 * time.Second,
		ResponseDelayMin:         1 * time.Second,
		ResponseDelayMax:         10 * time.Second,
		TypingDelayMin:           1 * time.Second,
		TypingDelayMax:           5 * time.Second,
		NetworkHiccupProbability: 0.03,
		NetworkHiccupMin:         2 * time.Second,
		NetworkHiccupMax:         10 * time.Second,
		DedupCap:                 1000,
		DedupRedisKey:            "wagw:dedup",
	}
}

// activeWindow is the daily randomized {start,end} hour window (spec §4.2).
type activeWindow struct {
	start, end int
	forDate    time.Time // midnight of the calendar date this was generated for
}

// Manager is the process-wide Human Behavior Manager. RateCounters and the
// active window are guarded by mu; the dedup set lives in Redis so it can
// survive process restarts and be inspected externally (spec §5, "guarded
// by a single mutex; all mutations via C2").
type Manager struct {
	cfg   Config
	clock clock.Clock
	rdb   *redis.Client
	log   *zap.Logger

	mu            sync.Mutex
	hourlyCount   int
	dailyCount    int
	lastHourReset time.Time
	lastDayReset  time.Time
	lastActionAt  time.Time
	window        activeWindow

	dedupSeq int64 // monotonic counter backing Redis ZADD ordering
}

// NewManager constructs a Manager. now seeds the initial reset timestamps
// and active window so the first TryAdmit/delay calls are well-defined.
func NewManager(cfg Config, clk clock.Clock, rdb *redis.Client, log *zap.Logger) *Manager {
	now := clk.Now()
	m := &Manager{
		cfg:           cfg,
		clock:         clk,
		rdb:           rdb,
		log:           log,
		lastHourReset: now,
		lastDayReset:  now,
	}
	m.regenerateWindow(now)
	return m
}

// Ping reports whether the Redis backing store (dedup state, spec §4.2)
// is reachable, for /health (spec §6.3).
func (m *Manager) Ping(ctx context.Context) error {
	if m.rdb == nil {
		return nil
	}
	return m.rdb.Ping(ctx).Err()
}

// TryAdmit is pure accounting; it never fails (spec §4.2). Callers that
// need to bypass admission for critical-priority sends do so by never
// calling TryAdmit in the first place (spec §4.3/§4.4).
func (m *Manager) TryAdmit(now time.Time) AdmitResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastHourReset) >= time.Hour {
		m.hourlyCount = 0
		m.lastHourReset = now
	}
	if now.Sub(m.lastDayReset) >= 24*time.Hour {
		m.dailyCount = 0
		m.lastDayReset = now
	}

	var result AdmitResult
	switch {
	case m.hourlyCount >= m.cfg.HourlyCap:
		result = AdmitResult{Admitted: false, Reason: ReasonHourlyLimit}
	case m.dailyCount >= m.cfg.DailyCap:
		result = AdmitResult{Admitted: false, Reason: ReasonDailyLimit}
	default:
		result = AdmitResult{Admitted: true}
	}

	if result.Admitted {
		metrics.AdmitDecisions.WithLabelValues("admit").Inc()
	} else {
		metrics.AdmitDecisions.WithLabelValues(string(result.Reason)).Inc()
	}
	return result
}

// RecordProcessed increments both counters, updates last-action time, and
// inserts waMessageID into the bounded dedup set (spec §4.2).
func (m *Manager) RecordProcessed(ctx context.Context, waMessageID string, now time.Time) {
	m.mu.Lock()
	m.hourlyCount++
	m.dailyCount++
	m.lastActionAt = now
	m.dedupSeq++
	seq := m.dedupSeq
	m.mu.Unlock()

	if m.rdb == nil {
		return
	}
	pipe := m.rdb.TxPipeline()
	pipe.ZAdd(ctx, m.cfg.DedupRedisKey, &redis.Z{Score: float64(seq), Member: waMessageID})
	pipe.ZRemRangeByRank(ctx, m.cfg.DedupRedisKey, 0, -m.cfg.DedupCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		m.log.Warn("dedup set update failed", zap.Error(err), zap.String("wa_message_id", waMessageID))
	}
}

// WasProcessed reports whether waMessageID is already in the dedup set.
func (m *Manager) WasProcessed(ctx context.Context, waMessageID string) bool {
	if m.rdb == nil {
		return false
	}
	_, err := m.rdb.ZScore(ctx, m.cfg.DedupRedisKey, waMessageID).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		m.log.Warn("dedup set lookup failed", zap.Error(err))
		return false
	}
	return true
}

// ActiveHoursNow reports whether now falls within the daily active-hours
// window, regenerating the window on a calendar-date change (spec §4.2).
func (m *Manager) ActiveHoursNow(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regenerateWindowLocked(now)
	hour := now.Hour()
	return hour >= m.window.start && hour < m.window.end
}

func (m *Manager) regenerateWindow(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regenerateWindowLocked(now)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m *Manager) regenerateWindowLocked(now time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if m.window.forDate.Equal(today) {
		return
	}
	startJitter := m.clock.Uniform(-1*time.Hour, 1*time.Hour)
	endJitter := m.clock.Uniform(-1*time.Hour, 1*time.Hour)
	start := clampInt(int(math.Floor(7+startJitter.Hours())), 6, 24)
	end := clampInt(int(math.Floor(23+endJitter.Hours())), 6, 24)
	m.window = activeWindow{start: start, end: end, forDate: today}
}

// delayMultiplier computes sleep_mult * weekend_mult * day_progress_mult
// (spec §4.2).
func (m *Manager) delayMultiplier(now time.Time) float64 {
	mult := 1.0
	if !m.ActiveHoursNow(now) {
		mult *= 5
	}
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		mult *= 1.5
	}
	hour := now.Hour()
	switch {
	case hour < 10:
		mult *= 1.0
	case hour < 14:
		mult *= 1.2
	case hour < 18:
		mult *= 1.0
	default:
		mult *= 1.5
	}
	return mult
}

func scaleDuration(d time.Duration, mult float64) time.Duration {
	return time.Duration(float64(d) * mult)
}

// ReadDelay, ResponseDelay, and TypingDuration each draw a uniform base
// delay and scale it by the sleep/weekend/day-progress multiplier (§4.2).
func (m *Manager) ReadDelay(now time.Time) time.Duration {
	base := m.clock.Uniform(m.cfg.ReadDelayMin, m.cfg.ReadDelayMax)
	return scaleDuration(base, m.delayMultiplier(now))
}

func (m *Manager) ResponseDelay(now time.Time) time.Duration {
	base := m.clock.Uniform(m.cfg.ResponseDelayMin, m.cfg.ResponseDelayMax)
	return scaleDuration(base, m.delayMultiplier(now))
}

func (m *Manager) TypingDuration(now time.Time) time.Duration {
	base := m.clock.Uniform(m.cfg.TypingDelayMin, m.cfg.TypingDelayMax)
	return scaleDuration(base, m.delayMultiplier(now))
}

// MaybeNetworkHiccup sleeps U(2s,10s) with probability 0.03 (spec §4.2).
func (m *Manager) MaybeNetworkHiccup() {
	if m.clock.Uniform(0, 1000) >= time.Duration(m.cfg.NetworkHiccupProbability*1000) {
		return
	}
	m.clock.Sleep(m.clock.Uniform(m.cfg.NetworkHiccupMin, m.cfg.NetworkHiccupMax))
}
