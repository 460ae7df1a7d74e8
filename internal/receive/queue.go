package receive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/behavior"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/metrics"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
)

// Dispatcher is the capability C5 (workflow engine) exposes to C4. Kept as
// a narrow interface here to avoid a receive→workflow import cycle; the
// concrete *workflow.Engine satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, c models.Classification) error
}

// limitNoticePeriod bounds how often a rate-limit notice is sent to a given
// group (spec §4.4, "once-per-period notice" — the period itself is left
// to the implementation; this one uses one hour).
const limitNoticePeriod = time.Hour

type queuedItem struct {
	msg       models.Message
	releaseAt time.Time
}

// Queue is the C4 admission set and worker loop.
type Queue struct {
	behavior   *behavior.Manager
	sendq      *sendqueue.Queue
	dispatcher Dispatcher
	clock      clock.Clock
	log        *zap.Logger

	mu     sync.Mutex
	items  []queuedItem
	notify chan struct{}

	noticeMu   sync.Mutex
	lastNotice map[string]time.Time
}

// New constructs a receive Queue.
func New(bhv *behavior.Manager, sendq *sendqueue.Queue, dispatcher Dispatcher, clk clock.Clock, log *zap.Logger) *Queue {
	return &Queue{
		behavior:   bhv,
		sendq:      sendq,
		dispatcher: dispatcher,
		clock:      clk,
		log:        log,
		notify:     make(chan struct{}, 1),
		lastNotice: make(map[string]time.Time),
	}
}

// Admit implements the admission rule of spec §4.4: group-chat-only,
// deduped, scheduled for release after a randomized read-delay.
func (q *Queue) Admit(ctx context.Context, msg models.Message) {
	if !msg.IsGroupChat() {
		return
	}
	if q.behavior.WasProcessed(ctx, msg.WAMessageID) {
		return
	}
	now := q.clock.Now()
	releaseAt := now.Add(q.behavior.ReadDelay(now))

	q.mu.Lock()
	q.items = append(q.items, queuedItem{msg: msg, releaseAt: releaseAt})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// earliest pops the item whose release_at is earliest if it is <= now, and
// otherwise reports the earliest release_at for the caller to sleep until.
func (q *Queue) earliest(now time.Time) (queuedItem, bool, time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return queuedItem{}, false, time.Time{}
	}
	minIdx := 0
	for i, it := range q.items {
		if it.releaseAt.Before(q.items[minIdx].releaseAt) {
			minIdx = i
		}
	}
	if q.items[minIdx].releaseAt.After(now) {
		return queuedItem{}, false, q.items[minIdx].releaseAt
	}
	item := q.items[minIdx]
	q.items = append(q.items[:minIdx], q.items[minIdx+1:]...)
	return item, true, time.Time{}
}

// Run drives the worker loop until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		now := q.clock.Now()
		item, ok, nextRelease := q.earliest(now)
		if !ok {
			var wait <-chan time.Time
			if !nextRelease.IsZero() {
				wait = q.clock.After(nextRelease.Sub(now))
			} else {
				wait = q.clock.After(time.Second)
			}
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			case <-wait:
				continue
			}
		}
		q.process(ctx, item)
	}
}

func (q *Queue) process(ctx context.Context, item queuedItem) {
	kind := Classify(item.msg.Body, item.msg.QuotedID)
	if kind == models.KindIgnored {
		q.log.Debug("dropping ignored message", zap.String("wa_message_id", item.msg.WAMessageID))
		return
	}

	q.behavior.MaybeNetworkHiccup()

	now := q.clock.Now()
	admit := q.behavior.TryAdmit(now)
	if !admit.Admitted {
		q.maybeNotifyLimit(item.msg.ChatID, string(admit.Reason), now)
		return
	}

	if q.clock.Uniform(0, 1000) < 100 {
		q.clock.Sleep(q.clock.Uniform(time.Second, 3*time.Second))
	}
	q.clock.Sleep(q.behavior.ResponseDelay(now))

	status := "completed"
	if err := q.dispatcher.Dispatch(ctx, models.Classification{Kind: kind, Message: item.msg}); err != nil {
		status = "failed"
		q.log.Warn("workflow dispatch failed",
			zap.String("wa_message_id", item.msg.WAMessageID), zap.String("kind", string(kind)), zap.Error(err))
	}
	q.log.Debug("workflow dispatch finished",
		zap.String("wa_message_id", item.msg.WAMessageID), zap.String("kind", string(kind)), zap.String("status", status))
	metrics.ReceiveClassifications.WithLabelValues(string(kind)).Inc()

	q.behavior.RecordProcessed(ctx, item.msg.WAMessageID, q.clock.Now())
}

func (q *Queue) maybeNotifyLimit(chatID, reason string, now time.Time) {
	q.noticeMu.Lock()
	key := chatID + ":" + reason
	last, sent := q.lastNotice[key]
	if sent && now.Sub(last) < limitNoticePeriod {
		q.noticeMu.Unlock()
		return
	}
	q.lastNotice[key] = now
	q.noticeMu.Unlock()

	q.sendq.Enqueue(sendqueue.Request{
		ChatID:   chatID,
		Text:     limitNoticeText(reason),
		Priority: sendqueue.Critical,
	})
}

func limitNoticeText(reason string) string {
	switch reason {
	case "daily_limit":
		return "We've reached our daily message limit and will resume processing tomorrow. Thanks for your patience."
	default:
		return "We've reached our hourly message limit and will resume processing shortly. Thanks for your patience."
	}
}
