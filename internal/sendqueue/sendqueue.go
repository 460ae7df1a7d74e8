// Package sendqueue implements the Send Queue (spec §4.3, C3): a four-band
// priority FIFO serializing all outbound sends against a single
// whatsapp.Client, with per-attempt retry/backoff and a circuit breaker
// guarding against a wedged driver. Grounded on the teacher's
// internal/queue/consumer.go worker-loop shape and internal/services's
// gobreaker-wrapped outbound calls, generalized from a single-band queue
// to four strictly-ordered bands.
package sendqueue

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/behavior"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/metrics"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

// Priority is the band a send request is scheduled under (spec §4.3).
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Normal:
		return "normal"
	default:
		return "low"
	}
}

const maxAttempts = 5

// Request is one outbound send. When Media is set the media is sent and
// Text is not; a media caption travels in Media.Caption.
type Request struct {
	ChatID   string
	Text     string
	Media    *whatsapp.Media
	Priority Priority

	// Cancel, if non-nil, is checked before the request is dequeued for its
	// first attempt; a cancelled request is discarded without a send.
	Cancel context.Context
}

// Result is the terminal outcome of a Request, delivered via the Future
// returned from Enqueue.
type Result struct {
	MessageID string
	Err       error
}

// Future resolves once a Request reaches a terminal outcome.
type Future struct {
	ch chan Result
}

// Wait blocks until the result is available or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case r := <-f.ch:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type job struct {
	req    Request
	result chan Result
}

// Queue is the four-band priority send queue with a single dispatch
// worker. Construct with New and start the worker with Run.
type Queue struct {
	clientFn func() whatsapp.Client
	behavior *behavior.Manager
	clock    clock.Clock
	log      *zap.Logger
	breaker  *gobreaker.CircuitBreaker

	mu      sync.Mutex
	bands   [4][]job // indexed by Priority
	notify  chan struct{}
}

// New constructs a Queue. The circuit breaker trips after 5 consecutive
// send failures and stays open for 30s, matching the teacher's gobreaker
// settings in internal/services/whatsapp_service.go.
func New(clientFn func() whatsapp.Client, bhv *behavior.Manager, clk clock.Clock, log *zap.Logger) *Queue {
	q := &Queue{
		clientFn: clientFn,
		behavior: bhv,
		clock:    clk,
		log:      log,
		notify:   make(chan struct{}, 1),
	}
	q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp-send",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return q
}

// Enqueue appends req to its priority band and returns a Future for the
// eventual terminal result.
func (q *Queue) Enqueue(req Request) *Future {
	ch := make(chan Result, 1)
	q.mu.Lock()
	q.bands[req.Priority] = append(q.bands[req.Priority], job{req: req, result: ch})
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return &Future{ch: ch}
}

// Len reports the total number of requests currently queued across every
// band, for health/diagnostic surfaces (spec §6.3 `GET /api/status`).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, band := range q.bands {
		n += len(band)
	}
	return n
}

// dequeue pops the oldest job from the highest non-empty band.
func (q *Queue) dequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for p := Critical; p >= Low; p-- {
		band := q.bands[p]
		if len(band) == 0 {
			continue
		}
		j := band[0]
		q.bands[p] = band[1:]
		return j, true
	}
	return job{}, false
}

// Run drives the single dispatch worker until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		j, ok := q.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			case <-q.clock.After(100 * time.Millisecond):
				continue
			}
		}
		q.process(ctx, j)
	}
}

func (q *Queue) process(ctx context.Context, j job) {
	if j.req.Cancel != nil && j.req.Cancel.Err() != nil {
		j.result <- Result{Err: apperr.Shutdown{Reason: "cancelled"}}
		return
	}

	start := q.clock.Now()
	res := q.attemptWithRetry(ctx, j.req)
	metrics.SendLatency.WithLabelValues(j.req.Priority.String()).Observe(q.clock.Now().Sub(start).Seconds())

	if res.Err == nil {
		metrics.SendOutcomes.WithLabelValues(j.req.Priority.String(), "success").Inc()
		q.behavior.RecordProcessed(ctx, "sent_"+randToken(), q.clock.Now())
	} else {
		metrics.SendOutcomes.WithLabelValues(j.req.Priority.String(), "failure").Inc()
	}
	j.result <- res

	q.pace(j.req.Priority)
}

func (q *Queue) pace(p Priority) {
	switch p {
	case Critical, High:
		q.clock.Sleep(q.clock.Uniform(0, 400*time.Millisecond))
	default:
		q.clock.Sleep(q.clock.Uniform(800*time.Millisecond, 1800*time.Millisecond))
	}
}

func (q *Queue) attemptWithRetry(ctx context.Context, req Request) Result {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !q.awaitReady(ctx) {
			lastErr = whatsapp.ErrNotReady
		} else {
			id, err := q.sendOnce(ctx, req)
			if err == nil {
				return Result{MessageID: id}
			}
			lastErr = err
		}

		kind := whatsapp.Classify(lastErr)
		if kind == whatsapp.ErrorKindTerminal {
			return Result{Err: apperr.TerminalClient{Cause: lastErr}}
		}

		floor := time.Duration(0)
		if kind == whatsapp.ErrorKindProviderRateLimit {
			floor = 5 * time.Second
		}
		backoff := minDuration(time.Duration(1<<uint(attempt))*500*time.Millisecond, 30*time.Second)
		if backoff < floor {
			backoff = floor
		}
		backoff += q.clock.Uniform(0, 500*time.Millisecond)
		q.log.Warn("send attempt failed, retrying",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(lastErr))
		q.clock.Sleep(backoff)
	}
	return Result{Err: apperr.TransientClient{Cause: lastErr}}
}

// sendOnce performs a single attempt through the circuit breaker.
func (q *Queue) sendOnce(ctx context.Context, req Request) (string, error) {
	out, err := q.breaker.Execute(func() (interface{}, error) {
		client := q.clientFn()
		if client == nil {
			return nil, whatsapp.ErrNotReady
		}
		if req.Media != nil {
			res, err := client.SendMedia(ctx, req.ChatID, *req.Media)
			if err != nil {
				return nil, err
			}
			return res.MessageID, nil
		}
		res, err := client.SendText(ctx, req.ChatID, req.Text)
		if err != nil {
			return nil, err
		}
		return res.MessageID, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", whatsapp.ErrNotReady
		}
		return "", err
	}
	return out.(string), nil
}

// awaitReady blocks up to 30s for the client to report State == StateConnected.
// The client may not exist yet (session not started, or between a
// disconnect and its reconnect), which ready-polls through like any other
// not-connected state.
func (q *Queue) awaitReady(ctx context.Context) bool {
	if q.clientReady() {
		return true
	}
	deadline := q.clock.Now().Add(30 * time.Second)
	for q.clock.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-q.clock.After(250 * time.Millisecond):
		}
		if q.clientReady() {
			return true
		}
	}
	return false
}

func (q *Queue) clientReady() bool {
	c := q.clientFn()
	return c != nil && c.GetState() == whatsapp.StateConnected
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func randToken() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 12)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
