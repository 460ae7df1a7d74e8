// Package broadcast implements the Broadcast Executor (spec §4.7, C7): a
// long-running, paced bulk-send campaign that persists progress after
// every contact and is cancellation-safe. Grounded on the teacher's
// campaign dispatcher shape in internal/services (batch loop + progress
// persistence + keep-alive ping), generalized to the spec's preflight/
// async-loop/termination contract.
package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/metrics"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/store"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

// EventPublisher is the narrow capability the executor needs from
// internal/eventbus, avoiding a broadcast↔eventbus import cycle (spec §9's
// "pass a narrow capability interface" design note, applied here the same
// way internal/workflow breaks its own cycle with C9).
type EventPublisher interface {
	Publish(kind string, payload map[string]any)
}

// Contact is one recipient supplied by the caller (spec §4.7 input shape).
type Contact struct {
	ID    string
	Name  string
	Phone string
}

// Request is the input to Launch (spec §4.7 "Input").
type Request struct {
	Contacts            []Contact
	Message             string
	ImageURL            string
	DelayMode           models.DelayMode
	NotificationContact string
}

// Handle identifies a launched broadcast (spec §4.7 "Return {broadcast_id,
// execution_id} to caller").
type Handle struct {
	BroadcastID string
	ExecutionID string
}

const keepAliveInterval = 30 * time.Second

// Executor runs broadcasts against the shared send queue (spec §5:
// "multiple [broadcasts] may run, but all share the single send worker").
type Executor struct {
	store       *store.Store
	sendq       *sendqueue.Queue
	clientFn    func() whatsapp.Client
	clock       clock.Clock
	log         *zap.Logger
	bus         EventPublisher
	shutdownCtx context.Context

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs an Executor. shutdownCtx is the gateway's worker
// lifecycle context (spec §5: "In-flight broadcasts mark failed with
// reason shutdown if unable to drain in time"); every broadcast launched
// through this Executor runs under a child of shutdownCtx, so cancelling
// it (the gateway's graceful-shutdown signal) stops every in-flight loop
// without being confused for an operator-initiated Cancel.
func New(st *store.Store, sendq *sendqueue.Queue, clientFn func() whatsapp.Client, clk clock.Clock, log *zap.Logger, bus EventPublisher, shutdownCtx context.Context) *Executor {
	return &Executor{
		store: st, sendq: sendq, clientFn: clientFn, clock: clk, log: log, bus: bus, shutdownCtx: shutdownCtx,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Launch runs the preflight insert synchronously and starts the async
// pacing loop in the background (spec §4.7).
func (x *Executor) Launch(ctx context.Context, req Request) (Handle, error) {
	broadcastID := newID()
	exec := &models.BroadcastExecution{
		BroadcastID:         broadcastID,
		Status:              models.BroadcastRunning,
		TotalContacts:       len(req.Contacts),
		MessageContent:      req.Message,
		ImageURL:            req.ImageURL,
		DelayMode:           req.DelayMode,
		NotificationContact: req.NotificationContact,
	}
	messages := make([]*models.BroadcastMessage, 0, len(req.Contacts))
	for i, c := range req.Contacts {
		messages = append(messages, &models.BroadcastMessage{
			ContactID:      c.ID,
			RecipientName:  c.Name,
			RecipientPhone: c.Phone,
			SendOrder:      i + 1,
			Status:         models.BroadcastMsgPending,
		})
	}

	if err := x.store.Broadcasts.CreateExecution(ctx, exec, messages); err != nil {
		return Handle{}, fmt.Errorf("create broadcast execution: %w", err)
	}

	runCtx, cancel := context.WithCancel(x.shutdownCtx)
	x.mu.Lock()
	x.cancels[exec.ID] = cancel
	x.mu.Unlock()

	go x.run(runCtx, exec, req.Contacts, messages)

	return Handle{BroadcastID: broadcastID, ExecutionID: exec.ID}, nil
}

// Cancel requests a mid-loop stop (spec §4.7 "Cancellation: a broadcast
// has a cancel token").
func (x *Executor) Cancel(executionID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	cancel, ok := x.cancels[executionID]
	if ok {
		cancel()
	}
	return ok
}

func (x *Executor) run(ctx context.Context, exec *models.BroadcastExecution, contacts []Contact, messages []*models.BroadcastMessage) {
	defer func() {
		x.mu.Lock()
		delete(x.cancels, exec.ID)
		x.mu.Unlock()
	}()

	status, execErr := x.loop(ctx, exec, contacts, messages)

	exec.Status = status
	now := x.clock.Now()
	exec.CompletedAt = &now
	if err := x.store.Broadcasts.Complete(ctx, exec.ID, status, execErr); err != nil {
		x.log.Warn("failed to persist broadcast completion", zap.Error(err), zap.String("execution_id", exec.ID))
	}
	x.emitStatus(exec, "")

	if exec.NotificationContact != "" {
		x.sendSummary(exec, status, execErr)
	}
}

func (x *Executor) loop(ctx context.Context, exec *models.BroadcastExecution, contacts []Contact, messages []*models.BroadcastMessage) (models.BroadcastStatus, string) {
	n := len(contacts)
	delayMin, delayMax := exec.DelayMode.Bounds()

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return x.cancellationOutcome()
		}

		contact := contacts[i]
		msg := messages[i]

		if err := x.store.Broadcasts.UpdateMessageStatus(ctx, msg.ID, models.BroadcastMsgSending, ""); err != nil {
			x.log.Warn("failed to mark message sending", zap.Error(err))
		}

		text := personalize(exec.MessageContent, contact.Name)
		sendReq := sendqueue.Request{ChatID: contact.Phone, Text: text, Priority: sendqueue.Low, Cancel: ctx}
		if exec.ImageURL != "" {
			sendReq.Media = &whatsapp.Media{Kind: "image", URL: exec.ImageURL, Caption: text}
		}

		result, waitErr := x.sendq.Enqueue(sendReq).Wait(ctx)

		if waitErr != nil || result.Err != nil {
			errMsg := "send cancelled"
			if result.Err != nil {
				errMsg = result.Err.Error()
			}
			exec.FailedCount++
			if err := x.store.Broadcasts.UpdateMessageStatus(ctx, msg.ID, models.BroadcastMsgFailed, errMsg); err != nil {
				x.log.Warn("failed to persist message failure", zap.Error(err))
			}
		} else {
			exec.SentCount++
			if err := x.store.Broadcasts.UpdateMessageStatus(ctx, msg.ID, models.BroadcastMsgSent, ""); err != nil {
				x.log.Warn("failed to persist message success", zap.Error(err))
			}
		}

		exec.CurrentIndex = i + 1
		now := x.clock.Now()
		exec.LastSentAt = &now
		if err := x.store.Broadcasts.UpdateProgress(ctx, exec); err != nil {
			x.log.Warn("failed to persist broadcast progress", zap.Error(err))
		}
		x.emitStatus(exec, contact.Phone)

		if i < n-1 {
			if err := x.pacedWait(ctx, x.clock.Uniform(delayMin, delayMax)); err != nil {
				return x.cancellationOutcome()
			}
		}
	}

	return models.BroadcastCompleted, ""
}

// cancellationOutcome distinguishes an operator-initiated Cancel from the
// gateway's graceful-shutdown signal (spec §5): the latter marks the
// broadcast failed with reason "shutdown" rather than cancelled, so
// shutdown-induced stops are never mistaken for an operator decision.
func (x *Executor) cancellationOutcome() (models.BroadcastStatus, string) {
	if x.shutdownCtx.Err() != nil {
		return models.BroadcastFailed, apperr.Shutdown{Reason: "shutdown"}.Error()
	}
	return models.BroadcastCancelled, "cancelled by operator"
}

// pacedWait sleeps for d, pinging the client every 30s as a keep-alive
// (spec §4.7 step 6); returns ctx.Err() if cancelled mid-wait.
func (x *Executor) pacedWait(ctx context.Context, d time.Duration) error {
	deadline := x.clock.After(d)
	ticker := x.clock.After(keepAliveInterval)
	remaining := d

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return nil
		case <-ticker:
			if client := x.clientFn(); client != nil {
				if err := client.Ping(ctx); err != nil {
					x.log.Warn("broadcast keep-alive ping failed", zap.Error(err))
				}
			}
			if remaining > keepAliveInterval {
				remaining -= keepAliveInterval
			} else {
				remaining = 0
			}
			if remaining > 0 {
				ticker = x.clock.After(minDuration(keepAliveInterval, remaining))
			}
		}
	}
}

func (x *Executor) emitStatus(exec *models.BroadcastExecution, currentContact string) {
	progress := 0.0
	if exec.TotalContacts > 0 {
		progress = float64(exec.CurrentIndex) / float64(exec.TotalContacts)
	}
	payload := map[string]any{
		"broadcast_id":  exec.BroadcastID,
		"execution_id":  exec.ID,
		"status":        exec.Status,
		"total":         exec.TotalContacts,
		"sent":          exec.SentCount,
		"failed":        exec.FailedCount,
		"current_index": exec.CurrentIndex,
		"progress":      progress,
	}
	if currentContact != "" {
		payload["current_contact"] = currentContact
	}
	metrics.BroadcastProgress.WithLabelValues(exec.BroadcastID).Set(progress)
	x.bus.Publish("broadcast_status", payload)
}

func (x *Executor) sendSummary(exec *models.BroadcastExecution, status models.BroadcastStatus, execErr string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Broadcast %s: %s\nSent: %d\nFailed: %d\nTotal: %d",
		exec.BroadcastID, status, exec.SentCount, exec.FailedCount, exec.TotalContacts)
	if exec.LastSentAt != nil {
		fmt.Fprintf(&b, "\nLast sent at: %s", exec.LastSentAt.Format(time.RFC3339))
	}
	if execErr != "" {
		fmt.Fprintf(&b, "\nError: %s", execErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := x.sendq.Enqueue(sendqueue.Request{
		ChatID: exec.NotificationContact, Text: b.String(), Priority: sendqueue.Critical,
	}).Wait(ctx); err != nil {
		x.log.Warn("failed to send broadcast summary notification", zap.Error(err), zap.String("execution_id", exec.ID))
	}
}

// personalize substitutes {name} with the contact's name, defaulting to
// "Valued Customer" (spec §4.7 step 2).
func personalize(template, name string) string {
	if name == "" {
		name = "Valued Customer"
	}
	return strings.ReplaceAll(template, "{name}", name)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// newID generates the caller-facing broadcast_id (spec §4.10's unique
// index on broadcast_executions.broadcast_id), distinct from the
// surrogate execution id the store assigns.
func newID() string {
	return "bcast_" + uuid.NewString()
}
