// Package workflow implements the Workflow Engine (spec §4.5, C5): a
// handler registry, per-classification dispatch table, and execution
// record lifecycle. Grounded on the teacher's internal/services pattern of
// a registry keyed by name plus a record-then-invoke-then-update flow,
// generalized from the teacher's single webhook handler to five named
// handlers.
package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/metrics"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/store"
)

// EventPublisher is the narrow capability handlers use to push WS events
// (spec §4.9). Defined here, not imported from internal/eventbus, to avoid
// a workflow↔eventbus import cycle (spec §9 "break the cycle by passing a
// narrow capability interface").
type EventPublisher interface {
	Publish(kind string, payload map[string]any)
}

// HandlerContext is the capability surface exposed to a handler (spec
// §4.5 "ctx exposes: send(req), store, logger, now(), sleep(), event_bus").
type HandlerContext struct {
	Ctx    context.Context
	Send   func(sendqueue.Request) *sendqueue.Future
	Store  *store.Store
	Logger *zap.Logger
	Now    func() time.Time
	Sleep  func(time.Duration)
	Bus    EventPublisher
}

// Handler is the signature every registered workflow handler implements.
type Handler func(hc HandlerContext, c models.Classification) error

// Engine resolves a Classification to a named handler, invokes it, and
// records a WorkflowExecution around the call (spec §4.5).
type Engine struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	store *store.Store
	sendq *sendqueue.Queue
	clock clock.Clock
	log   *zap.Logger
	bus   EventPublisher
}

// New constructs an Engine with no handlers registered; call Register for
// each of the five named handlers (spec §4.5 dispatch table).
func New(st *store.Store, sendq *sendqueue.Queue, clk clock.Clock, log *zap.Logger, bus EventPublisher) *Engine {
	return &Engine{
		handlers: make(map[string]Handler),
		store:    st,
		sendq:    sendq,
		clock:    clk,
		log:      log,
		bus:      bus,
	}
}

// Register binds a handler to a name (spec §4.5 "register(name, handler)").
func (e *Engine) Register(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

// Dispatch resolves c.Kind to its handler name, records the execution, and
// invokes the handler. A classification with no registered handler (or
// Ignored, which C4 never dispatches) is a no-op.
func (e *Engine) Dispatch(ctx context.Context, c models.Classification) error {
	name := c.Kind.HandlerName()
	e.mu.RLock()
	handler, ok := e.handlers[name]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	exec := &models.WorkflowExecution{
		WorkflowID: name,
		Status:     models.ExecutionRunning,
		StartedAt:  e.clock.Now(),
		TriggerPayload: map[string]any{
			"wa_message_id": c.Message.WAMessageID,
			"chat_id":       c.Message.ChatID,
			"body":          c.Message.Body,
		},
	}
	if err := e.store.Workflows.CreateExecution(ctx, exec); err != nil {
		e.log.Warn("failed to persist workflow execution", zap.Error(err), zap.String("handler", name))
	}

	hc := HandlerContext{
		Ctx:    ctx,
		Send:   e.sendq.Enqueue,
		Store:  e.store,
		Logger: e.log,
		Now:    e.clock.Now,
		Sleep:  e.clock.Sleep,
		Bus:    e.bus,
	}

	handlerErr := handler(hc, c)

	status := models.ExecutionCompleted
	errMsg := ""
	if handlerErr != nil {
		status = models.ExecutionFailed
		errMsg = handlerErr.Error()
	}
	if err := e.store.Workflows.CompleteExecution(ctx, exec.ID, status, errMsg); err != nil {
		e.log.Warn("failed to complete workflow execution", zap.Error(err), zap.String("handler", name))
	}
	metrics.WorkflowExecutions.WithLabelValues(name, string(status)).Inc()

	// The engine does not propagate handler errors beyond the execution
	// record (spec §4.5, §7: "C5 wraps handler exceptions ... and
	// continues"); C4 only uses the return value for logging.
	return handlerErr
}

// RegisterDefaults wires the five named handlers of spec §4.5's dispatch
// table.
func RegisterDefaults(e *Engine) {
	e.Register("valuation_request", HandleValuationRequest)
	e.Register("valuation_reply", HandleValuationReply)
	e.Register("rate_package_update", RateUpdateHandler("rate_package_update"))
	e.Register("bank_rates_update", RateUpdateHandler("bank_rates_update"))
	e.Register("interest_rate", RateUpdateHandler("interest_rate"))
}
