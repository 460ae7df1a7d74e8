// Package eventbus implements the in-process typed pub/sub and WebSocket
// fanout of spec §4.9 (C9). Grounded on the teacher's webhook_handler.go
// broadcast-to-subscribers shape, adapted from an HTTP webhook fanout to a
// gorilla/websocket connection hub with best-effort, per-connection
// delivery.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the typed envelope dispatched to every subscriber (spec §4.9).
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
}

// MarshalJSON flattens Payload alongside type/timestamp so the wire shape
// matches spec §4.9's examples (`qr {...}`, `broadcast_status {...}`).
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Payload)+2)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat["type"] = e.Type
	flat["timestamp"] = e.Timestamp
	return json.Marshal(flat)
}

// Bus is the mutex-guarded subscriber registry (spec §5: "EventBus:
// mutex-guarded subscriber list; publish copies the event and dispatches
// without holding the lock").
type Bus struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	bufferSize  int
	log         *zap.Logger

	lastQR *Event
}

// Subscriber is one WS connection's outbound event channel.
type Subscriber struct {
	ch chan Event
}

// New constructs a Bus with the given per-subscriber buffer size.
func New(bufferSize int, log *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  bufferSize,
		log:         log,
	}
}

// Subscribe registers a new Subscriber and, if a QR event is current,
// delivers it immediately (spec §4.9 "Each connection on open receives the
// current qr (if any)").
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan Event, b.bufferSize)}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	last := b.lastQR
	b.mu.Unlock()

	if last != nil {
		select {
		case sub.ch <- *last:
		default:
		}
	}
	return sub
}

// Unsubscribe removes sub from the registry and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	close(sub.ch)
}

// Publish implements workflow.EventPublisher and broadcast.EventPublisher:
// it copies the event and dispatches to each subscriber without holding
// the registry lock (spec §5). Delivery is best-effort: a full subscriber
// channel drops the event rather than blocking the publisher (spec §4.9
// "slow consumers may miss events").
func (b *Bus) Publish(kind string, payload map[string]any) {
	ev := Event{Type: kind, Payload: payload, Timestamp: time.Now().UTC()}

	b.mu.Lock()
	if kind == "qr" {
		cp := ev
		b.lastQR = &cp
	}
	if kind == "ready" || kind == "authenticated" || kind == "logout" {
		b.lastQR = nil
	}
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			b.log.Debug("dropping event for slow subscriber", zap.String("type", kind))
		}
	}
}

// ServeConnection pumps subscriber events to a live WebSocket connection
// until the connection closes or ctx signals stop. It sends the initial
// {"type":"connected"} handshake message first (spec §4.9).
func (b *Bus) ServeConnection(conn *websocket.Conn, stop <-chan struct{}) {
	if err := conn.WriteJSON(map[string]string{"type": "connected"}); err != nil {
		return
	}
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-sub.ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
