package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	b := New(4, zap.NewNop())
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish("ready", map[string]any{"ok": true})

	select {
	case ev := <-sub.ch:
		require.Equal(t, "ready", ev.Type)
		require.Equal(t, true, ev.Payload["ok"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeImmediatelyDeliversCachedQR(t *testing.T) {
	b := New(4, zap.NewNop())
	b.Publish("qr", map[string]any{"qr_png_dataurl": "data:image/png;base64,abc"})

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case ev := <-sub.ch:
		require.Equal(t, "qr", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected cached qr to be replayed to new subscriber")
	}
}

func TestQRCacheClearedOnReady(t *testing.T) {
	b := New(4, zap.NewNop())
	b.Publish("qr", map[string]any{"qr_png_dataurl": "data:image/png;base64,abc"})
	b.Publish("ready", nil)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case ev := <-sub.ch:
		t.Fatalf("expected no cached event after ready, got %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(4, zap.NewNop())
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	b.Publish("authenticated", nil)

	select {
	case ev, ok := <-sub.ch:
		if ok {
			t.Fatalf("unexpected event after unsubscribe: %v", ev.Type)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	b := New(1, zap.NewNop())
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish("log", map[string]any{"n": 1})
	b.Publish("log", map[string]any{"n": 2})

	require.NotPanics(t, func() {
		<-sub.ch
	})
}

func TestEventMarshalJSONFlattensPayload(t *testing.T) {
	ev := Event{Type: "ready", Payload: map[string]any{"foo": "bar"}, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "ready", decoded["type"])
	require.Equal(t, "bar", decoded["foo"])
	require.Contains(t, decoded, "timestamp")
}
