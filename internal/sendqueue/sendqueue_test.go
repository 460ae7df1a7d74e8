package sendqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

func newTestQueue(t *testing.T, client *whatsapp.FakeClient) (*Queue, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	q := New(func() whatsapp.Client { return client }, nil, clk, zap.NewNop())
	return q, clk
}

func TestDequeuePriorityOrder(t *testing.T) {
	q, _ := newTestQueue(t, whatsapp.NewFakeClient())

	q.Enqueue(Request{ChatID: "1", Priority: Low})
	q.Enqueue(Request{ChatID: "2", Priority: Critical})
	q.Enqueue(Request{ChatID: "3", Priority: Normal})
	q.Enqueue(Request{ChatID: "4", Priority: Critical})

	first, ok := q.dequeue()
	require.True(t, ok)
	require.Equal(t, "2", first.req.ChatID)

	second, ok := q.dequeue()
	require.True(t, ok)
	require.Equal(t, "4", second.req.ChatID)

	third, ok := q.dequeue()
	require.True(t, ok)
	require.Equal(t, "3", third.req.ChatID)

	fourth, ok := q.dequeue()
	require.True(t, ok)
	require.Equal(t, "1", fourth.req.ChatID)

	_, ok = q.dequeue()
	require.False(t, ok)
}

func TestAttemptWithRetrySucceeds(t *testing.T) {
	client := whatsapp.NewFakeClient()
	client.SetState(whatsapp.StateConnected)
	q, _ := newTestQueue(t, client)

	res := q.attemptWithRetry(context.Background(), Request{ChatID: "123@c.us", Text: "hi"})
	require.NoError(t, res.Err)
	require.NotEmpty(t, res.MessageID)
}

func TestAttemptWithRetryTerminalErrorDoesNotRetry(t *testing.T) {
	client := whatsapp.NewFakeClient()
	client.SetState(whatsapp.StateConnected)
	client.SendErr = whatsapp.ErrInvalidTarget
	q, _ := newTestQueue(t, client)

	res := q.attemptWithRetry(context.Background(), Request{ChatID: "bad", Text: "hi"})
	require.Error(t, res.Err)
	var terminal apperr.TerminalClient
	require.ErrorAs(t, res.Err, &terminal)
}

func TestAttemptWithRetryTransientExhaustsAttempts(t *testing.T) {
	client := whatsapp.NewFakeClient()
	client.SetState(whatsapp.StateConnected)
	client.SendErr = errorWithMessage("request timeout")
	q, _ := newTestQueue(t, client)

	res := q.attemptWithRetry(context.Background(), Request{ChatID: "123@c.us", Text: "hi"})
	require.Error(t, res.Err)
	var transient apperr.TransientClient
	require.ErrorAs(t, res.Err, &transient)
}

func TestAwaitReadyFalseWhenClientNeverConnects(t *testing.T) {
	client := whatsapp.NewFakeClient() // stays in StateNone
	q, _ := newTestQueue(t, client)

	ok := q.awaitReady(context.Background())
	require.False(t, ok)
}

func TestAwaitReadyTrueWhenAlreadyConnected(t *testing.T) {
	client := whatsapp.NewFakeClient()
	client.SetState(whatsapp.StateConnected)
	q, _ := newTestQueue(t, client)

	ok := q.awaitReady(context.Background())
	require.True(t, ok)
}

type errString string

func (e errString) Error() string { return string(e) }

func errorWithMessage(msg string) error { return errString(msg) }
