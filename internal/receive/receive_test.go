package receive

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/behavior"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		quotedID string
		want     models.ClassificationKind
	}{
		{"quoted wins over everything", "Valuation Request: 123 Main St", "wamid.prior", models.KindValuationReply},
		{"valuation request", "Valuation Request: 123 Main St", "", models.KindValuationRequest},
		{"rate package update", "Rate Package Update: Bank XYZ", "", models.KindRatePackageUpdate},
		{"bank rates update", "please update bank rates today", "", models.KindBankRatesUpdate},
		{"interest rate team signature", "Regards, KeyQuest Mortgage Team", "", models.KindInterestRate},
		{"unrecognized", "hey what's up", "", models.KindIgnored},
		{"case insensitive", "VALUATION REQUEST: 1 Elm St", "", models.KindValuationRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.body, tc.quotedID))
		})
	}
}

type fakeDispatcher struct {
	calls []models.Classification
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, c models.Classification) error {
	f.calls = append(f.calls, c)
	return f.err
}

func newTestQueue(t *testing.T, bhvCfg behavior.Config) (*Queue, *clock.Fake, *fakeDispatcher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.NewFake(time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC))
	bhv := behavior.NewManager(bhvCfg, clk, rdb, zap.NewNop())
	sendq := sendqueue.New(func() whatsapp.Client { return nil }, bhv, clk, zap.NewNop())
	disp := &fakeDispatcher{}
	q := New(bhv, sendq, disp, clk, zap.NewNop())
	return q, clk, disp
}

func TestAdmitIgnoresNonGroupChats(t *testing.T) {
	q, clk, _ := newTestQueue(t, behavior.DefaultConfig())
	q.Admit(context.Background(), models.Message{WAMessageID: "m1", ChatID: "1234567@c.us"})

	_, ok, _ := q.earliest(clk.Now().Add(time.Hour))
	require.False(t, ok)
}

func TestAdmitSchedulesReleaseAfterReadDelay(t *testing.T) {
	q, clk, _ := newTestQueue(t, behavior.DefaultConfig())
	now := clk.Now()
	q.Admit(context.Background(), models.Message{WAMessageID: "m1", ChatID: "123-456@g.us", Body: "hi"})

	_, ok, nextRelease := q.earliest(now)
	require.False(t, ok, "should not be ready immediately, read delay hasn't elapsed")
	require.True(t, nextRelease.After(now))

	item, ok, _ := q.earliest(nextRelease)
	require.True(t, ok)
	require.Equal(t, "m1", item.msg.WAMessageID)
}

func TestAdmitDedupSkipsAlreadyProcessed(t *testing.T) {
	q, clk, _ := newTestQueue(t, behavior.DefaultConfig())
	ctx := context.Background()
	q.behavior.RecordProcessed(ctx, "m1", clk.Now())

	q.Admit(ctx, models.Message{WAMessageID: "m1", ChatID: "123-456@g.us", Body: "hi"})

	_, ok, _ := q.earliest(clk.Now().Add(time.Hour))
	require.False(t, ok)
}

func TestEarliestReturnsSmallestReleaseFirst(t *testing.T) {
	q, clk, _ := newTestQueue(t, behavior.DefaultConfig())
	now := clk.Now()

	q.mu.Lock()
	q.items = append(q.items,
		queuedItem{msg: models.Message{WAMessageID: "late"}, releaseAt: now.Add(time.Minute)},
		queuedItem{msg: models.Message{WAMessageID: "early"}, releaseAt: now.Add(time.Second)},
	)
	q.mu.Unlock()

	item, ok, _ := q.earliest(now.Add(time.Hour))
	require.True(t, ok)
	require.Equal(t, "early", item.msg.WAMessageID)

	item, ok, _ = q.earliest(now.Add(time.Hour))
	require.True(t, ok)
	require.Equal(t, "late", item.msg.WAMessageID)
}

func TestProcessDispatchesClassifiedMessage(t *testing.T) {
	q, clk, disp := newTestQueue(t, behavior.DefaultConfig())
	msg := models.Message{WAMessageID: "m1", ChatID: "123-456@g.us", Body: "Valuation Request: 1 Elm St"}

	q.process(context.Background(), queuedItem{msg: msg, releaseAt: clk.Now()})

	require.Len(t, disp.calls, 1)
	require.Equal(t, models.KindValuationRequest, disp.calls[0].Kind)
	require.True(t, q.behavior.WasProcessed(context.Background(), "m1"))
}

func TestProcessIgnoredMessageSkipsDispatch(t *testing.T) {
	q, clk, disp := newTestQueue(t, behavior.DefaultConfig())
	msg := models.Message{WAMessageID: "m1", ChatID: "123-456@g.us", Body: "just chatting"}

	q.process(context.Background(), queuedItem{msg: msg, releaseAt: clk.Now()})

	require.Empty(t, disp.calls)
}

func TestProcessRespectsHourlyAdmissionLimit(t *testing.T) {
	cfg := behavior.DefaultConfig()
	cfg.HourlyCap = 0
	q, clk, disp := newTestQueue(t, cfg)
	msg := models.Message{WAMessageID: "m1", ChatID: "123-456@g.us", Body: "Valuation Request: 1 Elm St"}

	q.process(context.Background(), queuedItem{msg: msg, releaseAt: clk.Now()})

	require.Empty(t, disp.calls)
	// a rate-limit notice should have been enqueued instead
	require.Equal(t, 1, q.sendq.Len())
}
