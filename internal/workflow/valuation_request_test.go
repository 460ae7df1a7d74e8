package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/keyquest/wa-gateway/internal/behavior"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/store"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

// newHandlerTestRig wires a real sendqueue.Queue (worker running in the
// background) over a FakeClient, and a sqlmock-backed store, matching
// spec §8 scenario 1/2's end-to-end shape without touching a real
// Postgres or Redis.
func newHandlerTestRig(t *testing.T) (HandlerContext, *whatsapp.FakeClient, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewWithDB(db)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.NewSystem()
	log := zap.NewNop()

	bhv := behavior.NewManager(behavior.DefaultConfig(), clk, rdb, log)

	client := whatsapp.NewFakeClient()
	client.SetState(whatsapp.StateConnected)
	sendq := sendqueue.New(func() whatsapp.Client { return client }, bhv, clk, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sendq.Run(ctx)

	hc := HandlerContext{
		Ctx:    context.Background(),
		Send:   sendq.Enqueue,
		Store:  st,
		Logger: log,
		Now:    clk.Now,
		Sleep:  clk.Sleep,
	}
	return hc, client, mock
}

func yvonneBanker() models.Banker {
	return models.Banker{
		ID:              "banker-1",
		Name:            "Yvonne",
		BankName:        "Premas",
		WhatsAppGroupID: "gY@g.us",
		RoutingKeywords: []string{"yvonne", "premas"},
		Priority:        10,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
}

// TestHandleValuationRequestHappyPath asserts spec §8 scenario 1's literal
// forward and acknowledgment bodies.
func TestHandleValuationRequestHappyPath(t *testing.T) {
	hc, client, mock := newHandlerTestRig(t)

	b := yvonneBanker()
	rows := sqlmock.NewRows([]string{"id", "name", "display_name", "agent_number", "bank_name",
		"whatsapp_group_id", "routing_keywords", "priority", "is_active", "created_at"}).
		AddRow(b.ID, b.Name, "", "", b.BankName, b.WhatsAppGroupID, []byte(`["yvonne","premas"]`), b.Priority, b.IsActive, b.CreatedAt)
	mock.ExpectQuery("SELECT (.+) FROM bankers WHERE is_active").WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO valuation_requests").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE valuation_requests SET forward_message_id").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE valuation_requests SET acknowledgment_message_id").WillReturnResult(sqlmock.NewResult(1, 1))

	body := "Valuation Request:\n\n" +
		"Address: Blk 123 Ang Mo Kio Ave 4\n" +
		"Size: 1200 sqft\n" +
		"Asking: $500,000\n" +
		"Salesperson Name: John Tan\n" +
		"Agent Number: 91234567\n" +
		"Banker Name: Yvonne"

	c := models.Classification{
		Kind: models.KindValuationRequest,
		Message: models.Message{
			WAMessageID: "m1",
			ChatID:      "R@g.us",
			Body:        body,
		},
	}

	err := HandleValuationRequest(hc, c)
	require.NoError(t, err)

	sent := client.SentMessages()
	require.Len(t, sent, 2)

	require.Equal(t, "gY@g.us", sent[0].ChatID)
	require.Equal(t, "Valuation Request:\n\nAddress: Blk 123 Ang Mo Kio Ave 4\nSize: 1200 sqft\nAsking: $500,000", sent[0].Text)

	require.Equal(t, "R@g.us", sent[1].ChatID)
	require.Equal(t, "Thanks! We've forwarded your request to Yvonne.\nWe'll let you know when they replied.", sent[1].Text)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleValuationRequestRejectsMissingMandatoryFields(t *testing.T) {
	hc, client, _ := newHandlerTestRig(t)

	c := models.Classification{
		Kind: models.KindValuationRequest,
		Message: models.Message{
			WAMessageID: "m1",
			ChatID:      "R@g.us",
			Body:        "Valuation Request:\n\nAddress: \nBanker Name: \n",
		},
	}

	err := HandleValuationRequest(hc, c)
	require.Error(t, err)

	sent := client.SentMessages()
	require.Len(t, sent, 1)
	require.Equal(t, "R@g.us", sent[0].ChatID)
	require.Contains(t, sent[0].Text, "Address")
}
