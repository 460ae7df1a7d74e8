package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/keyquest/wa-gateway/internal/models"
)

// TestHandleValuationReplyProducesSpecHeader asserts spec §8 scenario 2's
// literal "From Banker: <bank_name> - <banker_name>" header and completion.
func TestHandleValuationReplyProducesSpecHeader(t *testing.T) {
	hc, client, mock := newHandlerTestRig(t)

	cols := []string{
		"id", "requester_group_id", "request_message_id", "address", "size", "asking", "salesperson_name",
		"agent_number_raw", "agent_phone_e164", "agent_whatsapp_id", "banker_name_requested", "banker_id", "banker_name",
		"bank_name", "target_group_id", "forward_message_id", "forwarded_at", "acknowledgment_message_id",
		"banker_reply_message_id", "banker_reply_text", "banker_replied_at",
		"final_reply_message_id", "agent_notification_message_id", "status", "created_at", "completed_at",
	}
	now := time.Now()
	rows := sqlmock.NewRows(cols).AddRow(
		"v1", "R@g.us", "m1", "Blk 123 Ang Mo Kio Ave 4", "1200 sqft", "$500,000", "John Tan",
		"91234567", "6591234567", "6591234567@c.us", "Yvonne", "banker-1", "Yvonne",
		"Premas", "gY@g.us", "m2", now, "",
		"", "", nil,
		"", "", string(models.ValuationForwarded), now, nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM valuation_requests WHERE forward_message_id").
		WithArgs("m2", "gY@g.us").WillReturnRows(rows)
	mock.ExpectExec("UPDATE valuation_requests SET banker_reply_message_id").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE valuation_requests SET final_reply_message_id").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE valuation_requests SET agent_notification_message_id").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE valuation_requests SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	c := models.Classification{
		Kind: models.KindValuationReply,
		Message: models.Message{
			WAMessageID: "m3",
			ChatID:      "gY@g.us",
			QuotedID:    "m2",
			Body:        "Estimated valuation $480,000 to $520,000. - Yvonne (AG001)",
		},
	}

	err := HandleValuationReply(hc, c)
	require.NoError(t, err)

	sent := client.SentMessages()
	require.Len(t, sent, 2)

	require.Equal(t, "R@g.us", sent[0].ChatID)
	require.Contains(t, sent[0].Text, "From Banker: Premas - Yvonne")
	require.Contains(t, sent[0].Text, "Valuation: Estimated valuation $480,000 to $520,000. - Yvonne (AG001)")

	require.Equal(t, "6591234567@c.us", sent[1].ChatID)
	require.NotContains(t, sent[1].Text, "From Banker:")
	require.Contains(t, sent[1].Text, "Valuation: Estimated valuation $480,000 to $520,000. - Yvonne (AG001)")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleValuationReplyNoopsWithoutQuotedID(t *testing.T) {
	hc, client, _ := newHandlerTestRig(t)

	c := models.Classification{
		Kind: models.KindValuationReply,
		Message: models.Message{
			WAMessageID: "m3",
			ChatID:      "gY@g.us",
			Body:        "Estimated valuation $480,000 to $520,000.",
		},
	}

	err := HandleValuationReply(hc, c)
	require.Error(t, err)
	require.Empty(t, client.SentMessages())
}
