package api

import (
	"database/sql"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var valuationCols = []string{
	"id", "requester_group_id", "request_message_id", "address", "size", "asking", "salesperson_name",
	"agent_number_raw", "agent_phone_e164", "agent_whatsapp_id", "banker_name_requested", "banker_id", "banker_name",
	"bank_name", "target_group_id", "forward_message_id", "forwarded_at", "acknowledgment_message_id",
	"banker_reply_message_id", "banker_reply_text", "banker_replied_at",
	"final_reply_message_id", "agent_notification_message_id", "status", "created_at", "completed_at",
}

func TestCreateValuationRejectsMissingAddress(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/api/valuations",
		map[string]any{"requester_group_id": "grp-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetValuationNotFoundMapsTo404(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	h.mock.ExpectQuery("SELECT (.+) FROM valuation_requests WHERE id").
		WithArgs("missing-id").WillReturnError(sql.ErrNoRows)

	rec := doRequest(h.engine, http.MethodGet, "/api/valuations/missing-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListValuationsDefaultsLimitFromQuery(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	h.mock.ExpectQuery("SELECT (.+) FROM valuation_requests").
		WillReturnRows(sqlmock.NewRows(valuationCols))

	rec := doRequest(h.engine, http.MethodGet, "/api/valuations?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
