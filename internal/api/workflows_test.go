package api

import (
	"database/sql"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateWorkflowRejectsMissingName(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/api/workflows", map[string]any{"trigger_type": "keyword"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflowNotFoundMapsTo404(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	h.mock.ExpectQuery("SELECT (.+) FROM workflows WHERE id").
		WithArgs("missing-id").WillReturnError(sql.ErrNoRows)

	rec := doRequest(h.engine, http.MethodGet, "/api/workflows/missing-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleWorkflowNotFoundWhenSourceMissing(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	h.mock.ExpectQuery("SELECT (.+) FROM workflows WHERE id").
		WithArgs("missing-id").WillReturnError(sql.ErrNoRows)

	rec := doRequest(h.engine, http.MethodPost, "/api/workflows/missing-id/toggle",
		map[string]any{"is_active": false})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateWorkflowNotFoundWhenSourceMissing(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	h.mock.ExpectQuery("SELECT (.+) FROM workflows WHERE id").
		WithArgs("missing-id").WillReturnError(sql.ErrNoRows)

	rec := doRequest(h.engine, http.MethodPost, "/api/workflows/missing-id/duplicate",
		map[string]any{"new_name": "Copy"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
