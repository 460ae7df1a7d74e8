package api

import (
	"database/sql"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateContactListRejectsEmptyName(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/api/contacts", map[string]any{"description": "VIP leads"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContactListNotFoundMapsTo404(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	h.mock.ExpectQuery("SELECT (.+) FROM contact_lists WHERE id").
		WithArgs("missing-id").WillReturnError(sql.ErrNoRows)

	rec := doRequest(h.engine, http.MethodGet, "/api/contacts/missing-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListContactsRequiresListIDQueryParam(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodGet, "/api/broadcast-contacts", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportContactsRequiresListIDAndFile(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/api/broadcast-contacts/import", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
