package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateBankerRejectsMissingRequiredFields(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/api/bankers", map[string]any{"name": "DBS Desk"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBankerNotFoundMapsTo404(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	h.mock.ExpectQuery("SELECT (.+) FROM bankers WHERE id").
		WithArgs("missing-id").WillReturnError(sql.ErrNoRows)

	rec := doRequest(h.engine, http.MethodGet, "/api/bankers/missing-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
}

func TestUploadImageDisabledWhenImageKitNotConfigured(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "pic.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("not a real image, but the endpoint rejects before reading it"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
