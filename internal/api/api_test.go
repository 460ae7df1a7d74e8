package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/behavior"
	"github.com/keyquest/wa-gateway/internal/broadcast"
	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/config"
	"github.com/keyquest/wa-gateway/internal/eventbus"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/session"
	"github.com/keyquest/wa-gateway/internal/store"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

type testHarness struct {
	engine *gin.Engine
	client *whatsapp.FakeClient
	mock   sqlmock.Sqlmock
	cancel context.CancelFunc
}

func newTestServer(t *testing.T, hourlyCap int) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewWithDB(db)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.NewSystem()
	log := zap.NewNop()

	bhvCfg := behavior.DefaultConfig()
	bhvCfg.HourlyCap = hourlyCap
	bhv := behavior.NewManager(bhvCfg, clk, rdb, log)

	client := whatsapp.NewFakeClient()
	client.SetState(whatsapp.StateConnected)
	sendq := sendqueue.New(func() whatsapp.Client { return client }, bhv, clk, log)

	workerCtx, cancel := context.WithCancel(context.Background())
	go sendq.Run(workerCtx)

	bus := eventbus.New(8, log)
	sess := session.New(func() whatsapp.Client { return client }, clk, bus, nil, log, config.SessionConfig{ID: "test", SessionDir: t.TempDir()})

	bx := broadcast.New(st, sendq, func() whatsapp.Client { return client }, clk, log, bus, workerCtx)

	cfg := &config.Config{
		Server:        config.ServerConfig{Port: 3000},
		Session:       config.SessionConfig{ID: "test"},
		HumanBehavior: config.HumanBehaviorConfig{HourlyCap: hourlyCap, DailyCap: 500},
	}

	engine := New(cfg, sess, sendq, st, bx, bus, bhv, log, time.Now())
	return &testHarness{engine: engine, client: client, mock: mock, cancel: cancel}
}

func doRequest(engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealthReturns200(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "CONNECTED", body["redis"])
}

func TestHandleStatusReportsSessionAndConfig(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "test", body["sessionId"])
	require.Equal(t, "1.0.0", body["version"])
}

func TestHandleQRCodeReportsNoneWhenUnset(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodGet, "/qr-code", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Nil(t, body["qr"])
	require.Equal(t, false, body["isStale"])
}

func TestHandleSendMessageRequiresTarget(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/send-message", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSendMessageRequiresMessageOrImage(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/send-message", map[string]any{"jid": "123@c.us"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSendMessageSucceeds(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/send-message", map[string]any{"jid": "123@c.us", "message": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["success"])
	require.NotEmpty(t, body["messageId"])
}

func TestHandleSendMessageRejectedWhenHourlyCapZero(t *testing.T) {
	h := newTestServer(t, 0)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/send-message", map[string]any{"jid": "123@c.us", "message": "hi"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleSendMessageCriticalPriorityBypassesCap(t *testing.T) {
	h := newTestServer(t, 0)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/send-message",
		map[string]any{"jid": "123@c.us", "message": "hi", "priority": "critical"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleLogoutAlwaysReturns200(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["success"])
	require.Contains(t, body, "details")
}

func TestHandleBroadcastLaunchRejectsEmptyContacts(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/api/broadcast/interest-rate",
		map[string]any{"contacts": []any{}, "message": "hi", "delay_mode": "1-2min"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBroadcastLaunchRejectsInvalidDelayMode(t *testing.T) {
	h := newTestServer(t, 80)
	defer h.cancel()

	rec := doRequest(h.engine, http.MethodPost, "/api/broadcast/interest-rate", map[string]any{
		"contacts":   []any{map[string]any{"id": "c1", "phone": "111@c.us"}},
		"message":    "hi",
		"delay_mode": "instant",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
