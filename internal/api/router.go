// Package api implements the Control-Plane API (spec §4.8/§6.3, C8): a
// gin HTTP server exposing health/status, session control, broadcast
// launch, CRUD over the entity store, image upload, and the WebSocket
// event fanout. Grounded on the teacher's internal/handlers package
// (gin.Context + gin.H{"error":...} response shape, otel span-per-handler
// tracing), generalized from the teacher's single message/webhook handler
// pair into the full route surface spec §6.3 names.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/keyquest/wa-gateway/internal/behavior"
	"github.com/keyquest/wa-gateway/internal/broadcast"
	"github.com/keyquest/wa-gateway/internal/config"
	"github.com/keyquest/wa-gateway/internal/eventbus"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
	"github.com/keyquest/wa-gateway/internal/session"
	"github.com/keyquest/wa-gateway/internal/store"
)

// version is the gateway's reported API version (spec §6.3 `GET
// /api/status` → {..., version, ...}).
const version = "1.0.0"

// Server wires every collaborator the HTTP surface calls into.
type Server struct {
	cfg       *config.Config
	session   *session.Supervisor
	sendq     *sendqueue.Queue
	store     *store.Store
	broadcast *broadcast.Executor
	bus       *eventbus.Bus
	behavior  *behavior.Manager
	log       *zap.Logger
	tracer    trace.Tracer
	startedAt time.Time
	upgrader  websocket.Upgrader
	limiter   *rate.Limiter
}

// New constructs the gin engine with every route of spec §6.3 registered.
func New(cfg *config.Config, sess *session.Supervisor, sendq *sendqueue.Queue, st *store.Store,
	bx *broadcast.Executor, bus *eventbus.Bus, bhv *behavior.Manager, log *zap.Logger, startedAt time.Time) *gin.Engine {

	s := &Server{
		cfg: cfg, session: sess, sendq: sendq, store: st, broadcast: bx, bus: bus, behavior: bhv,
		log: log, tracer: otel.Tracer("wa-gateway/api"), startedAt: startedAt,
		upgrader: websocket.Upgrader{
			ReadBufferSize: 1024, WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: rate.NewLimiter(rate.Limit(1000), 50),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.rateLimit())

	r.GET("/health", s.handleHealth)
	r.GET("/", s.handleRoot)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api/status", s.handleStatus)
	r.GET("/qr-code", s.handleQRCode)
	r.POST("/send-message", s.handleSendMessage)
	r.POST("/logout", s.handleLogout)

	r.POST("/api/broadcast/interest-rate", s.handleBroadcastLaunch)
	r.GET("/api/broadcast/status/:id", s.handleBroadcastStatus)
	r.GET("/api/broadcast/history", s.handleBroadcastHistory)

	registerWorkflowRoutes(r, s)
	registerTemplateRoutes(r, s)
	registerContactRoutes(r, s)
	registerBankerRoutes(r, s)
	registerValuationRoutes(r, s)

	r.POST("/api/upload/image", s.handleUploadImage)

	return r
}

// requestLogger is a thin zap-backed gin middleware, grounded on the
// teacher's per-handler timer+span pattern but applied uniformly instead
// of per-handler (spec's ambient logging concern, not a C8 operation).
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// rateLimit is the HTTP-layer throttle, distinct from C2's process-wide
// domain throttling: a single token bucket shared across all routes,
// grounded on the teacher's MessageHandler.rateLimiter (rate.Limit(1000),
// burst 50) applied per-handler there, applied here as one gin middleware
// for the whole surface instead.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		if err := s.limiter.Wait(c.Request.Context()); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// handleRoot serves the static dashboard placeholder for plain GETs and
// upgrades to the event-bus WebSocket feed otherwise (spec §6.3 "Static
// dashboard served at /" + "WebSocket at server root").
func (s *Server) handleRoot(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.String(http.StatusOK, "wa-gateway control plane")
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	s.bus.ServeConnection(conn, c.Request.Context().Done())
}
