// Package session implements the Session Supervisor (spec §4.6, C6): the
// WhatsApp client lifecycle state machine, QR rendering, watchdog, and
// memory monitor. Grounded on the teacher's internal/services lifecycle
// callbacks (on_ready/on_disconnect-style wiring), generalized from the
// teacher's Business-API webhook subscription into the §4.6 state machine
// driven by pkg/whatsapp.Client's On* callbacks.
package session

import (
	"context"
	"encoding/base64"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/keyquest/wa-gateway/internal/clock"
	"github.com/keyquest/wa-gateway/internal/config"
	"github.com/keyquest/wa-gateway/internal/eventbus"
	"github.com/keyquest/wa-gateway/internal/metrics"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/pkg/whatsapp"
)

// Admitter is the narrow capability the supervisor needs from
// internal/receive, avoiding a session↔receive import cycle (spec §9's
// "pass a narrow capability interface" design note, the same pattern
// internal/workflow and internal/broadcast use against C9).
type Admitter interface {
	Admit(ctx context.Context, msg models.Message)
}

// State enumerates the Session State machine of spec §4.6.
type State string

const (
	StateNone          State = "NONE"
	StateStarting      State = "STARTING"
	StateQR            State = "QR"
	StateAuthenticated State = "AUTHENTICATED"
	StateReady         State = "READY"
	StateDisconnected  State = "DISCONNECTED"
	StateFailed        State = "FAILED"
)

// Supervisor owns the whatsapp.Client lifecycle (spec §4.6).
type Supervisor struct {
	newClient func() whatsapp.Client
	clock     clock.Clock
	bus       *eventbus.Bus
	admitter  Admitter
	log       *zap.Logger
	cfg       config.SessionConfig

	mu             sync.Mutex
	state          State
	client         whatsapp.Client
	qrDataURL      string
	qrGeneratedAt  time.Time
	lastRawQR      string
	currentAttempt int
}

// New constructs a Supervisor in state NONE. admitter may be nil at
// construction time if the receive queue is wired up after (see
// SetAdmitter) to break the sendqueue/session construction cycle; it must
// be non-nil before Start is called.
func New(newClient func() whatsapp.Client, clk clock.Clock, bus *eventbus.Bus, admitter Admitter, log *zap.Logger, cfg config.SessionConfig) *Supervisor {
	return &Supervisor{newClient: newClient, clock: clk, bus: bus, admitter: admitter, log: log, cfg: cfg, state: StateNone}
}

// SetAdmitter wires the receive queue after construction, for callers that
// must build the send queue (which needs Client) before the receive queue
// (which needs the send queue) exists.
func (s *Supervisor) SetAdmitter(a Admitter) {
	s.mu.Lock()
	s.admitter = a
	s.mu.Unlock()
}

// State returns the current session state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QRCode returns the current QR data-URL, its generation time, and whether
// one is currently available (spec §6.3 `GET /qr-code`).
func (s *Supervisor) QRCode() (dataURL string, generatedAt time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qrDataURL, s.qrGeneratedAt, s.qrDataURL != ""
}

// Client returns the current client handle (may be nil before Start).
func (s *Supervisor) Client() whatsapp.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	for _, st := range []State{StateNone, StateStarting, StateQR, StateAuthenticated, StateReady, StateDisconnected, StateFailed} {
		v := 0.0
		if st == state {
			v = 1.0
		}
		metrics.SessionState.WithLabelValues(string(st)).Set(v)
	}
}

// Start implements spec §4.6 start(): no-op unless state is NONE,
// DISCONNECTED or FAILED (the latter two are the restart paths); creates
// the client, subscribes to its events, and kicks off initialization in
// the background so the HTTP server is never blocked on it.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateNone && s.state != StateDisconnected && s.state != StateFailed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.setState(StateStarting)

	client := s.newClient()
	client.OnQR(s.onQR)
	client.OnAuthenticated(s.onAuthenticated)
	client.OnReady(s.onReady)
	client.OnAuthFailure(s.onAuthFailure)
	client.OnDisconnected(s.onDisconnected)
	client.OnMessage(s.onMessage)

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	go func() {
		if err := client.Initialize(ctx); err != nil {
			s.log.Warn("client initialize failed", zap.Error(err))
			s.onDisconnected(whatsapp.DisconnectUnknown)
		}
	}()
}

// onQR implements spec §4.6 on_qr: render to PNG data-URL, emit at most
// once per unique raw value.
func (s *Supervisor) onQR(ev whatsapp.QREvent) {
	s.mu.Lock()
	if ev.Raw == s.lastRawQR {
		s.mu.Unlock()
		return
	}
	s.lastRawQR = ev.Raw
	s.mu.Unlock()

	png, err := qrcode.Encode(ev.Raw, qrcode.Medium, 256)
	if err != nil {
		s.log.Warn("failed to render qr code", zap.Error(err))
		return
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	now := s.clock.Now()

	s.mu.Lock()
	s.qrDataURL = dataURL
	s.qrGeneratedAt = now
	s.mu.Unlock()

	s.setState(StateQR)
	s.bus.Publish("qr", map[string]any{"qr_png_dataurl": dataURL, "generated_at": now})
}

func (s *Supervisor) onAuthenticated() {
	s.setState(StateAuthenticated)
	s.bus.Publish("authenticated", nil)
}

// onReady implements spec §4.6 on_ready: clear QR, set READY, reset the
// reconnect backoff counter.
func (s *Supervisor) onReady() {
	s.mu.Lock()
	s.qrDataURL = ""
	s.currentAttempt = 0
	s.mu.Unlock()
	s.setState(StateReady)
	s.bus.Publish("ready", nil)
}

// onMessage implements spec §4.6's inbound fan-out: every message the
// driver hands up is translated to the core's models.Message and handed
// to the receive queue for classification and dispatch.
func (s *Supervisor) onMessage(ev whatsapp.InboundMessage) {
	msg := models.Message{
		WAMessageID: ev.WAMessageID,
		ChatID:      ev.ChatID,
		SenderID:    ev.SenderID,
		Body:        ev.Body,
		Timestamp:   ev.Timestamp,
	}
	if ev.Quoted != nil {
		msg.QuotedID = ev.Quoted.ID
		msg.QuotedBody = ev.Quoted.Body
	}
	s.mu.Lock()
	admitter := s.admitter
	s.mu.Unlock()
	if admitter != nil {
		admitter.Admit(context.Background(), msg)
	}
}

// onAuthFailure implements spec §4.6 on_auth_failure: wipe the local
// session directory, schedule start() after U(8s,15s).
func (s *Supervisor) onAuthFailure() {
	s.setState(StateFailed)
	if s.cfg.SessionDir != "" {
		if err := os.RemoveAll(s.cfg.SessionDir); err != nil {
			s.log.Warn("failed to wipe session directory", zap.Error(err))
		}
	}
	delay := s.clock.Uniform(8*time.Second, 15*time.Second)
	s.scheduleRestart(delay)
}

// onDisconnected implements spec §4.6 on_disconnect: destroy the client,
// schedule reconnect with exponential backoff plus jitter.
func (s *Supervisor) onDisconnected(reason whatsapp.DisconnectReason) {
	s.setState(StateDisconnected)

	s.mu.Lock()
	client := s.client
	s.currentAttempt++
	n := s.currentAttempt
	s.mu.Unlock()

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = client.Destroy(ctx)
		cancel()
	}

	backoff := minDuration(time.Duration(1<<uint(n))*time.Second, 60*time.Second) + s.clock.Uniform(0, 10*time.Second)
	s.log.Info("session disconnected, scheduling reconnect",
		zap.String("reason", string(reason)), zap.Int("attempt", n), zap.Duration("backoff", backoff))
	s.scheduleRestart(backoff)
}

func (s *Supervisor) scheduleRestart(delay time.Duration) {
	go func() {
		s.clock.Sleep(delay)
		s.Start(context.Background())
	}()
}

// Logout implements spec §4.6 logout(): best-effort client logout,
// destroy, purge both session and chrome-profile directories, clear QR,
// broadcast logout, reset the backoff counter, schedule start() after 3s.
func (s *Supervisor) Logout(ctx context.Context) map[string]bool {
	details := map[string]bool{
		"clientLogout": false, "clientDestroy": false,
		"chromeProfileCleanup": false, "localSessionCleanup": false, "qrCodeCleared": false,
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client != nil {
		details["clientLogout"] = client.Logout(ctx) == nil
		details["clientDestroy"] = client.Destroy(ctx) == nil
	}

	if s.cfg.SessionDir != "" {
		details["localSessionCleanup"] = os.RemoveAll(s.cfg.SessionDir) == nil
	}
	if s.cfg.ChromeProfileDir != "" {
		details["chromeProfileCleanup"] = os.RemoveAll(s.cfg.ChromeProfileDir) == nil
	}

	s.mu.Lock()
	s.qrDataURL = ""
	s.currentAttempt = 0
	s.mu.Unlock()
	details["qrCodeCleared"] = true

	s.setState(StateNone)
	s.bus.Publish("logout", nil)
	s.scheduleRestart(3 * time.Second)

	return details
}

// RunWatchdog implements spec §4.6's watchdog: every U(7min,10min), ask
// client state; if READY no-op; if nil but QR present no-op (awaiting
// scan); otherwise destroy and restart.
func (s *Supervisor) RunWatchdog(ctx context.Context) {
	for {
		interval := s.clock.Uniform(s.cfg.WatchdogMin, s.cfg.WatchdogMax)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}

		client := s.Client()
		_, hasQR := func() (string, bool) {
			u, _, ok := s.QRCode()
			return u, ok
		}()

		if client == nil {
			if hasQR {
				continue
			}
			s.log.Warn("watchdog: no client and no pending qr, restarting")
			s.Start(ctx)
			continue
		}
		switch client.GetState() {
		case whatsapp.StateConnected:
			// no-op
		default:
			if hasQR {
				continue
			}
			s.log.Warn("watchdog: client unhealthy, destroying and restarting")
			s.onDisconnected(whatsapp.DisconnectUnknown)
		}
	}
}

// RunMemoryMonitor implements spec §4.6's memory monitor: every
// U(6min,8min), read RSS; soft threshold suggests GC, hard threshold
// destroys and restarts. RSS is read via gopsutil (no stdlib API exposes
// process RSS portably).
func (s *Supervisor) RunMemoryMonitor(ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.Warn("memory monitor: failed to attach to self process", zap.Error(err))
		return
	}

	for {
		interval := s.clock.Uniform(s.cfg.MemoryMonitorMin, s.cfg.MemoryMonitorMax)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}

		info, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			s.log.Warn("memory monitor: failed to read memory info", zap.Error(err))
			continue
		}
		rssMB := int(info.RSS / (1024 * 1024))
		switch {
		case rssMB >= s.cfg.HardMemoryLimitMB:
			s.log.Warn("memory monitor: hard limit exceeded, recycling session", zap.Int("rss_mb", rssMB))
			s.onDisconnected(whatsapp.DisconnectUnknown)
		case rssMB >= s.cfg.SoftMemoryLimitMB:
			s.log.Info("memory monitor: soft limit exceeded, suggesting gc", zap.Int("rss_mb", rssMB))
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
