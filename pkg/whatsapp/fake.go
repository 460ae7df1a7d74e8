package whatsapp

import (
	"context"
	"sync"
)

// SentText records one SendText/SendMedia call observed by a FakeClient,
// for tests that assert on the literal body sent (e.g. the forward and
// acknowledgment messages of a workflow handler).
type SentText struct {
	ChatID    string
	Text      string
	MessageID string
}

// FakeClient is a test double for Client: no real WhatsApp Web connection,
// just enough state and callback bookkeeping for the gateway's unit tests
// (one of the fakes of SPEC_FULL §2.4, alongside clock.Fake).
type FakeClient struct {
	mu    sync.Mutex
	state State
	sent  []SentText

	InitializeErr error
	LogoutErr     error
	DestroyErr    error
	PingErr       error
	SendErr       error

	onQR             func(QREvent)
	onAuthenticated  func()
	onReady          func()
	onAuthFailure    func()
	onDisconnected   func(DisconnectReason)
	onMessage        func(InboundMessage)
	initializeCalled int
	destroyCalled    int
	logoutCalled     int
}

// NewFakeClient constructs a FakeClient in StateNone.
func NewFakeClient() *FakeClient {
	return &FakeClient{state: StateNone}
}

func (f *FakeClient) Initialize(ctx context.Context) error {
	f.mu.Lock()
	f.initializeCalled++
	f.state = StateConnecting
	f.mu.Unlock()
	return f.InitializeErr
}

func (f *FakeClient) Destroy(ctx context.Context) error {
	f.mu.Lock()
	f.destroyCalled++
	f.state = StateNone
	f.mu.Unlock()
	return f.DestroyErr
}

func (f *FakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logoutCalled++
	f.mu.Unlock()
	return f.LogoutErr
}

func (f *FakeClient) GetState() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FakeClient) SendText(ctx context.Context, chatID, text string) (*SendResult, error) {
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	res := SendResult{MessageID: "fake-" + chatID}
	f.mu.Lock()
	f.sent = append(f.sent, SentText{ChatID: chatID, Text: text, MessageID: res.MessageID})
	f.mu.Unlock()
	return &res, nil
}

func (f *FakeClient) SendMedia(ctx context.Context, chatID string, media Media) (*SendResult, error) {
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	res := SendResult{MessageID: "fake-media-" + chatID}
	f.mu.Lock()
	f.sent = append(f.sent, SentText{ChatID: chatID, Text: media.Caption, MessageID: res.MessageID})
	f.mu.Unlock()
	return &res, nil
}

func (f *FakeClient) Ping(ctx context.Context) error {
	return f.PingErr
}

func (f *FakeClient) OnQR(cb func(QREvent))                    { f.onQR = cb }
func (f *FakeClient) OnAuthenticated(cb func())                { f.onAuthenticated = cb }
func (f *FakeClient) OnReady(cb func())                        { f.onReady = cb }
func (f *FakeClient) OnAuthFailure(cb func())                  { f.onAuthFailure = cb }
func (f *FakeClient) OnDisconnected(cb func(DisconnectReason)) { f.onDisconnected = cb }
func (f *FakeClient) OnMessage(cb func(InboundMessage))        { f.onMessage = cb }

// SentMessages returns a snapshot of every SendText/SendMedia call so far,
// in call order.
func (f *FakeClient) SentMessages() []SentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentText, len(f.sent))
	copy(out, f.sent)
	return out
}

// SetState lets a test force the reported state without going through a
// callback (e.g. to simulate what the watchdog would observe).
func (f *FakeClient) SetState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// FireQR invokes the registered OnQR callback, if any.
func (f *FakeClient) FireQR(ev QREvent) {
	if f.onQR != nil {
		f.onQR(ev)
	}
}

// FireAuthenticated invokes the registered OnAuthenticated callback, if any.
func (f *FakeClient) FireAuthenticated() {
	if f.onAuthenticated != nil {
		f.onAuthenticated()
	}
}

// FireReady invokes the registered OnReady callback, if any.
func (f *FakeClient) FireReady() {
	f.SetState(StateConnected)
	if f.onReady != nil {
		f.onReady()
	}
}

// FireAuthFailure invokes the registered OnAuthFailure callback, if any.
func (f *FakeClient) FireAuthFailure() {
	if f.onAuthFailure != nil {
		f.onAuthFailure()
	}
}

// FireDisconnected invokes the registered OnDisconnected callback, if any.
func (f *FakeClient) FireDisconnected(reason DisconnectReason) {
	if f.onDisconnected != nil {
		f.onDisconnected(reason)
	}
}

// FireMessage invokes the registered OnMessage callback, if any.
func (f *FakeClient) FireMessage(msg InboundMessage) {
	if f.onMessage != nil {
		f.onMessage(msg)
	}
}

// InitializeCalled reports how many times Initialize was invoked.
func (f *FakeClient) InitializeCalled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initializeCalled
}

// DestroyCalled reports how many times Destroy was invoked.
func (f *FakeClient) DestroyCalled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyCalled
}

var _ Client = (*FakeClient)(nil)
