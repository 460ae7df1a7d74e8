package whatsapp

import (
	"context"
	"errors"
	"strings"
)

// Common sentinel errors surfaced by a Client implementation. The gateway
// classifies these (and their wrapped causes) per spec §4.3/§7.
var (
	ErrNotReady      = errors.New("whatsapp: client not ready")
	ErrInvalidTarget = errors.New("whatsapp: invalid chat id")
	ErrAuthFailure   = errors.New("whatsapp: authentication failure")
)

// Client is the capability the gateway consumes from the browser-automated
// WhatsApp Web session (spec §6.1). The concrete implementation — the
// headless browser driver — is an external collaborator out of scope for
// this module; production wiring supplies it, tests supply a fake.
type Client interface {
	Initialize(ctx context.Context) error
	Destroy(ctx context.Context) error
	Logout(ctx context.Context) error
	GetState() State
	SendText(ctx context.Context, chatID, text string) (*SendResult, error)
	SendMedia(ctx context.Context, chatID string, media Media) (*SendResult, error)
	Ping(ctx context.Context) error

	OnQR(cb func(QREvent))
	OnAuthenticated(cb func())
	OnReady(cb func())
	OnAuthFailure(cb func())
	OnDisconnected(cb func(DisconnectReason))
	OnMessage(cb func(InboundMessage))
}

// classifiedTransientSubstrings are substring markers the driver's error
// text uses for recoverable conditions (spec §4.3 "Transient").
var classifiedTransientSubstrings = []string{
	"detached frame",
	"execution context was destroyed",
	"network reset",
	"timeout",
	"not ready",
	"econnreset",
}

// rateLimitSubstrings mark provider-side throttling, treated as transient
// with a longer retry floor per spec §4.3.
var rateLimitSubstrings = []string{
	"rate limit",
}

// ErrorKind is the taxonomy a send attempt's error is classified into.
type ErrorKind int

const (
	ErrorKindTerminal ErrorKind = iota
	ErrorKindTransient
	ErrorKindProviderRateLimit
)

// Classify inspects an error returned from a Client send operation and
// buckets it per spec §4.3. Unknown errors default to Terminal — a driver
// that doesn't name a known recoverable condition is assumed permanent,
// matching the teacher's isRecoverableError default-to-optimistic was
// deliberately inverted here: WhatsApp driver errors are novel and
// under-specified, so we fail closed instead of retrying forever.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindTerminal
	}
	if errors.Is(err, ErrAuthFailure) || errors.Is(err, ErrInvalidTarget) {
		return ErrorKindTerminal
	}
	msg := strings.ToLower(err.Error())
	for _, s := range rateLimitSubstrings {
		if strings.Contains(msg, s) {
			return ErrorKindProviderRateLimit
		}
	}
	for _, s := range classifiedTransientSubstrings {
		if strings.Contains(msg, s) {
			return ErrorKindTransient
		}
	}
	return ErrorKindTerminal
}
