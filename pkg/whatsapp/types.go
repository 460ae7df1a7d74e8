// Package whatsapp defines the capability surface the gateway consumes
// from the underlying browser-automated WhatsApp Web session. The driver
// itself (the headless browser stack) is an external collaborator and is
// never implemented here — only the narrow interface the core calls.
package whatsapp

import "time"

// State mirrors the client-reported connection state (spec §6.1).
type State string

const (
	StateNone         State = "NONE"
	StateConnecting   State = "AUTHENTICATING"
	StateConnected    State = "CONNECTED"
	StateDisconnected State = "DISCONNECTED"
	StateError        State = "ERROR"
)

// Media describes an outbound media attachment.
type Media struct {
	Kind    string // image, video, document, audio
	URL     string
	Bytes   []byte
	Caption string
}

// SendResult is returned by a successful send.
type SendResult struct {
	MessageID string
}

// QuotedMessage is the (optional) message a received message replies to.
type QuotedMessage struct {
	ID   string
	Body string
}

// InboundMessage is the narrow, tagged shape the driver hands to the core.
// It never leaks the driver's raw message object past the session
// supervisor (spec §9, "do not leak the client's raw message object").
type InboundMessage struct {
	WAMessageID string
	ChatID      string
	SenderID    string
	Body        string
	Timestamp   time.Time
	Quoted      *QuotedMessage
}

// QREvent carries a freshly generated QR payload from the driver.
type QREvent struct {
	Raw       string
	Timestamp time.Time
}

// DisconnectReason classifies why the driver dropped the session.
type DisconnectReason string

const (
	DisconnectLoggedOut DisconnectReason = "logged_out"
	DisconnectConflict  DisconnectReason = "conflict"
	DisconnectUnknown   DisconnectReason = "unknown"
)

// IsGroupChat reports whether a chat id identifies a group chat.
func IsGroupChat(chatID string) bool {
	return len(chatID) > 5 && chatID[len(chatID)-5:] == "@g.us"
}
