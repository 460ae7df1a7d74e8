package models

import "time"

// DelayMode selects the inter-contact pacing window for a broadcast
// (spec §3/§4.7).
type DelayMode string

const (
	DelayMode1to2Min DelayMode = "1-2min"
	DelayMode2to3Min DelayMode = "2-3min"
)

// Bounds returns the [min, max) pacing window for the delay mode.
func (d DelayMode) Bounds() (time.Duration, time.Duration) {
	switch d {
	case DelayMode2to3Min:
		return 2 * time.Minute, 3 * time.Minute
	default:
		return 1 * time.Minute, 2 * time.Minute
	}
}

// BroadcastStatus enumerates a BroadcastExecution's lifecycle (spec §3).
type BroadcastStatus string

const (
	BroadcastRunning   BroadcastStatus = "running"
	BroadcastCompleted BroadcastStatus = "completed"
	BroadcastFailed    BroadcastStatus = "failed"
	BroadcastCancelled BroadcastStatus = "cancelled"
)

// BroadcastExecution tracks one bulk-send campaign (spec §3). The
// invariant CurrentIndex = SentCount + FailedCount <= TotalContacts holds
// at every point the executor persists progress.
type BroadcastExecution struct {
	ID                 string
	BroadcastID        string
	Status             BroadcastStatus
	TotalContacts      int
	CurrentIndex       int
	SentCount          int
	FailedCount        int
	MessageContent     string
	ImageURL           string
	DelayMode          DelayMode
	NotificationContact string
	StartedAt          time.Time
	LastSentAt         *time.Time
	CompletedAt        *time.Time
	Error              string
}

// BroadcastMessageStatus enumerates one recipient's delivery state.
type BroadcastMessageStatus string

const (
	BroadcastMsgPending BroadcastMessageStatus = "pending"
	BroadcastMsgSending BroadcastMessageStatus = "sending"
	BroadcastMsgSent    BroadcastMessageStatus = "sent"
	BroadcastMsgFailed  BroadcastMessageStatus = "failed"
)

// BroadcastMessage is one per-recipient row within a BroadcastExecution.
type BroadcastMessage struct {
	ID             string
	ExecutionID    string
	ContactID      string
	RecipientName  string
	RecipientPhone string
	SendOrder      int
	Status         BroadcastMessageStatus
	SentAt         *time.Time
	Error          string
}
