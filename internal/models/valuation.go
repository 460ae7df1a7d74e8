package models

import "time"

// ValuationStatus enumerates a ValuationRequest's lifecycle (spec §3).
type ValuationStatus string

const (
	ValuationPending       ValuationStatus = "pending"
	ValuationForwarded     ValuationStatus = "forwarded"
	ValuationRepliedByBank ValuationStatus = "replied_by_banker"
	ValuationCompleted     ValuationStatus = "completed"
)

// ValuationRequest tracks one valuation request end to end (spec §3). The
// ForwardMessageID is the join key a subsequent banker reply uses to
// locate this row (spec glossary, "Forward message id").
type ValuationRequest struct {
	ID                         string
	RequesterGroupID           string
	RequestMessageID           string
	Address                    string
	Size                       string
	Asking                     string
	SalespersonName            string
	AgentNumberRaw             string
	AgentPhoneE164             string
	AgentWhatsAppID            string
	BankerNameRequested        string
	BankerID                   string
	BankerName                 string
	BankName                   string
	TargetGroupID              string
	ForwardMessageID           string
	ForwardedAt                *time.Time
	AcknowledgmentMessageID    string
	BankerReplyMessageID       string
	BankerReplyText            string
	BankerRepliedAt            *time.Time
	FinalReplyMessageID        string
	AgentNotificationMessageID string
	Status                     ValuationStatus
	CreatedAt                  time.Time
	CompletedAt                *time.Time
}
