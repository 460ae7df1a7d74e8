// Package models holds the domain entities of spec §3: the transient
// inbound Message/Classification types and the persisted entities CRUD'd
// through internal/store. Grounded in the teacher's internal/models
// package shape (constants block, constructor + Validate pattern), with
// the teacher's Business-API message model replaced by this gateway's
// domain (valuations, bankers, broadcasts) per SPEC_FULL §0.
package models

import "time"

// Message is the transient, in-memory representation of an inbound
// WhatsApp message (spec §3). It is never persisted by the core.
type Message struct {
	WAMessageID string
	ChatID      string
	SenderID    string
	Body        string
	Timestamp   time.Time
	QuotedID    string
	QuotedBody  string
}

// IsGroupChat reports whether the message originated in a group chat.
func (m Message) IsGroupChat() bool {
	return len(m.ChatID) > 5 && m.ChatID[len(m.ChatID)-5:] == "@g.us"
}

// ClassificationKind discriminates the classification union of spec §3.
type ClassificationKind string

const (
	KindValuationRequest  ClassificationKind = "valuation_request"
	KindValuationReply    ClassificationKind = "valuation_reply"
	KindRatePackageUpdate ClassificationKind = "rate_package_update"
	KindBankRatesUpdate   ClassificationKind = "bank_rates_update"
	KindInterestRate      ClassificationKind = "interest_rate"
	KindIgnored           ClassificationKind = "ignored"
)

// HandlerName maps a classification kind to the workflow handler name of
// spec §4.5's dispatch table. Ignored has no handler.
func (k ClassificationKind) HandlerName() string {
	return string(k)
}

// Classification is the result of classifying a Message (spec §3).
type Classification struct {
	Kind    ClassificationKind
	Message Message
}
