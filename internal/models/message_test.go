package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsGroupChat(t *testing.T) {
	cases := []struct {
		chatID string
		want   bool
	}{
		{"5511999999999@c.us", false},
		{"123456789-987654@g.us", true},
		{"@g.us", false}, // too short to have a real id prefix
		{"", false},
	}
	for _, tc := range cases {
		m := Message{ChatID: tc.chatID}
		require.Equal(t, tc.want, m.IsGroupChat(), "chatID=%q", tc.chatID)
	}
}

func TestHandlerNameMatchesKind(t *testing.T) {
	require.Equal(t, "valuation_request", KindValuationRequest.HandlerName())
	require.Equal(t, "valuation_reply", KindValuationReply.HandlerName())
	require.Equal(t, "rate_package_update", KindRatePackageUpdate.HandlerName())
	require.Equal(t, "bank_rates_update", KindBankRatesUpdate.HandlerName())
	require.Equal(t, "interest_rate", KindInterestRate.HandlerName())
}

func TestClassificationCarriesOriginalMessage(t *testing.T) {
	msg := Message{WAMessageID: "wamid.1", ChatID: "123@c.us", Body: "hi"}
	c := Classification{Kind: KindValuationRequest, Message: msg}
	require.Equal(t, msg, c.Message)
	require.Equal(t, KindValuationRequest, c.Kind)
}
