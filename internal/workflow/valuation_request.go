package workflow

import (
	"fmt"
	"strings"

	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
)

// parseLabeledLines extracts the labeled-line fields of spec §4.5.a: for
// each line, splits on the first ':' and matches the label
// case-insensitively. Unknown lines (e.g. the "Valuation Request:" header
// itself) are ignored.
func parseLabeledLines(body string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		out[label] = value
	}
	return out
}

// normalizeAgentNumber implements spec §4.5.a's agent-number normalization
// (identical in shape to models.NormalizePhone, kept separate since the
// spec names it as part of the handler's own contract rather than the
// store's contact-import rule).
func normalizeAgentNumber(raw string) (e164 string, waID string) {
	normalized := models.NormalizePhone(raw)
	return normalized, models.WhatsAppID(normalized)
}

// HandleValuationRequest implements spec §4.5.a.
func HandleValuationRequest(hc HandlerContext, c models.Classification) error {
	fields := parseLabeledLines(c.Message.Body)
	address := fields["address"]
	bankerNameRequested := fields["banker name"]

	if address == "" || bankerNameRequested == "" {
		hc.Send(sendqueue.Request{
			ChatID: c.Message.ChatID,
			Text: "We couldn't process your valuation request. Please include Address, Size, Asking, " +
				"Salesperson Name, Agent Number, and Banker Name, each on its own line.",
			Priority: sendqueue.High,
		}).Wait(hc.Ctx)
		return fmt.Errorf("valuation request missing mandatory fields")
	}

	agentPhone, agentWAID := normalizeAgentNumber(fields["agent number"])

	bankers, err := hc.Store.Bankers.ListActive(hc.Ctx)
	if err != nil {
		return fmt.Errorf("list active bankers: %w", err)
	}
	banker, found := models.SelectBanker(bankers, c.Message.Body)
	if !found {
		hc.Send(sendqueue.Request{
			ChatID:   c.Message.ChatID,
			Text:     "No banker matched this valuation request. Please check the Banker Name and try again.",
			Priority: sendqueue.High,
		})
		return fmt.Errorf("no banker matched body")
	}

	req := &models.ValuationRequest{
		RequesterGroupID:    c.Message.ChatID,
		RequestMessageID:    c.Message.WAMessageID,
		Address:             address,
		Size:                fields["size"],
		Asking:              fields["asking"],
		SalespersonName:     fields["salesperson name"],
		AgentNumberRaw:      fields["agent number"],
		AgentPhoneE164:      agentPhone,
		AgentWhatsAppID:     agentWAID,
		BankerNameRequested: bankerNameRequested,
		BankerID:            banker.ID,
		BankerName:          banker.Name,
		BankName:            banker.BankName,
		TargetGroupID:       banker.WhatsAppGroupID,
		Status:              models.ValuationPending,
	}
	if err := hc.Store.Valuations.Create(hc.Ctx, req); err != nil {
		return fmt.Errorf("create valuation request: %w", err)
	}

	forwardBody := fmt.Sprintf("Valuation Request:\n\nAddress: %s\nSize: %s\nAsking: %s", req.Address, req.Size, req.Asking)
	forwardFuture := hc.Send(sendqueue.Request{ChatID: req.TargetGroupID, Text: forwardBody, Priority: sendqueue.High})
	forwardResult, waitErr := forwardFuture.Wait(hc.Ctx)
	if waitErr != nil {
		return fmt.Errorf("await forward send: %w", waitErr)
	}
	if forwardResult.Err != nil {
		return fmt.Errorf("forward to banker group failed: %w", forwardResult.Err)
	}

	if err := hc.Store.Valuations.MarkForwarded(hc.Ctx, req.ID, forwardResult.MessageID); err != nil {
		return fmt.Errorf("mark forwarded: %w", err)
	}

	ackBody := fmt.Sprintf("Thanks! We've forwarded your request to %s.\nWe'll let you know when they replied.", banker.Name)
	ackFuture := hc.Send(sendqueue.Request{ChatID: req.RequesterGroupID, Text: ackBody, Priority: sendqueue.Normal})
	ackResult, waitErr := ackFuture.Wait(hc.Ctx)
	if waitErr != nil {
		return fmt.Errorf("await acknowledgment send: %w", waitErr)
	}
	if ackResult.Err != nil {
		return fmt.Errorf("send acknowledgment failed: %w", ackResult.Err)
	}
	if err := hc.Store.Valuations.SetAcknowledgment(hc.Ctx, req.ID, ackResult.MessageID); err != nil {
		return fmt.Errorf("set acknowledgment: %w", err)
	}

	return nil
}
