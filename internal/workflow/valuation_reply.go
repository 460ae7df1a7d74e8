package workflow

import (
	"errors"
	"fmt"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
	"github.com/keyquest/wa-gateway/internal/sendqueue"
)

// HandleValuationReply implements spec §4.5.b.
func HandleValuationReply(hc HandlerContext, c models.Classification) error {
	if c.Message.QuotedID == "" {
		return fmt.Errorf("valuation reply missing quoted_id")
	}

	req, err := hc.Store.Valuations.FindByForwardMessage(hc.Ctx, c.Message.QuotedID, c.Message.ChatID)
	if err != nil {
		var nf apperr.NotFound
		if errors.As(err, &nf) {
			// Not an error worth reporting (spec §4.5.b precondition).
			return nil
		}
		return fmt.Errorf("lookup valuation request by forward message: %w", err)
	}

	if err := hc.Store.Valuations.RecordBankerReply(hc.Ctx, req.ID, c.Message.WAMessageID, c.Message.Body); err != nil {
		return fmt.Errorf("record banker reply: %w", err)
	}

	finalBody := fmt.Sprintf(
		"From Banker: %s - %s\n\nAddress: %s\nSize: %s\nAsking: %s\nValuation: %s",
		req.BankName, req.BankerName, req.Address, req.Size, req.Asking, c.Message.Body)
	finalResult, finalErr := hc.Send(sendqueue.Request{
		ChatID: req.RequesterGroupID, Text: finalBody, Priority: sendqueue.High,
	}).Wait(hc.Ctx)

	var firstErr error
	if finalErr != nil {
		firstErr = fmt.Errorf("await final reply send: %w", finalErr)
	} else if finalResult.Err != nil {
		firstErr = fmt.Errorf("send final reply failed: %w", finalResult.Err)
	} else if err := hc.Store.Valuations.SetFinalReply(hc.Ctx, req.ID, finalResult.MessageID); err != nil {
		firstErr = fmt.Errorf("persist final reply id: %w", err)
	}

	agentBody := fmt.Sprintf("Address: %s\nSize: %s\nAsking: %s\nValuation: %s", req.Address, req.Size, req.Asking, c.Message.Body)
	agentResult, agentErr := hc.Send(sendqueue.Request{
		ChatID: req.AgentWhatsAppID, Text: agentBody, Priority: sendqueue.High,
	}).Wait(hc.Ctx)

	// Steps 2 and 3 are independent: a failure of (3) does not roll back
	// (2) (spec §7 partial-failure policy).
	var secondErr error
	if agentErr != nil {
		secondErr = fmt.Errorf("await agent notification send: %w", agentErr)
	} else if agentResult.Err != nil {
		secondErr = fmt.Errorf("send agent notification failed: %w", agentResult.Err)
	} else if err := hc.Store.Valuations.SetAgentNotification(hc.Ctx, req.ID, agentResult.MessageID); err != nil {
		secondErr = fmt.Errorf("persist agent notification id: %w", err)
	}

	if firstErr == nil && secondErr == nil {
		if err := hc.Store.Valuations.Complete(hc.Ctx, req.ID); err != nil {
			return fmt.Errorf("mark valuation completed: %w", err)
		}
		return nil
	}
	if firstErr != nil {
		return firstErr
	}
	return secondErr
}
