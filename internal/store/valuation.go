package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

// ValuationRepository persists valuation requests (spec §3, §6.2). The
// FindByForwardMessage lookup is the join the banker-reply handler relies
// on (spec §4.5.b, §5 ordering guarantee).
type ValuationRepository struct {
	db *sql.DB
}

func (r *ValuationRepository) Create(ctx context.Context, v *models.ValuationRequest) error {
	start := time.Now()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO valuation_requests (
			id, requester_group_id, request_message_id, address, size, asking, salesperson_name,
			agent_number_raw, agent_phone_e164, agent_whatsapp_id, banker_name_requested, banker_id,
			banker_name, bank_name, target_group_id, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		v.ID, v.RequesterGroupID, v.RequestMessageID, v.Address, v.Size, v.Asking, v.SalespersonName,
		v.AgentNumberRaw, v.AgentPhoneE164, v.AgentWhatsAppID, v.BankerNameRequested, v.BankerID,
		v.BankerName, v.BankName, v.TargetGroupID, v.Status, v.CreatedAt)
	observe("valuation", "create", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// MarkForwarded persists forward_message_id before the caller enqueues the
// acknowledgment, satisfying the ordering guarantee of spec §5.
func (r *ValuationRepository) MarkForwarded(ctx context.Context, id, forwardMessageID string) error {
	start := time.Now()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE valuation_requests SET forward_message_id=$1, forwarded_at=$2, status=$3 WHERE id=$4`,
		forwardMessageID, now, models.ValuationForwarded, id)
	observe("valuation", "mark_forwarded", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *ValuationRepository) SetAcknowledgment(ctx context.Context, id, ackMessageID string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE valuation_requests SET acknowledgment_message_id=$1 WHERE id=$2`, ackMessageID, id)
	observe("valuation", "set_ack", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// FindByForwardMessage locates the ValuationRequest whose forward_message_id
// equals quotedID and whose target_group_id equals chatID (spec §4.5.b).
func (r *ValuationRepository) FindByForwardMessage(ctx context.Context, quotedID, chatID string) (*models.ValuationRequest, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `
		SELECT `+valuationColumns+`
		FROM valuation_requests WHERE forward_message_id=$1 AND target_group_id=$2`, quotedID, chatID)
	v, err := scanValuation(row)
	observe("valuation", "find_by_forward", start, err)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound{Entity: "valuation_request", ID: quotedID}
	}
	if err != nil {
		return nil, apperr.Store{Cause: err}
	}
	return v, nil
}

func (r *ValuationRepository) Get(ctx context.Context, id string) (*models.ValuationRequest, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `SELECT `+valuationColumns+` FROM valuation_requests WHERE id=$1`, id)
	v, err := scanValuation(row)
	observe("valuation", "get", start, err)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound{Entity: "valuation_request", ID: id}
	}
	if err != nil {
		return nil, apperr.Store{Cause: err}
	}
	return v, nil
}

func (r *ValuationRepository) List(ctx context.Context, limit int) ([]*models.ValuationRequest, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+valuationColumns+`
		FROM valuation_requests ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		observe("valuation", "list", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []*models.ValuationRequest
	for rows.Next() {
		v, err := scanValuation(rows)
		if err != nil {
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, v)
	}
	observe("valuation", "list", start, rows.Err())
	return out, rows.Err()
}

// RecordBankerReply persists the banker's reply text and timestamp before
// the handler sends anything downstream (spec §4.5.b step 1).
func (r *ValuationRepository) RecordBankerReply(ctx context.Context, id, replyMessageID, replyText string) error {
	start := time.Now()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE valuation_requests
		SET banker_reply_message_id=$1, banker_reply_text=$2, banker_replied_at=$3, status=$4
		WHERE id=$5`, replyMessageID, replyText, now, models.ValuationRepliedByBank, id)
	observe("valuation", "record_reply", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// SetFinalReply, SetAgentNotification, and Complete persist the independent
// sends of spec §4.5.b step 2/3: a failure of one does not roll back the
// other (spec §7 partial-failure policy).
func (r *ValuationRepository) SetFinalReply(ctx context.Context, id, messageID string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `UPDATE valuation_requests SET final_reply_message_id=$1 WHERE id=$2`, messageID, id)
	observe("valuation", "set_final_reply", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *ValuationRepository) SetAgentNotification(ctx context.Context, id, messageID string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `UPDATE valuation_requests SET agent_notification_message_id=$1 WHERE id=$2`, messageID, id)
	observe("valuation", "set_agent_notification", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *ValuationRepository) Complete(ctx context.Context, id string) error {
	start := time.Now()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE valuation_requests SET status=$1, completed_at=$2 WHERE id=$3`, models.ValuationCompleted, now, id)
	observe("valuation", "complete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

const valuationColumns = `
	id, requester_group_id, request_message_id, address, size, asking, salesperson_name,
	agent_number_raw, agent_phone_e164, agent_whatsapp_id, banker_name_requested, banker_id, banker_name,
	coalesce(bank_name,''), target_group_id, coalesce(forward_message_id,''), forwarded_at, coalesce(acknowledgment_message_id,''),
	coalesce(banker_reply_message_id,''), coalesce(banker_reply_text,''), banker_replied_at,
	coalesce(final_reply_message_id,''), coalesce(agent_notification_message_id,''), status, created_at, completed_at`

func scanValuation(row rowScanner) (*models.ValuationRequest, error) {
	var v models.ValuationRequest
	if err := row.Scan(
		&v.ID, &v.RequesterGroupID, &v.RequestMessageID, &v.Address, &v.Size, &v.Asking, &v.SalespersonName,
		&v.AgentNumberRaw, &v.AgentPhoneE164, &v.AgentWhatsAppID, &v.BankerNameRequested, &v.BankerID, &v.BankerName,
		&v.BankName, &v.TargetGroupID, &v.ForwardMessageID, &v.ForwardedAt, &v.AcknowledgmentMessageID,
		&v.BankerReplyMessageID, &v.BankerReplyText, &v.BankerRepliedAt,
		&v.FinalReplyMessageID, &v.AgentNotificationMessageID, &v.Status, &v.CreatedAt, &v.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}
