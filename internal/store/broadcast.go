package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

// BroadcastRepository persists broadcast executions and their per-contact
// messages (spec §4.7, §6.2). Create is keyed by broadcast_id (unique);
// a duplicate insert is treated as idempotent success (spec §4.10).
type BroadcastRepository struct {
	db *sql.DB
}

// CreateExecution inserts the preflight row and bulk-inserts message rows
// inside one transaction (spec §4.7 "Preflight (synchronous)").
func (r *BroadcastRepository) CreateExecution(ctx context.Context, e *models.BroadcastExecution, messages []*models.BroadcastMessage) error {
	start := time.Now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.StartedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		observe("broadcast", "create_execution", start, err)
		return apperr.Store{Cause: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO broadcast_executions (
			id, broadcast_id, status, total_contacts, current_index, sent_count, failed_count,
			message_content, image_url, delay_mode, notification_contact, started_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (broadcast_id) DO NOTHING`,
		e.ID, e.BroadcastID, e.Status, e.TotalContacts, e.CurrentIndex, e.SentCount, e.FailedCount,
		e.MessageContent, nullableString(e.ImageURL), e.DelayMode, nullableString(e.NotificationContact), e.StartedAt)
	if err != nil {
		observe("broadcast", "create_execution", start, err)
		return apperr.Store{Cause: err}
	}

	for _, m := range messages {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.ExecutionID = e.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO broadcast_messages (id, execution_id, contact_id, recipient_name, recipient_phone, send_order, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			m.ID, m.ExecutionID, nullableString(m.ContactID), m.RecipientName, m.RecipientPhone, m.SendOrder, m.Status); err != nil {
			observe("broadcast", "create_execution", start, err)
			return apperr.Store{Cause: err}
		}
	}

	err = tx.Commit()
	observe("broadcast", "create_execution", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *BroadcastRepository) GetExecution(ctx context.Context, idOrBroadcastID string) (*models.BroadcastExecution, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `SELECT `+broadcastExecColumns+`
		FROM broadcast_executions WHERE id=$1 OR broadcast_id=$1`, idOrBroadcastID)
	e, err := scanBroadcastExecution(row)
	observe("broadcast", "get_execution", start, err)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound{Entity: "broadcast_execution", ID: idOrBroadcastID}
	}
	if err != nil {
		return nil, apperr.Store{Cause: err}
	}
	return e, nil
}

func (r *BroadcastRepository) ListExecutions(ctx context.Context, status string, limit int) ([]*models.BroadcastExecution, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + broadcastExecColumns + ` FROM broadcast_executions`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		observe("broadcast", "list_executions", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []*models.BroadcastExecution
	for rows.Next() {
		e, err := scanBroadcastExecution(rows)
		if err != nil {
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, e)
	}
	observe("broadcast", "list_executions", start, rows.Err())
	return out, rows.Err()
}

// UpdateProgress persists current_index/sent_count/failed_count/last_sent_at
// after every contact (spec §4.7 step 4/5, §9 "persist progress after
// every contact").
func (r *BroadcastRepository) UpdateProgress(ctx context.Context, e *models.BroadcastExecution) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE broadcast_executions SET current_index=$1, sent_count=$2, failed_count=$3, last_sent_at=$4
		WHERE id=$5`, e.CurrentIndex, e.SentCount, e.FailedCount, e.LastSentAt, e.ID)
	observe("broadcast", "update_progress", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// Complete stamps the terminal status (spec §4.7 "Termination").
func (r *BroadcastRepository) Complete(ctx context.Context, id string, status models.BroadcastStatus, execErr string) error {
	start := time.Now()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE broadcast_executions SET status=$1, completed_at=$2, error=$3 WHERE id=$4`,
		status, now, nullableString(execErr), id)
	observe("broadcast", "complete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *BroadcastRepository) UpdateMessageStatus(ctx context.Context, id string, status models.BroadcastMessageStatus, execErr string) error {
	start := time.Now()
	var sentAt interface{}
	if status == models.BroadcastMsgSent {
		sentAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE broadcast_messages SET status=$1, sent_at=$2, error=$3 WHERE id=$4`,
		status, sentAt, nullableString(execErr), id)
	observe("broadcast", "update_message_status", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *BroadcastRepository) ListMessages(ctx context.Context, executionID string) ([]*models.BroadcastMessage, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, coalesce(contact_id,''), recipient_name, recipient_phone, send_order, status, sent_at, coalesce(error,'')
		FROM broadcast_messages WHERE execution_id=$1 ORDER BY send_order ASC`, executionID)
	if err != nil {
		observe("broadcast", "list_messages", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []*models.BroadcastMessage
	for rows.Next() {
		var m models.BroadcastMessage
		if err := rows.Scan(&m.ID, &m.ExecutionID, &m.ContactID, &m.RecipientName, &m.RecipientPhone,
			&m.SendOrder, &m.Status, &m.SentAt, &m.Error); err != nil {
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, &m)
	}
	observe("broadcast", "list_messages", start, rows.Err())
	return out, rows.Err()
}

const broadcastExecColumns = `
	id, broadcast_id, status, total_contacts, current_index, sent_count, failed_count,
	message_content, coalesce(image_url,''), delay_mode, coalesce(notification_contact,''),
	started_at, last_sent_at, completed_at, coalesce(error,'')`

func scanBroadcastExecution(row rowScanner) (*models.BroadcastExecution, error) {
	var e models.BroadcastExecution
	if err := row.Scan(&e.ID, &e.BroadcastID, &e.Status, &e.TotalContacts, &e.CurrentIndex, &e.SentCount, &e.FailedCount,
		&e.MessageContent, &e.ImageURL, &e.DelayMode, &e.NotificationContact,
		&e.StartedAt, &e.LastSentAt, &e.CompletedAt, &e.Error); err != nil {
		return nil, err
	}
	return &e, nil
}
