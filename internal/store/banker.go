package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

// BankerRepository persists banker routing targets (spec §3, §6.2).
type BankerRepository struct {
	db *sql.DB
}

func (r *BankerRepository) Create(ctx context.Context, b *models.Banker) error {
	start := time.Now()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()
	kw, err := json.Marshal(b.RoutingKeywords)
	if err != nil {
		observe("banker", "create", start, err)
		return apperr.Validation{Msg: "invalid routing keywords"}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bankers (id, name, display_name, agent_number, bank_name, whatsapp_group_id, routing_keywords, priority, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.Name, b.DisplayName, b.AgentNumber, b.BankName, b.WhatsAppGroupID, kw, b.Priority, b.IsActive, b.CreatedAt)
	observe("banker", "create", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *BankerRepository) Get(ctx context.Context, id string) (*models.Banker, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, agent_number, bank_name, whatsapp_group_id, routing_keywords, priority, is_active, created_at
		FROM bankers WHERE id=$1`, id)
	b, err := scanBanker(row)
	observe("banker", "get", start, err)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound{Entity: "banker", ID: id}
	}
	if err != nil {
		return nil, apperr.Store{Cause: err}
	}
	return b, nil
}

// ListActive returns all active bankers, used by the routing invariant of
// spec §3 (the handler applies SelectBanker over this list).
func (r *BankerRepository) ListActive(ctx context.Context) ([]models.Banker, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, display_name, agent_number, bank_name, whatsapp_group_id, routing_keywords, priority, is_active, created_at
		FROM bankers WHERE is_active = true ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		observe("banker", "list_active", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []models.Banker
	for rows.Next() {
		b, err := scanBanker(rows)
		if err != nil {
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, *b)
	}
	observe("banker", "list_active", start, rows.Err())
	return out, rows.Err()
}

func (r *BankerRepository) List(ctx context.Context) ([]models.Banker, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, display_name, agent_number, bank_name, whatsapp_group_id, routing_keywords, priority, is_active, created_at
		FROM bankers ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		observe("banker", "list", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []models.Banker
	for rows.Next() {
		b, err := scanBanker(rows)
		if err != nil {
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, *b)
	}
	observe("banker", "list", start, rows.Err())
	return out, rows.Err()
}

func (r *BankerRepository) BankNames(ctx context.Context) ([]string, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT bank_name FROM bankers ORDER BY bank_name ASC`)
	if err != nil {
		observe("banker", "bank_names", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, n)
	}
	observe("banker", "bank_names", start, rows.Err())
	return out, rows.Err()
}

func (r *BankerRepository) Update(ctx context.Context, b *models.Banker) error {
	start := time.Now()
	kw, err := json.Marshal(b.RoutingKeywords)
	if err != nil {
		observe("banker", "update", start, err)
		return apperr.Validation{Msg: "invalid routing keywords"}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE bankers SET name=$1, display_name=$2, agent_number=$3, bank_name=$4, whatsapp_group_id=$5,
			routing_keywords=$6, priority=$7, is_active=$8 WHERE id=$9`,
		b.Name, b.DisplayName, b.AgentNumber, b.BankName, b.WhatsAppGroupID, kw, b.Priority, b.IsActive, b.ID)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	observe("banker", "update", start, err)
	if err == sql.ErrNoRows {
		return apperr.NotFound{Entity: "banker", ID: b.ID}
	}
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *BankerRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM bankers WHERE id=$1`, id)
	observe("banker", "delete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func scanBanker(row rowScanner) (*models.Banker, error) {
	var b models.Banker
	var kw []byte
	if err := row.Scan(&b.ID, &b.Name, &b.DisplayName, &b.AgentNumber, &b.BankName, &b.WhatsAppGroupID,
		&kw, &b.Priority, &b.IsActive, &b.CreatedAt); err != nil {
		return nil, err
	}
	if len(kw) > 0 {
		if err := json.Unmarshal(kw, &b.RoutingKeywords); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
