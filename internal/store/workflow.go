package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

// WorkflowRepository persists workflows and their executions (spec §6.2).
type WorkflowRepository struct {
	db *sql.DB
}

// Create inserts a new Workflow, assigning an ID if unset.
func (r *WorkflowRepository) Create(ctx context.Context, w *models.Workflow) error {
	start := time.Now()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	cfg, err := json.Marshal(w.TriggerConfig)
	if err != nil {
		observe("workflow", "create", start, err)
		return errors.Wrap(err, "marshal trigger config")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, trigger_type, trigger_config, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		w.ID, w.Name, w.TriggerType, cfg, w.IsActive, w.CreatedAt, w.UpdatedAt)
	observe("workflow", "create", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// Get retrieves a Workflow by id.
func (r *WorkflowRepository) Get(ctx context.Context, id string) (*models.Workflow, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, trigger_type, trigger_config, is_active, created_at, updated_at
		FROM workflows WHERE id = $1`, id)
	w, err := scanWorkflow(row)
	observe("workflow", "get", start, err)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound{Entity: "workflow", ID: id}
	}
	if err != nil {
		return nil, apperr.Store{Cause: err}
	}
	return w, nil
}

// List returns workflows, optionally filtered by active state.
func (r *WorkflowRepository) List(ctx context.Context, activeOnly bool) ([]*models.Workflow, error) {
	start := time.Now()
	query := `SELECT id, name, trigger_type, trigger_config, is_active, created_at, updated_at FROM workflows`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		observe("workflow", "list", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()

	var out []*models.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			observe("workflow", "list", start, err)
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, w)
	}
	observe("workflow", "list", start, rows.Err())
	return out, rows.Err()
}

// Update persists changes to name/trigger/active-state.
func (r *WorkflowRepository) Update(ctx context.Context, w *models.Workflow) error {
	start := time.Now()
	cfg, err := json.Marshal(w.TriggerConfig)
	if err != nil {
		observe("workflow", "update", start, err)
		return errors.Wrap(err, "marshal trigger config")
	}
	w.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE workflows SET name=$1, trigger_type=$2, trigger_config=$3, is_active=$4, updated_at=$5
		WHERE id=$6`, w.Name, w.TriggerType, cfg, w.IsActive, w.UpdatedAt, w.ID)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	observe("workflow", "update", start, err)
	if err == sql.ErrNoRows {
		return apperr.NotFound{Entity: "workflow", ID: w.ID}
	}
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// Delete removes a workflow by id.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	observe("workflow", "delete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var w models.Workflow
	var cfg []byte
	if err := row.Scan(&w.ID, &w.Name, &w.TriggerType, &cfg, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &w.TriggerConfig); err != nil {
			return nil, err
		}
	}
	return &w, nil
}

// CreateExecution inserts a new WorkflowExecution with status=running.
func (r *WorkflowRepository) CreateExecution(ctx context.Context, e *models.WorkflowExecution) error {
	start := time.Now()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	payload, err := json.Marshal(e.TriggerPayload)
	if err != nil {
		observe("workflow_execution", "create", start, err)
		return errors.Wrap(err, "marshal trigger payload")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, status, trigger_payload, started_at)
		VALUES ($1,$2,$3,$4,$5)`, e.ID, e.WorkflowID, e.Status, payload, e.StartedAt)
	observe("workflow_execution", "create", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// CompleteExecution stamps a terminal status (completed/failed/cancelled).
func (r *WorkflowRepository) CompleteExecution(ctx context.Context, id string, status models.ExecutionStatus, execErr string) error {
	start := time.Now()
	now := time.Now().UTC()
	var errVal interface{}
	if execErr != "" {
		errVal = execErr
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions SET status=$1, completed_at=$2, error=$3 WHERE id=$4`,
		status, now, errVal, id)
	observe("workflow_execution", "complete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}
