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

// TemplateRepository persists message templates (spec §6.2).
type TemplateRepository struct {
	db *sql.DB
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	start := time.Now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	vars, _ := json.Marshal(t.Variables())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_templates (id, name, category, content, variables, image_url)
		VALUES ($1,$2,$3,$4,$5,$6)`, t.ID, t.Name, t.Category, t.Content, vars, nullableString(t.ImageURL))
	observe("template", "create", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.Template, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, category, content, image_url FROM message_templates WHERE id=$1`, id)
	t, err := scanTemplate(row)
	observe("template", "get", start, err)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound{Entity: "template", ID: id}
	}
	if err != nil {
		return nil, apperr.Store{Cause: err}
	}
	return t, nil
}

func (r *TemplateRepository) List(ctx context.Context, category string) ([]*models.Template, error) {
	start := time.Now()
	query := `SELECT id, name, category, content, image_url FROM message_templates`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		observe("template", "list", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			observe("template", "list", start, err)
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, t)
	}
	observe("template", "list", start, rows.Err())
	return out, rows.Err()
}

func (r *TemplateRepository) Categories(ctx context.Context) ([]string, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT category FROM message_templates ORDER BY category ASC`)
	if err != nil {
		observe("template", "categories", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var cats []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, apperr.Store{Cause: err}
		}
		cats = append(cats, c)
	}
	observe("template", "categories", start, rows.Err())
	return cats, rows.Err()
}

func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	start := time.Now()
	vars, _ := json.Marshal(t.Variables())
	res, err := r.db.ExecContext(ctx, `
		UPDATE message_templates SET name=$1, category=$2, content=$3, variables=$4, image_url=$5 WHERE id=$6`,
		t.Name, t.Category, t.Content, vars, nullableString(t.ImageURL), t.ID)
	if err == nil {
		if n, _ := res.RowsAffected(); n == 0 {
			err = sql.ErrNoRows
		}
	}
	observe("template", "update", start, err)
	if err == sql.ErrNoRows {
		return apperr.NotFound{Entity: "template", ID: t.ID}
	}
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM message_templates WHERE id=$1`, id)
	observe("template", "delete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var t models.Template
	var imageURL sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.Category, &t.Content, &imageURL); err != nil {
		return nil, err
	}
	t.ImageURL = imageURL.String
	return &t, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
