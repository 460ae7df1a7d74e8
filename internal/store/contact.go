package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/keyquest/wa-gateway/internal/apperr"
	"github.com/keyquest/wa-gateway/internal/models"
)

// ContactListRepository persists contact lists and their contacts (spec
// §6.2, §4.10). Import dedup/normalization lives here because it is a
// storage-layer invariant ("duplicate-within-list is dropped silently"),
// not a domain rule belonging to internal/models.
type ContactListRepository struct {
	db *sql.DB
}

func (r *ContactListRepository) CreateList(ctx context.Context, l *models.ContactList) error {
	start := time.Now()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_lists (id, name, description, source, created_at)
		VALUES ($1,$2,$3,$4,$5)`, l.ID, l.Name, l.Description, l.Source, l.CreatedAt)
	observe("contact_list", "create", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

func (r *ContactListRepository) GetList(ctx context.Context, id string) (*models.ContactList, error) {
	start := time.Now()
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, source, created_at FROM contact_lists WHERE id=$1`, id)
	var l models.ContactList
	err := row.Scan(&l.ID, &l.Name, &l.Description, &l.Source, &l.CreatedAt)
	observe("contact_list", "get", start, err)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound{Entity: "contact_list", ID: id}
	}
	if err != nil {
		return nil, apperr.Store{Cause: err}
	}
	return &l, nil
}

func (r *ContactListRepository) ListLists(ctx context.Context) ([]*models.ContactList, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, source, created_at FROM contact_lists ORDER BY created_at DESC`)
	if err != nil {
		observe("contact_list", "list", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []*models.ContactList
	for rows.Next() {
		var l models.ContactList
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.Source, &l.CreatedAt); err != nil {
			return nil, apperr.Store{Cause: err}
		}
		out = append(out, &l)
	}
	observe("contact_list", "list", start, rows.Err())
	return out, rows.Err()
}

// DeleteList removes a contact list and its contacts (spec §6.3 contact
// list CRUD "delete"); the FK from broadcast_contacts cascades.
func (r *ContactListRepository) DeleteList(ctx context.Context, id string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM contact_lists WHERE id=$1`, id)
	observe("contact_list", "delete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// AddContact inserts a single contact, normalizing phone and rejecting
// empty numbers. If a row for (list_id, phone) already exists it is left
// unchanged and the call succeeds (spec §4.10).
func (r *ContactListRepository) AddContact(ctx context.Context, c *models.Contact) error {
	start := time.Now()
	c.Phone = models.NormalizePhone(c.Phone)
	if c.Phone == "65" || c.Phone == "" {
		observe("contact", "create", start, apperr.Validation{Msg: "phone is required"})
		return apperr.Validation{Msg: "phone is required"}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO broadcast_contacts (id, list_id, name, phone, email, tier, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (list_id, phone) DO NOTHING`,
		c.ID, c.ListID, c.Name, c.Phone, nullableString(c.Email), nullableString(c.Tier), c.IsActive)
	observe("contact", "create", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}

// ImportCSV reads name,phone[,email[,tier]] rows, normalizing and
// silently dropping empty-phone or duplicate-within-list rows (spec
// §4.10). Returns the count of rows AddContact accepted without error; a
// duplicate that the database ignores is still counted.
func (r *ContactListRepository) ImportCSV(ctx context.Context, listID string, reader io.Reader) (int, error) {
	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	accepted := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return accepted, apperr.Validation{Msg: "malformed csv: " + err.Error()}
		}
		if len(rec) < 2 {
			continue
		}
		contact := &models.Contact{ListID: listID, Name: rec[0], Phone: rec[1], IsActive: true}
		if len(rec) > 2 {
			contact.Email = rec[2]
		}
		if len(rec) > 3 {
			contact.Tier = rec[3]
		}
		if models.NormalizePhone(contact.Phone) == "65" {
			continue
		}
		if err := r.AddContact(ctx, contact); err != nil {
			if _, ok := err.(apperr.Validation); ok {
				continue
			}
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

func (r *ContactListRepository) ListContacts(ctx context.Context, listID string) ([]*models.Contact, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, list_id, name, phone, email, tier, is_active FROM broadcast_contacts
		WHERE list_id = $1 ORDER BY name ASC`, listID)
	if err != nil {
		observe("contact", "list", start, err)
		return nil, apperr.Store{Cause: err}
	}
	defer rows.Close()
	var out []*models.Contact
	for rows.Next() {
		var c models.Contact
		var email, tier sql.NullString
		if err := rows.Scan(&c.ID, &c.ListID, &c.Name, &c.Phone, &email, &tier, &c.IsActive); err != nil {
			return nil, apperr.Store{Cause: err}
		}
		c.Email, c.Tier = email.String, tier.String
		out = append(out, &c)
	}
	observe("contact", "list", start, rows.Err())
	return out, rows.Err()
}

func (r *ContactListRepository) DeleteContact(ctx context.Context, id string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM broadcast_contacts WHERE id=$1`, id)
	observe("contact", "delete", start, err)
	if err != nil {
		return apperr.Store{Cause: err}
	}
	return nil
}
