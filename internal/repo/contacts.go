package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"leadline/internal/domain"
)

const contactColumns = `c.id,COALESCE(c.tenant_id,''),COALESCE(c.channel_id,''),c.name,COALESCE(c.external_id,''),COALESCE(c.phone,''),COALESCE(c.email,''),c.tags_json,c.fields_json,c.status,c.created_at,c.updated_at,
COALESCE(ch.id,''),COALESCE(ch.type,''),COALESCE(ch.identifier,'')`

const contactFrom = ` FROM contacts c LEFT JOIN channels ch ON ch.id=c.channel_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (domain.Lead, error) {
	var l domain.Lead
	var tags, fields, status string
	var chID, chType, chIdent string
	err := row.Scan(&l.ID, &l.TenantID, &l.ChannelID, &l.Name, &l.ExternalID, &l.Phone, &l.Email, &tags, &fields, &status, &l.CreatedAt, &l.UpdatedAt,
		&chID, &chType, &chIdent)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if err := json.Unmarshal([]byte(tags), &l.Tags); err != nil {
		return l, fmt.Errorf("contact %s tags: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(fields), &l.Fields); err != nil {
		return l, fmt.Errorf("contact %s fields: %w", l.ID, err)
	}
	if chID != "" {
		l.Channel = &domain.ChannelRef{ID: chID, Type: chType, Identifier: chIdent}
	}
	return l.WithStatus(status), nil
}

func (r Repo) InsertContact(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	tags, err := json.Marshal(nonNilTags(l.Tags))
	if err != nil {
		return err
	}
	fields := l.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO contacts(id,tenant_id,channel_id,name,external_id,phone,email,tags_json,fields_json,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, nullable(l.TenantID), nullable(l.ChannelID), l.Name, nullable(l.ExternalID), nullable(l.Phone), nullable(l.Email),
		string(tags), string(fieldsJSON), l.Status(), l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetContact(ctx context.Context, id string) (domain.Lead, error) {
	return scanContact(r.DB.QueryRowContext(ctx, `SELECT `+contactColumns+contactFrom+` WHERE c.id=?`, id))
}

func (r Repo) GetContactTx(ctx context.Context, tx *sql.Tx, id string) (domain.Lead, error) {
	return scanContact(tx.QueryRowContext(ctx, `SELECT `+contactColumns+contactFrom+` WHERE c.id=?`, id))
}

// UpdateContactStatus sets the stage column and the status key of the fields
// bag together.
func (r Repo) UpdateContactStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE contacts SET status=?, fields_json=json_set(fields_json,'$.status',?), updated_at=? WHERE id=?`,
		status, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListContactsByStatus returns one page of a stage, most recently updated first.
func (r Repo) ListContactsByStatus(ctx context.Context, status string, limit, offset int) ([]domain.Lead, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+contactColumns+contactFrom+` WHERE c.status=? ORDER BY c.updated_at DESC, c.id ASC LIMIT ? OFFSET ?`,
		status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Lead{}
	for rows.Next() {
		l, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) CountContactsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM contacts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) EnsureChannel(ctx context.Context, tx *sql.Tx, ch domain.ChannelRef, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO channels(id,type,identifier,created_at) VALUES (?,?,?,?) ON CONFLICT(id) DO NOTHING`,
		ch.ID, ch.Type, ch.Identifier, now)
	return err
}

func (r Repo) EnsureAgent(ctx context.Context, tx *sql.Tx, a domain.AgentRef, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agents(id,name,created_at) VALUES (?,?,?) ON CONFLICT(id) DO NOTHING`, a.ID, a.Name, now)
	return err
}

func (r Repo) ChannelExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM channels WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
