package repo

import (
	"context"

	"leadline/internal/domain"
)

func (r Repo) InsertNote(ctx context.Context, n domain.Note) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notes(id,contact_id,body,author,created_at) VALUES (?,?,?,?,?)`,
		n.ID, n.ContactID, n.Body, n.Author, n.CreatedAt)
	return err
}

// ListNotes returns the notes of a contact, oldest first.
func (r Repo) ListNotes(ctx context.Context, contactID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,contact_id,body,author,created_at FROM notes WHERE contact_id=? ORDER BY created_at ASC, id ASC`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.ContactID, &n.Body, &n.Author, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
