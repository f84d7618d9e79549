package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"leadline/internal/domain"
)

type ConversationRow struct {
	ID            string
	ContactID     string
	Status        string
	AgentID       string
	LastMessageAt string
	CreatedAt     string
}

type MessageRow struct {
	ID             string
	ConversationID string
	Sender         string
	Direction      string
	Type           string
	Content        json.RawMessage
	CreatedAt      string
}

func (r Repo) InsertConversation(ctx context.Context, tx *sql.Tx, c ConversationRow) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO conversations(id,contact_id,status,agent_id,last_message_at,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.ContactID, c.Status, nullable(c.AgentID), nullable(c.LastMessageAt), c.CreatedAt)
	return err
}

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m MessageRow) error {
	content := string(m.Content)
	if content == "" {
		content = "null"
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO messages(id,conversation_id,sender,direction,type,content_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.ConversationID, m.Sender, m.Direction, m.Type, content, m.CreatedAt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_at=? WHERE id=? AND (last_message_at IS NULL OR last_message_at < ?)`,
		m.CreatedAt, m.ConversationID, m.CreatedAt)
	return err
}

// ConversationsFor returns the conversations of the given contacts keyed by
// contact id, newest activity first. Messages are only loaded when asked.
func (r Repo) ConversationsFor(ctx context.Context, contactIDs []string, withMessages bool) (map[string][]domain.Conversation, error) {
	res := map[string][]domain.Conversation{}
	if len(contactIDs) == 0 {
		return res, nil
	}
	args := make([]any, 0, len(contactIDs))
	for _, id := range contactIDs {
		args = append(args, id)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT cv.id,cv.contact_id,cv.status,COALESCE(cv.last_message_at,''),COALESCE(a.id,''),COALESCE(a.name,'')
FROM conversations cv LEFT JOIN agents a ON a.id=cv.agent_id
WHERE cv.contact_id IN (`+placeholders(len(contactIDs))+`)
ORDER BY COALESCE(cv.last_message_at,cv.created_at) DESC, cv.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var convs []domain.Conversation
	var owners []string
	for rows.Next() {
		var c domain.Conversation
		var contactID, agentID, agentName string
		if err := rows.Scan(&c.ID, &contactID, &c.Status, &c.LastMessageAt, &agentID, &agentName); err != nil {
			return nil, err
		}
		if agentID != "" {
			c.CurrentAgent = &domain.AgentRef{ID: agentID, Name: agentName}
		}
		convs = append(convs, c)
		owners = append(owners, contactID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Conversation, len(convs))
	for i := range convs {
		byID[convs[i].ID] = &convs[i]
	}
	if withMessages && len(convs) > 0 {
		if err := r.attachMessages(ctx, byID); err != nil {
			return nil, err
		}
	}
	for i, c := range convs {
		res[owners[i]] = append(res[owners[i]], c)
	}
	return res, nil
}

func (r Repo) attachMessages(ctx context.Context, byID map[string]*domain.Conversation) error {
	args := make([]any, 0, len(byID))
	for id := range byID {
		args = append(args, id)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,conversation_id,sender,direction,type,content_json,created_at FROM messages
WHERE conversation_id IN (`+placeholders(len(args))+`) ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.Message
		var convID, content string
		if err := rows.Scan(&m.ID, &convID, &m.Sender, &m.Direction, &m.Type, &content, &m.CreatedAt); err != nil {
			return err
		}
		m.Content = json.RawMessage(content)
		if c, ok := byID[convID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}
	return rows.Err()
}

func (r Repo) InsertSimulation(ctx context.Context, tx *sql.Tx, s domain.Simulation) error {
	output, err := marshalObject(s.Output)
	if err != nil {
		return fmt.Errorf("simulation output: %w", err)
	}
	webhook, err := marshalObject(s.WebhookData)
	if err != nil {
		return fmt.Errorf("simulation webhook data: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO simulations(id,contact_id,provider,status,output_json,webhook_data_json,created_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.ContactID, nullable(s.Provider), nullable(s.Status), output, webhook, s.CreatedAt)
	return err
}

// ListSimulations returns a contact's simulations, newest first.
func (r Repo) ListSimulations(ctx context.Context, contactID string) ([]domain.Simulation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,contact_id,COALESCE(provider,''),COALESCE(status,''),output_json,webhook_data_json,created_at
FROM simulations WHERE contact_id=? ORDER BY created_at DESC, id DESC`, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Simulation{}
	for rows.Next() {
		var s domain.Simulation
		var output, webhook sql.NullString
		if err := rows.Scan(&s.ID, &s.ContactID, &s.Provider, &s.Status, &output, &webhook, &s.CreatedAt); err != nil {
			return nil, err
		}
		if s.Output, err = unmarshalObject(output); err != nil {
			return nil, err
		}
		if s.WebhookData, err = unmarshalObject(webhook); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpsertAIStatus(ctx context.Context, tx *sql.Tx, phone string, active bool, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ai_status(phone,active,updated_at) VALUES (?,?,?)
ON CONFLICT(phone) DO UPDATE SET active=excluded.active, updated_at=excluded.updated_at`, phone, boolInt(active), now)
	return err
}

func (r Repo) GetAIStatus(ctx context.Context, phone string) (bool, error) {
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT active FROM ai_status WHERE phone=?`, phone).Scan(&active)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	return active == 1, err
}

func marshalObject(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalObject(v sql.NullString) (map[string]any, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(v.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
