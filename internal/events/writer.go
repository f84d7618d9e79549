package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row through ex. Pass a transaction to make the
// event part of a larger write, or nil to use the writer's DB.
func (w Writer) Append(ctx context.Context, ex Execer, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if ex == nil {
		ex = w.DB
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Journal records client-side board activity as lead events.
type Journal struct {
	Writer  Writer
	ActorID string
}

func (j Journal) Record(ctx context.Context, evtType, leadID string, payload map[string]any) error {
	kind := "contact"
	if leadID == "" {
		kind = "board"
	}
	actor := j.ActorID
	if actor == "" {
		actor = "local-user"
	}
	return j.Writer.Append(ctx, nil, evtType, kind, leadID, actor, EventPayload(payload))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
