package domain

import (
	"encoding/json"
	"maps"
)

// StatusField is the key inside Lead.Fields that holds the funnel stage.
const StatusField = "status"

type ChannelRef struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lead is a contact tracked through the funnel.
type Lead struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id,omitempty"`
	ChannelID     string         `json:"channel_id,omitempty"`
	Name          string         `json:"name,omitempty"`
	ExternalID    string         `json:"external_id,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	Email         string         `json:"email,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	UpdatedAt     string         `json:"updated_at" format:"date-time"`
	Channel       *ChannelRef    `json:"channel,omitempty"`
	Conversations []Conversation `json:"conversations,omitempty"`
}

// Status returns the funnel stage stored in the attribute bag.
func (l Lead) Status() string {
	s, _ := l.Fields[StatusField].(string)
	return s
}

// WithStatus returns a copy of l with its stage set. The fields map is cloned
// so the original lead is left untouched.
func (l Lead) WithStatus(stage string) Lead {
	fields := make(map[string]any, len(l.Fields)+1)
	maps.Copy(fields, l.Fields)
	fields[StatusField] = stage
	l.Fields = fields
	return l
}

// ActiveAgentID returns the current agent of the first conversation that has one.
func (l Lead) ActiveAgentID() string {
	for _, c := range l.Conversations {
		if c.CurrentAgent != nil && c.CurrentAgent.ID != "" {
			return c.CurrentAgent.ID
		}
	}
	return ""
}

// EffectiveChannelID prefers the flat channel_id and falls back to the nested channel.
func (l Lead) EffectiveChannelID() string {
	if l.ChannelID != "" {
		return l.ChannelID
	}
	if l.Channel != nil {
		return l.Channel.ID
	}
	return ""
}

// KanbanPage maps a stage to the leads returned for it by one board fetch.
type KanbanPage map[string][]Lead

// KanbanCounts maps a stage to its server-side total.
type KanbanCounts map[string]int

// Total returns the number of leads across every stage of the page.
func (p KanbanPage) Total() int {
	n := 0
	for _, leads := range p {
		n += len(leads)
	}
	return n
}

type Conversation struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	LastMessageAt string    `json:"last_message_at,omitempty"`
	CurrentAgent  *AgentRef `json:"current_agent,omitempty"`
	Messages      []Message `json:"messages,omitempty"`
}

type Message struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Direction string          `json:"direction"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

// Simulation is a credit-proposal record attached to a lead.
type Simulation struct {
	ID          string         `json:"id"`
	ContactID   string         `json:"contact_id"`
	Provider    string         `json:"provider,omitempty"`
	Status      string         `json:"status,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	WebhookData map[string]any `json:"webhook_data,omitempty"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
}

// Data returns webhook_data when present, otherwise output.
func (s Simulation) Data() map[string]any {
	if len(s.WebhookData) > 0 {
		return s.WebhookData
	}
	return s.Output
}

type AIStatus struct {
	Phone   string `json:"phone"`
	Active  bool   `json:"active"`
	Updated bool   `json:"updated"`
}

type Note struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
	Body      string `json:"body"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
