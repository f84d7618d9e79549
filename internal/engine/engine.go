package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadline/internal/config"
	"leadline/internal/domain"
	"leadline/internal/events"
	"leadline/internal/phone"
	"leadline/internal/repo"
)

// MaxPageSize bounds the per-stage page of a kanban request.
const MaxPageSize = config.MaxPageSize

// Engine implements the leadline HTTP contract on top of the workspace DB.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

// ValidationError reports a request the engine refuses to apply.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func (e Engine) stages() ([]string, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	return e.Config.StageIDs(), nil
}

// Kanban returns one page of every stage. Each stage is paged on its own
// with pageSize leads per stage.
func (e Engine) Kanban(ctx context.Context, page, pageSize int) (domain.KanbanPage, error) {
	stages, err := e.stages()
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = e.Config.API.PageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	offset := (page - 1) * pageSize

	out := make(domain.KanbanPage, len(stages))
	var ids []string
	for _, stage := range stages {
		leads, err := e.Repo.ListContactsByStatus(ctx, stage, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", stage, err)
		}
		out[stage] = leads
		for _, l := range leads {
			ids = append(ids, l.ID)
		}
	}
	convs, err := e.Repo.ConversationsFor(ctx, ids, false)
	if err != nil {
		return nil, err
	}
	for stage, leads := range out {
		for i := range leads {
			leads[i].Conversations = convs[leads[i].ID]
		}
		out[stage] = leads
	}
	return out, nil
}

// KanbanCounts returns the total per configured stage, zero included.
func (e Engine) KanbanCounts(ctx context.Context) (domain.KanbanCounts, error) {
	stages, err := e.stages()
	if err != nil {
		return nil, err
	}
	raw, err := e.Repo.CountContactsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(domain.KanbanCounts, len(stages))
	for _, s := range stages {
		out[s] = raw[s]
	}
	return out, nil
}

// Lead returns a lead with its conversations (without messages).
func (e Engine) Lead(ctx context.Context, id string) (domain.Lead, error) {
	l, err := e.Repo.GetContact(ctx, id)
	if err != nil {
		return l, err
	}
	convs, err := e.Repo.ConversationsFor(ctx, []string{id}, false)
	if err != nil {
		return l, err
	}
	l.Conversations = convs[id]
	return l, nil
}

// UpdateLeadStatus moves a lead to another configured stage.
func (e Engine) UpdateLeadStatus(ctx context.Context, id, status, actorID string) (domain.Lead, error) {
	if _, err := e.stages(); err != nil {
		return domain.Lead{}, err
	}
	if !e.Config.HasStage(status) {
		return domain.Lead{}, ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a stage of the %s funnel", status, e.Config.Funnel.Variant)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lead{}, err
	}
	defer tx.Rollback()

	before, err := e.Repo.GetContactTx(ctx, tx, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if err := e.Repo.UpdateContactStatus(ctx, tx, id, status, e.timestamp()); err != nil {
		return domain.Lead{}, err
	}
	if err := e.Events.Append(ctx, tx, "contact.status", "contact", id, actorID, events.EventPayload{"from": before.Status(), "to": status}); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Lead{}, err
	}
	return e.Lead(ctx, id)
}

// SetAIStatus pauses or resumes automated handling for a phone number.
func (e Engine) SetAIStatus(ctx context.Context, rawPhone string, active bool, actorID string) (domain.AIStatus, error) {
	key := phone.Normalize(rawPhone, e.region())
	if key == "" {
		return domain.AIStatus{}, ValidationError{Field: "phone", Message: "phone is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.AIStatus{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAIStatus(ctx, tx, key, active, e.timestamp()); err != nil {
		return domain.AIStatus{}, err
	}
	if err := e.Events.Append(ctx, tx, "ai.status", "phone", key, actorID, events.EventPayload{"active": active}); err != nil {
		return domain.AIStatus{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.AIStatus{}, err
	}
	return domain.AIStatus{Phone: key, Active: active, Updated: true}, nil
}

// CreateLeadOptions are parameters for creating a lead.
type CreateLeadOptions struct {
	ID         string
	TenantID   string
	ChannelID  string
	Name       string
	ExternalID string
	Phone      string
	Email      string
	Tags       []string
	Fields     map[string]any
	ActorID    string
}

func (e Engine) CreateLead(ctx context.Context, opts CreateLeadOptions) (domain.Lead, error) {
	stages, err := e.stages()
	if err != nil {
		return domain.Lead{}, err
	}
	if strings.TrimSpace(opts.Name) == "" && opts.Phone == "" && opts.Email == "" {
		return domain.Lead{}, ValidationError{Message: "name, phone or email is required"}
	}
	status, _ := opts.Fields[domain.StatusField].(string)
	if status == "" {
		status = stages[0]
	}
	if !e.Config.HasStage(status) {
		return domain.Lead{}, ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a stage", status)}
	}
	if opts.ChannelID != "" {
		ok, err := e.Repo.ChannelExists(ctx, opts.ChannelID)
		if err != nil {
			return domain.Lead{}, err
		}
		if !ok {
			return domain.Lead{}, ValidationError{Field: "channel_id", Message: "unknown channel " + opts.ChannelID}
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.timestamp()
	l := domain.Lead{
		ID:         id,
		TenantID:   opts.TenantID,
		ChannelID:  opts.ChannelID,
		Name:       strings.TrimSpace(opts.Name),
		ExternalID: opts.ExternalID,
		Phone:      phone.Normalize(opts.Phone, e.region()),
		Email:      opts.Email,
		Tags:       opts.Tags,
		Fields:     opts.Fields,
		CreatedAt:  now,
		UpdatedAt:  now,
	}.WithStatus(status)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lead{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertContact(ctx, tx, l); err != nil {
		return domain.Lead{}, fmt.Errorf("insert contact: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "contact.create", "contact", id, opts.ActorID, events.EventPayload{"status": status}); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Lead{}, err
	}
	return e.Repo.GetContact(ctx, id)
}

// Conversations returns the conversation history of a lead, messages included.
func (e Engine) Conversations(ctx context.Context, contactID string) ([]domain.Conversation, error) {
	if _, err := e.Repo.GetContact(ctx, contactID); err != nil {
		return nil, err
	}
	convs, err := e.Repo.ConversationsFor(ctx, []string{contactID}, true)
	if err != nil {
		return nil, err
	}
	if convs[contactID] == nil {
		return []domain.Conversation{}, nil
	}
	return convs[contactID], nil
}

// Simulations returns the simulations of a lead, newest first.
func (e Engine) Simulations(ctx context.Context, contactID string) ([]domain.Simulation, error) {
	if _, err := e.Repo.GetContact(ctx, contactID); err != nil {
		return nil, err
	}
	return e.Repo.ListSimulations(ctx, contactID)
}

func (e Engine) region() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Phone.DefaultRegion
}
