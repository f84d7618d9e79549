package kanban

import (
	"context"
	"fmt"
	"sync"

	"leadline/internal/config"
	"leadline/internal/domain"
)

type statusCall struct {
	ID     string
	Status string
}

type aiCall struct {
	Phone  string
	Active bool
}

// fakeRemote is an in-memory stand-in for the HTTP API.
type fakeRemote struct {
	mu sync.Mutex

	pages     map[int]domain.KanbanPage
	pageErr   map[int]error
	counts    domain.KanbanCounts
	countsErr error
	pageGate  chan struct{}
	pageHit   chan int

	statusErr   error
	statusGate  chan struct{}
	statusCalls []statusCall

	aiErr   error
	aiCalls []aiCall

	kanbanCalls []int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pages:   map[int]domain.KanbanPage{},
		pageErr: map[int]error{},
		counts:  domain.KanbanCounts{},
	}
}

func (f *fakeRemote) Kanban(ctx context.Context, page, pageSize int) (domain.KanbanPage, error) {
	f.mu.Lock()
	f.kanbanCalls = append(f.kanbanCalls, page)
	gate, hit := f.pageGate, f.pageHit
	f.mu.Unlock()
	if hit != nil {
		hit <- page
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.pageErr[page]; err != nil {
		return nil, err
	}
	return f.pages[page], nil
}

func (f *fakeRemote) KanbanCounts(ctx context.Context) (domain.KanbanCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countsErr != nil {
		return nil, f.countsErr
	}
	out := domain.KanbanCounts{}
	for k, v := range f.counts {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRemote) UpdateLeadStatus(ctx context.Context, id, status string) (domain.Lead, error) {
	f.mu.Lock()
	f.statusCalls = append(f.statusCalls, statusCall{ID: id, Status: status})
	gate, err := f.statusGate, f.statusErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Lead{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Lead{}, err
	}
	return domain.Lead{ID: id}.WithStatus(status), nil
}

func (f *fakeRemote) SetAIStatus(ctx context.Context, phone string, active bool) (domain.AIStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aiCalls = append(f.aiCalls, aiCall{Phone: phone, Active: active})
	if f.aiErr != nil {
		return domain.AIStatus{}, f.aiErr
	}
	return domain.AIStatus{Phone: phone, Active: active, Updated: true}, nil
}

func (f *fakeRemote) statusCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.statusCalls)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

type recordedEvent struct {
	Type    string
	LeadID  string
	Payload map[string]any
}

type memJournal struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (j *memJournal) Record(_ context.Context, evtType, leadID string, payload map[string]any) error {
	j.mu.Lock()
	j.events = append(j.events, recordedEvent{Type: evtType, LeadID: leadID, Payload: payload})
	j.mu.Unlock()
	return nil
}

func (j *memJournal) types() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.events))
	for _, e := range j.events {
		out = append(out, e.Type)
	}
	return out
}

func lead(id, name, stage string) domain.Lead {
	return domain.Lead{ID: id, Name: name}.WithStatus(stage)
}

func testConfig(pageSize int) *config.Config {
	cfg := config.Default(config.VariantContacts)
	cfg.API.PageSize = pageSize
	return cfg
}

// fillPage returns a page with n generated leads in stage, ids prefixed.
func fillPage(prefix, stage string, n int) []domain.Lead {
	out := make([]domain.Lead, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, lead(fmt.Sprintf("%s%d", prefix, i), fmt.Sprintf("Lead %d", i), stage))
	}
	return out
}

func ids(leads []domain.Lead) []string {
	out := make([]string, 0, len(leads))
	for _, l := range leads {
		out = append(out, l.ID)
	}
	return out
}
