package kanban

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"leadline/internal/domain"
	"leadline/internal/metrics"
	"leadline/internal/phone"
)

// AISwitch pauses or resumes automated handling of a conversation.
type AISwitch interface {
	SetAIStatus(ctx context.Context, phone string, active bool) (domain.AIStatus, error)
}

const EventAIToggled = "ai.toggled"

var errPhoneRequired = errors.New("phone required")

// AIToggle keeps the per-card AI-assist flags, keyed by E.164 phone.
type AIToggle struct {
	store    *Store
	remote   AISwitch
	notifier Notifier
	journal  Journal
	region   string
	logger   *slog.Logger

	mu    sync.Mutex
	flags map[string]bool
}

func NewAIToggle(store *Store, remote AISwitch, notifier Notifier, journal Journal, region string, logger *slog.Logger) *AIToggle {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &AIToggle{
		store:    store,
		remote:   remote,
		notifier: notifier,
		journal:  journal,
		region:   region,
		logger:   logger,
		flags:    map[string]bool{},
	}
}

// Active returns the flag for a phone. Unknown phones report known false and
// are treated as active by callers.
func (t *AIToggle) Active(raw string) (active bool, known bool) {
	key := phone.Normalize(raw, t.region)
	t.mu.Lock()
	defer t.mu.Unlock()
	active, known = t.flags[key]
	return active, known
}

// Set flips the flag locally, then on the server. A failure restores the
// previous flag and returns a *ToggleError; success reloads the board.
func (t *AIToggle) Set(ctx context.Context, raw string, active bool) error {
	key := phone.Normalize(raw, t.region)
	if key == "" {
		return &ToggleError{Phone: raw, Err: errPhoneRequired}
	}

	t.mu.Lock()
	prev, known := t.flags[key]
	t.flags[key] = active
	t.mu.Unlock()

	if _, err := t.remote.SetAIStatus(ctx, key, active); err != nil {
		t.mu.Lock()
		if t.flags[key] == active {
			if known {
				t.flags[key] = prev
			} else {
				delete(t.flags, key)
			}
		}
		t.mu.Unlock()
		metrics.AIToggles.WithLabelValues("error").Inc()
		t.logger.Warn("ai toggle failed", "phone", key, "active", active, "err", err)
		t.notifier.Notify(Notification{Level: LevelError, Title: "ai toggle failed", Detail: ErrorMessage(err)})
		t.record(context.WithoutCancel(ctx), key, active, err)
		return &ToggleError{Phone: key, Err: err}
	}

	metrics.AIToggles.WithLabelValues("ok").Inc()
	t.record(ctx, key, active, nil)
	title := "ai paused"
	if active {
		title = "ai resumed"
	}
	t.notifier.Notify(Notification{Level: LevelSuccess, Title: title, Detail: key})
	if t.store != nil {
		if err := t.store.Load(ctx, true); err != nil {
			t.logger.Warn("board reload after ai toggle failed", "err", err)
		}
	}
	return nil
}

func (t *AIToggle) record(ctx context.Context, key string, active bool, err error) {
	payload := map[string]any{"phone": key, "active": active, "ok": err == nil}
	if err != nil {
		payload["error"] = ErrorMessage(err)
	}
	if jerr := t.journal.Record(ctx, EventAIToggled, "", payload); jerr != nil {
		t.logger.Warn("journal write failed", "type", EventAIToggled, "err", jerr)
	}
}
