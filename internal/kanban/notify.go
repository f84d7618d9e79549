package kanban

import (
	"context"
	"log/slog"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient, user-visible message.
type Notification struct {
	Level  Level
	Title  string
	Detail string
}

// Notifier surfaces notifications to whatever renders the board.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(note Notification) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if note.Level == LevelError {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, note.Title, "detail", note.Detail, "level", string(note.Level))
}

// Journal records board activity for later inspection.
type Journal interface {
	Record(ctx context.Context, evtType, leadID string, payload map[string]any) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, string, string, map[string]any) error { return nil }
