package kanban

import (
	"context"
	"errors"
	"log/slog"

	"leadline/internal/domain"
	"leadline/internal/metrics"
	leadlinesdk "leadline/sdk/go"
)

// StatusUpdater persists a lead's stage.
type StatusUpdater interface {
	UpdateLeadStatus(ctx context.Context, id, status string) (domain.Lead, error)
}

// Journal event types written by the controller.
const (
	EventMoveApplied   = "lead.move_applied"
	EventMoveCommitted = "lead.move_committed"
	EventMoveReverted  = "lead.move_reverted"
)

// Controller drives optimistic stage changes against a Store.
type Controller struct {
	store    *Store
	remote   StatusUpdater
	notifier Notifier
	journal  Journal
	logger   *slog.Logger
}

func NewController(store *Store, remote StatusUpdater, notifier Notifier, journal Journal, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if journal == nil {
		journal = nopJournal{}
	}
	return &Controller{store: store, remote: remote, notifier: notifier, journal: journal, logger: logger}
}

// moveUndo is what a failed move needs to put the board back.
type moveUndo struct {
	move     Move
	original domain.Lead
	board    Board
	counts   Counts
	version  uint64
	epoch    uint64
}

// ChangeStatus moves a lead to stage. The board changes before this returns;
// the server is updated in the background. Success is silent. On failure the
// move is undone, an error notification is sent and Wait returns a
// *MutationError.
func (c *Controller) ChangeStatus(ctx context.Context, leadID, stage string) *Pending {
	sp := Speculation[moveUndo]{
		Apply: func() (moveUndo, bool) {
			u, ok := c.applyMove(leadID, stage)
			if ok {
				metrics.StatusMoves.WithLabelValues("applied").Inc()
				c.record(context.WithoutCancel(ctx), EventMoveApplied, leadID, map[string]any{"from": u.move.From, "to": stage})
			}
			return u, ok
		},
		Remote: func(ctx context.Context) error {
			_, err := c.remote.UpdateLeadStatus(ctx, leadID, stage)
			return err
		},
		Commit:     c.commitMove,
		Compensate: c.compensateMove,
	}
	p := sp.Start(ctx)
	if !p.Applied() {
		metrics.StatusMoves.WithLabelValues("noop").Inc()
		c.logger.Debug("status change ignored", "lead", leadID, "stage", stage)
	}
	return p
}

func (c *Controller) applyMove(leadID, stage string) (moveUndo, bool) {
	var u moveUndo
	s := c.store
	s.update(func() bool {
		board, counts, mv := MoveOptimistic(s.board, s.counts, leadID, stage)
		u.move = mv
		if !mv.Applied {
			return false
		}
		u.original = s.board[mv.From][mv.Index]
		u.board, u.counts = s.board, s.counts
		u.version, u.epoch = s.version+1, s.epoch
		s.board, s.counts = board, counts
		return true
	})
	return u, u.move.Applied
}

func (c *Controller) commitMove(ctx context.Context, u moveUndo) {
	metrics.StatusMoves.WithLabelValues("committed").Inc()
	c.record(ctx, EventMoveCommitted, u.move.LeadID, map[string]any{"from": u.move.From, "to": u.move.To})
	if u.move.Drifted {
		c.logger.Info("stage counts drifted, reloading board", "stage", u.move.From)
		_ = c.store.Load(ctx, true)
	}
}

func (c *Controller) compensateMove(ctx context.Context, u moveUndo, cause error) error {
	mode := ""
	s := c.store
	s.update(func() bool {
		switch {
		case s.epoch != u.epoch:
			// The board was refetched after the move; it already reflects
			// the server, which never took the change.
			mode = "superseded"
			return false
		case s.version == u.version:
			s.board, s.counts = u.board, u.counts
			mode = "restored"
		default:
			s.board, s.counts = undoMove(s.board, s.counts, u.move, u.original)
			mode = "inverted"
		}
		return true
	})
	metrics.StatusMoves.WithLabelValues("reverted").Inc()
	c.logger.Warn("status change reverted", "lead", u.move.LeadID, "from", u.move.From, "to", u.move.To, "mode", mode, "err", cause)
	c.notifier.Notify(Notification{
		Level:  LevelError,
		Title:  "status update failed",
		Detail: "reverting: " + ErrorMessage(cause),
	})
	c.record(ctx, EventMoveReverted, u.move.LeadID, map[string]any{
		"from":  u.move.From,
		"to":    u.move.To,
		"mode":  mode,
		"error": ErrorMessage(cause),
	})
	return &MutationError{LeadID: u.move.LeadID, From: u.move.From, To: u.move.To, Err: cause}
}

func (c *Controller) record(ctx context.Context, evtType, leadID string, payload map[string]any) {
	if err := c.journal.Record(ctx, evtType, leadID, payload); err != nil {
		c.logger.Warn("journal write failed", "type", evtType, "lead", leadID, "err", err)
	}
}

// ErrorMessage returns the text shown to the user for a failed call: the
// server's message when it sent one, the error text otherwise.
func ErrorMessage(err error) string {
	var apiErr *leadlinesdk.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
