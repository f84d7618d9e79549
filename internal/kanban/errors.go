package kanban

import (
	"errors"
	"fmt"
)

var (
	// ErrLeadNotFound is returned when a lead id is on no column of the board.
	ErrLeadNotFound = errors.New("lead not on board")
	// ErrUnknownStage is returned for a destination outside the configured funnel.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrDuplicateLead reports a broken partition: one lead id materialized twice.
	ErrDuplicateLead = errors.New("duplicate lead on board")
)

// FetchError indicates a failed board, page or counts load.
type FetchError struct {
	Op   string
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s page %d: %v", e.Op, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MutationError indicates a stage change the server did not accept. The board
// has already been rolled back when it is returned.
type MutationError struct {
	LeadID string
	From   string
	To     string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("move lead %s %s -> %s: %v", e.LeadID, e.From, e.To, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// ToggleError indicates a failed AI-assist toggle.
type ToggleError struct {
	Phone string
	Err   error
}

func (e *ToggleError) Error() string {
	return fmt.Sprintf("toggle ai for %s: %v", e.Phone, e.Err)
}

func (e *ToggleError) Unwrap() error { return e.Err }
