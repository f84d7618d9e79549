package kanban

import (
	"fmt"
	"slices"
	"sort"

	"leadline/internal/domain"
)

// Board maps each funnel stage to its ordered column of leads.
type Board map[string][]domain.Lead

// Counts holds the server-side total per stage. It can exceed the number of
// leads loaded on the board.
type Counts map[string]int

// Move describes the outcome of MoveOptimistic.
type Move struct {
	LeadID  string
	From    string
	To      string
	Index   int
	Applied bool
	// Drifted is set when the source count was already zero, which means
	// local counts disagree with the server and should be refetched.
	Drifted bool
}

// NewBoard returns a board with an empty column for every stage.
func NewBoard(stages []string) Board {
	b := make(Board, len(stages))
	for _, s := range stages {
		b[s] = []domain.Lead{}
	}
	return b
}

// Clone copies every column so the result can be edited independently.
// Lead field maps are shared; leads are only changed through WithStatus.
func (b Board) Clone() Board {
	out := make(Board, len(b))
	for stage, leads := range b {
		out[stage] = slices.Clone(leads)
		if out[stage] == nil {
			out[stage] = []domain.Lead{}
		}
	}
	return out
}

// Locate returns the stage and index holding the lead.
func (b Board) Locate(id string) (string, int, bool) {
	for stage, leads := range b {
		for i, l := range leads {
			if l.ID == id {
				return stage, i, true
			}
		}
	}
	return "", -1, false
}

// Len returns the number of leads loaded across all columns.
func (b Board) Len() int {
	n := 0
	for _, leads := range b {
		n += len(leads)
	}
	return n
}

// Validate checks that no lead id appears more than once.
func (b Board) Validate() error {
	seen := make(map[string]string, b.Len())
	for _, stage := range sortedKeys(b) {
		for _, l := range b[stage] {
			if prev, ok := seen[l.ID]; ok {
				return fmt.Errorf("%w: %s in %s and %s", ErrDuplicateLead, l.ID, prev, stage)
			}
			seen[l.ID] = stage
		}
	}
	return nil
}

// Clone copies the counts map.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MoveOptimistic returns the board and counts after moving leadID to stage
// to. The inputs are never modified. The lead is removed from wherever it is
// found and inserted at the head of the destination column.
//
// A lead that is not on the board, a destination that is not a column, or a
// move to the current stage returns the inputs unchanged with Applied false.
func MoveOptimistic(board Board, counts Counts, leadID, to string) (Board, Counts, Move) {
	mv := Move{LeadID: leadID, To: to}
	if _, ok := board[to]; !ok {
		return board, counts, mv
	}
	from, idx, ok := board.Locate(leadID)
	if !ok || from == to {
		mv.From = from
		return board, counts, mv
	}
	mv.From, mv.Index, mv.Applied = from, idx, true

	next := make(Board, len(board))
	for stage, leads := range board {
		next[stage] = leads
	}
	lead := board[from][idx]
	src := make([]domain.Lead, 0, len(board[from])-1)
	src = append(src, board[from][:idx]...)
	src = append(src, board[from][idx+1:]...)
	next[from] = src

	dst := make([]domain.Lead, 0, len(board[to])+1)
	dst = append(dst, lead.WithStatus(to))
	dst = append(dst, board[to]...)
	next[to] = dst

	nextCounts := counts.Clone()
	if nextCounts[from] > 0 {
		nextCounts[from]--
	} else {
		mv.Drifted = true
	}
	nextCounts[to]++
	return next, nextCounts, mv
}

// undoMove puts a previously applied move back on top of the current board:
// the lead returns to its original stage at (at most) its original index and
// the stage currently holding it gives its count back. Leads other than mv.LeadID are left alone.
func undoMove(board Board, counts Counts, mv Move, original domain.Lead) (Board, Counts) {
	next := board.Clone()
	held := mv.To
	if stage, idx, ok := next.Locate(mv.LeadID); ok {
		next[stage] = slices.Delete(next[stage], idx, idx+1)
		held = stage
	}
	if _, ok := next[mv.From]; !ok {
		next[mv.From] = []domain.Lead{}
	}
	idx := min(mv.Index, len(next[mv.From]))
	next[mv.From] = slices.Insert(next[mv.From], idx, original)

	nextCounts := counts.Clone()
	if nextCounts[held] > 0 {
		nextCounts[held]--
	}
	if !mv.Drifted {
		nextCounts[mv.From]++
	}
	return next, nextCounts
}

// Merge appends page leads to the board, skipping any id already loaded on
// any column. Existing leads keep their order and are not overwritten.
// Stages are visited in order, then any remaining page stages sorted by name.
func Merge(board Board, page domain.KanbanPage, order ...string) Board {
	next := board.Clone()
	seen := make(map[string]struct{}, next.Len())
	for _, leads := range next {
		for _, l := range leads {
			seen[l.ID] = struct{}{}
		}
	}
	for _, stage := range visitOrder(page, order) {
		for _, l := range page[stage] {
			if _, dup := seen[l.ID]; dup {
				continue
			}
			seen[l.ID] = struct{}{}
			next[stage] = append(next[stage], l)
		}
		if next[stage] == nil {
			next[stage] = []domain.Lead{}
		}
	}
	return next
}

// fromPage builds a board from a first page: every stage gets a column and
// ids repeated by the server are kept once.
func fromPage(page domain.KanbanPage, stages []string) Board {
	return Merge(NewBoard(stages), page, stages...)
}

func visitOrder(page domain.KanbanPage, order []string) []string {
	out := make([]string, 0, len(page))
	listed := make(map[string]struct{}, len(order))
	for _, s := range order {
		listed[s] = struct{}{}
		if _, ok := page[s]; ok {
			out = append(out, s)
		}
	}
	var extra []string
	for s := range page {
		if _, ok := listed[s]; !ok {
			extra = append(extra, s)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
