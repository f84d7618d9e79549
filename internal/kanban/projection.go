package kanban

import (
	"strings"

	"leadline/internal/domain"
	"leadline/internal/phone"
)

// FilterAll is the sentinel that disables a channel or agent filter.
const FilterAll = "all"

// Filter narrows the visible board. Empty values and FilterAll match all.
type Filter struct {
	Search  string
	Channel string
	Agent   string
}

func (f Filter) active() bool {
	return strings.TrimSpace(f.Search) != "" || isSet(f.Channel) || isSet(f.Agent)
}

func isSet(v string) bool {
	return v != "" && v != FilterAll
}

// Match reports whether a lead passes every active part of the filter.
func (f Filter) Match(l domain.Lead) bool {
	if isSet(f.Channel) && l.EffectiveChannelID() != f.Channel {
		return false
	}
	if isSet(f.Agent) && l.ActiveAgentID() != f.Agent {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(l.Name), term) {
		return true
	}
	if strings.Contains(strings.ToLower(l.Phone), term) {
		return true
	}
	if !phoneShaped(term) {
		return false
	}
	return strings.Contains(phone.Digits(l.Phone), phone.Digits(term))
}

// phoneShaped reports whether term is only digits and phone punctuation,
// with at least one digit.
func phoneShaped(term string) bool {
	digit := false
	for _, r := range term {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune("+()-. ", r):
		default:
			return false
		}
	}
	return digit
}

// Project returns the leads of board that match f. The board is not
// modified; with no active filter it is returned as is.
func Project(board Board, f Filter) Board {
	if !f.active() {
		return board
	}
	out := make(Board, len(board))
	for stage, leads := range board {
		kept := make([]domain.Lead, 0, len(leads))
		for _, l := range leads {
			if f.Match(l) {
				kept = append(kept, l)
			}
		}
		out[stage] = kept
	}
	return out
}
