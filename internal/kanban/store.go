package kanban

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"leadline/internal/config"
	"leadline/internal/domain"
	"leadline/internal/metrics"
)

// BoardSource is the read side of the remote API.
type BoardSource interface {
	Kanban(ctx context.Context, page, pageSize int) (domain.KanbanPage, error)
	KanbanCounts(ctx context.Context) (domain.KanbanCounts, error)
}

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Board       Board
	Counts      Counts
	Version     uint64
	Page        int
	HasMore     bool
	Loading     bool
	LoadingMore bool
	Err         error
}

// Store owns the canonical board. Every mutation happens under one lock and
// bumps Version; remote calls never run while the lock is held.
type Store struct {
	src      BoardSource
	stages   []string
	pageSize int
	logger   *slog.Logger

	mu          sync.Mutex
	board       Board
	counts      Counts
	version     uint64
	generation  uint64
	epoch       uint64
	page        int
	hasMore     bool
	loading     bool
	loadingMore bool
	err         error

	subMu  sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// NewStore returns an empty store for the configured funnel.
func NewStore(src BoardSource, cfg *config.Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	stages := cfg.StageIDs()
	pageSize := cfg.API.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	counts := make(Counts, len(stages))
	for _, s := range stages {
		counts[s] = 0
	}
	return &Store{
		src:      src,
		stages:   stages,
		pageSize: pageSize,
		logger:   logger,
		board:    NewBoard(stages),
		counts:   counts,
		hasMore:  true,
		subs:     map[int]func(Snapshot){},
	}
}

// Stages returns the configured stage ids in funnel order.
func (s *Store) Stages() []string {
	return append([]string(nil), s.stages...)
}

// PageSize returns the number of leads requested per page.
func (s *Store) PageSize() int { return s.pageSize }

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Board:       s.board.Clone(),
		Counts:      s.counts.Clone(),
		Version:     s.version,
		Page:        s.page,
		HasMore:     s.hasMore,
		Loading:     s.loading,
		LoadingMore: s.loadingMore,
		Err:         s.err,
	}
}

// Err returns the error of the last failed load, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, id := range sortedIDs(s.subs) {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// Revert replaces board and counts verbatim.
func (s *Store) Revert(board Board, counts Counts) {
	s.update(func() bool {
		s.board, s.counts = board.Clone(), counts.Clone()
		return true
	})
}

// update runs fn under the lock. When fn reports a change the version is
// bumped and subscribers are notified.
func (s *Store) update(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if !changed {
		s.mu.Unlock()
		return
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// Load fetches the board. With reset the first page replaces the board and
// counts are refreshed; otherwise the next page is merged in.
func (s *Store) Load(ctx context.Context, reset bool) error {
	if reset {
		return s.reload(ctx)
	}
	_, err := s.loadMore(ctx)
	return err
}

func (s *Store) reload(ctx context.Context) error {
	var gen uint64
	s.update(func() bool {
		s.generation++
		gen = s.generation
		s.loading = true
		return true
	})

	page, err := s.src.Kanban(ctx, 1, s.pageSize)
	if err != nil {
		fe := &FetchError{Op: "load board", Page: 1, Err: err}
		s.update(func() bool {
			if s.generation != gen {
				return false
			}
			s.loading = false
			s.err = fe
			return true
		})
		metrics.BoardFetches.WithLabelValues("reset", "error").Inc()
		s.logger.Error("board load failed", "page", 1, "err", err)
		return fe
	}

	counts, cerr := s.src.KanbanCounts(ctx)
	if cerr != nil {
		s.logger.Warn("board counts load failed", "err", cerr)
	}

	s.update(func() bool {
		if s.generation != gen {
			return false
		}
		s.board = fromPage(page, s.stages)
		s.epoch++
		s.page = 1
		s.hasMore = s.board.Len() >= s.pageSize
		if cerr == nil {
			s.counts = normalizeCounts(counts, s.stages)
		}
		s.loading = false
		s.err = nil
		return true
	})
	metrics.BoardFetches.WithLabelValues("reset", "ok").Inc()
	s.logger.Debug("board loaded", "leads", page.Total())
	return nil
}

// loadMore fetches and merges the next page. It reports false without a
// fetch when nothing more is available or a load is already running.
//
// A page is the last one when it adds fewer leads than the page size. Ids
// already on the board do not count, so a page of stale repeats ends paging.
func (s *Store) loadMore(ctx context.Context) (bool, error) {
	var gen uint64
	var next int
	started := false
	s.update(func() bool {
		if s.loading || s.loadingMore || !s.hasMore {
			return false
		}
		gen = s.generation
		next = s.page + 1
		s.loadingMore = true
		started = true
		return true
	})
	if !started {
		return false, nil
	}

	page, err := s.src.Kanban(ctx, next, s.pageSize)
	if err != nil {
		fe := &FetchError{Op: "load more", Page: next, Err: err}
		s.update(func() bool {
			s.loadingMore = false
			if s.generation == gen {
				s.err = fe
			}
			return true
		})
		metrics.BoardFetches.WithLabelValues("more", "error").Inc()
		s.logger.Error("board page load failed", "page", next, "err", err)
		return true, fe
	}

	s.update(func() bool {
		s.loadingMore = false
		if s.generation != gen {
			s.logger.Debug("discarding page from superseded board", "page", next)
			return true
		}
		merged := Merge(s.board, page, s.stages...)
		added := merged.Len() - s.board.Len()
		s.board = merged
		s.page = next
		s.hasMore = added >= s.pageSize
		s.err = nil
		return true
	})
	metrics.BoardFetches.WithLabelValues("more", "ok").Inc()
	return true, nil
}

func normalizeCounts(in domain.KanbanCounts, stages []string) Counts {
	out := make(Counts, len(stages)+len(in))
	for _, s := range stages {
		out[s] = 0
	}
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedIDs(m map[int]func(Snapshot)) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
