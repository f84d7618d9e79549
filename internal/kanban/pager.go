package kanban

import "context"

// PrefetchThreshold is the scrolled fraction of a column at which the next
// page is requested.
const PrefetchThreshold = 0.8

// Pager coordinates load-more requests. The API pages the whole board at
// once, so there is one cursor shared by every column.
//
// HasMore turns false once a page adds fewer new leads than the page size.
// Repeats do not count: a page of [B,C] over a board holding B ends paging.
// With offset paging a server-side move can shift a lead onto the next
// page, so a full page with one repeat may end paging early; a reset load
// recovers it.
type Pager struct {
	store *Store
}

func NewPager(store *Store) *Pager {
	return &Pager{store: store}
}

func (p *Pager) HasMore() bool {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	return p.store.hasMore
}

func (p *Pager) IsLoadingMore() bool {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	return p.store.loadingMore
}

// RequestMore fetches the next page. It does nothing and reports false when
// a fetch is already running or no more pages exist.
func (p *Pager) RequestMore(ctx context.Context) (bool, error) {
	return p.store.loadMore(ctx)
}

// ShouldPrefetch reports whether a scroll position has crossed the prefetch
// threshold.
func ShouldPrefetch(scrollTop, clientHeight, scrollHeight float64) bool {
	if scrollHeight <= 0 {
		return false
	}
	return (scrollTop+clientHeight)/scrollHeight >= PrefetchThreshold
}

// Column is the scroll handler of one stage column.
type Column struct {
	Stage string
	pager *Pager
}

func (p *Pager) Column(stage string) Column {
	return Column{Stage: stage, pager: p}
}

// OnScroll requests the next page when the column is scrolled far enough.
func (c Column) OnScroll(ctx context.Context, scrollTop, clientHeight, scrollHeight float64) (bool, error) {
	if !ShouldPrefetch(scrollTop, clientHeight, scrollHeight) {
		return false, nil
	}
	return c.pager.RequestMore(ctx)
}
