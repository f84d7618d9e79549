package kanban

import (
	"sync"
	"time"
)

// View is the filtered board a user looks at. Search input is debounced;
// channel and agent filters apply at once. The view re-projects whenever
// the store changes.
type View struct {
	store    *Store
	debounce *Debouncer[string]
	cancel   func()

	mu       sync.Mutex
	filter   Filter
	onChange func(Board)
	lastVer  uint64
}

func NewView(store *Store, debounce time.Duration) *View {
	v := &View{store: store}
	v.debounce = NewDebouncer(debounce, v.applySearch)
	v.cancel = store.Subscribe(v.storeChanged)
	return v
}

// OnChange sets the callback receiving each new projection.
func (v *View) OnChange(fn func(Board)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// SetSearch updates the search term after the debounce delay.
func (v *View) SetSearch(term string) {
	v.debounce.Call(term)
}

// SearchNow applies a search term without waiting, dropping any pending one.
func (v *View) SearchNow(term string) {
	v.debounce.Flush(term)
}

func (v *View) SetChannel(id string) {
	v.setFilter(func(f *Filter) { f.Channel = id })
}

func (v *View) SetAgent(id string) {
	v.setFilter(func(f *Filter) { f.Agent = id })
}

// Filter returns the filter currently in effect.
func (v *View) Filter() Filter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// Columns returns the projected board.
func (v *View) Columns() Board {
	return Project(v.store.Snapshot().Board, v.Filter())
}

// Close stops listening to the store and drops a pending search.
func (v *View) Close() {
	v.debounce.Cancel()
	v.cancel()
}

func (v *View) applySearch(term string) {
	v.setFilter(func(f *Filter) { f.Search = term })
}

func (v *View) setFilter(edit func(*Filter)) {
	v.mu.Lock()
	edit(&v.filter)
	f, fn := v.filter, v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn(Project(v.store.Snapshot().Board, f))
	}
}

func (v *View) storeChanged(snap Snapshot) {
	v.mu.Lock()
	if snap.Version < v.lastVer {
		v.mu.Unlock()
		return
	}
	v.lastVer = snap.Version
	f, fn := v.filter, v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn(Project(snap.Board, f))
	}
}
