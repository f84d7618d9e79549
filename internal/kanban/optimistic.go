package kanban

import (
	"context"
	"sync"
)

// Speculation describes a local change that is shown before the server has
// confirmed it.
//
// Apply makes the local change and returns whatever Compensate needs to undo
// it. It must capture and apply atomically. When Apply reports false nothing
// changed and Remote is not called.
type Speculation[S any] struct {
	Apply      func() (S, bool)
	Remote     func(ctx context.Context) error
	Commit     func(context.Context, S)
	Compensate func(context.Context, S, error) error
}

// Start applies the change synchronously and confirms it in the background.
// Commit and Compensate run with ctx detached from cancellation so the
// bookkeeping after a cancelled call still completes.
func (sp Speculation[S]) Start(ctx context.Context) *Pending {
	p := &Pending{done: make(chan struct{})}
	undo, ok := sp.Apply()
	if !ok {
		p.finish(nil)
		return p
	}
	p.applied = true
	go func() {
		err := sp.Remote(ctx)
		settle := context.WithoutCancel(ctx)
		if err == nil {
			if sp.Commit != nil {
				sp.Commit(settle, undo)
			}
			p.finish(nil)
			return
		}
		if sp.Compensate != nil {
			err = sp.Compensate(settle, undo, err)
		}
		p.finish(err)
	}()
	return p
}

// Pending tracks a started speculation.
type Pending struct {
	done    chan struct{}
	once    sync.Once
	applied bool
	err     error
}

func (p *Pending) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the change is confirmed or compensated.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the change settles or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the settled error. It is nil while the change is in flight.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Applied reports whether the local change was made.
func (p *Pending) Applied() bool { return p.applied }
