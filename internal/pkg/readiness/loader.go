package readiness

import (
	"context"
	"sync"
)

// State is the lifecycle of a lazily initialised resource.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Loader initialises a value once per process. Concurrent callers during
// Loading wait on the same pending load. A failed load returns to Unloaded
// so the next Get tries again.
type Loader[T any] struct {
	load func(context.Context) (T, error)

	mu      sync.Mutex
	state   State
	pending chan struct{}
	value   T
	err     error
}

// NewLoader wraps load in a single-initialisation guard.
func NewLoader[T any](load func(context.Context) (T, error)) *Loader[T] {
	return &Loader[T]{load: load}
}

// State returns the current lifecycle state.
func (l *Loader[T]) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Get returns the loaded value, starting the load if needed. ctx only bounds
// how long this caller waits; the load itself runs to completion for the
// other waiters.
func (l *Loader[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	switch l.state {
	case Loaded:
		v := l.value
		l.mu.Unlock()
		return v, nil
	case Unloaded:
		l.state = Loading
		l.pending = make(chan struct{})
		go l.run(context.WithoutCancel(ctx), l.pending)
	}
	pending := l.pending
	l.mu.Unlock()

	select {
	case <-pending:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Loaded {
		return l.value, nil
	}
	var zero T
	return zero, l.err
}

func (l *Loader[T]) run(ctx context.Context, done chan struct{}) {
	v, err := l.load(ctx)

	l.mu.Lock()
	if err != nil {
		l.state = Unloaded
		l.err = err
	} else {
		l.state = Loaded
		l.value = v
		l.err = nil
	}
	l.mu.Unlock()
	close(done)
}
